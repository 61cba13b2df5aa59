// Package chunk lays out heap chunks in unmanaged memory.
//
// An aligned chunk is a power-of-two sized, size-aligned block holding many
// objects allocated by bumping its top. An unaligned chunk holds exactly one
// large object. Both begin with the same header; whatever the remembered set
// places after the header is accounted for by the objects start offset.
package chunk

import (
	"unsafe"

	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// Generation ...
type Generation uintptr

const (
	// NoGeneration ...
	NoGeneration Generation = iota
	// Young ...
	Young
	// Old ...
	Old
)

func (g Generation) String() string {
	switch g {
	case Young:
		return "young"
	case Old:
		return "old"
	default:
		return "none"
	}
}

type header struct {
	top                uintptr
	end                uintptr
	objectsStartOffset uintptr
	generation         uintptr
	next               uintptr
	prev               uintptr
	unaligned          uintptr
}

// HeaderSize is the size of the common chunk header, rounded up to the
// object alignment.
var HeaderSize = memory.AlignUp(unsafe.Sizeof(header{}), layout.Alignment)

// Chunk is a handle to a chunk header. The zero value is the null chunk.
type Chunk struct {
	base memory.Pointer
}

func (c Chunk) header() *header {
	return (*header)(unsafe.Pointer(uintptr(c.base)))
}

func (c Chunk) init(size uintptr, objectsStartOffset uintptr, unaligned bool) {
	h := c.header()
	*h = header{
		top:                uintptr(c.base) + objectsStartOffset,
		end:                uintptr(c.base) + size,
		objectsStartOffset: objectsStartOffset,
		generation:         uintptr(NoGeneration),
	}
	if unaligned {
		h.unaligned = 1
	}
}

// IsNull ...
func (c Chunk) IsNull() bool {
	return c.base.IsNull()
}

// Base ...
func (c Chunk) Base() memory.Pointer {
	return c.base
}

// ObjectsStart ...
func (c Chunk) ObjectsStart() memory.Pointer {
	return c.base.Add(c.header().objectsStartOffset)
}

// Top is the end of allocated objects.
func (c Chunk) Top() memory.Pointer {
	return memory.Pointer(c.header().top)
}

// SetTop ...
func (c Chunk) SetTop(top memory.Pointer) {
	c.header().top = uintptr(top)
}

// End ...
func (c Chunk) End() memory.Pointer {
	return memory.Pointer(c.header().end)
}

// Size ...
func (c Chunk) Size() uintptr {
	return c.End().Offset(c.base)
}

// Generation ...
func (c Chunk) Generation() Generation {
	return Generation(c.header().generation)
}

// SetGeneration ...
func (c Chunk) SetGeneration(g Generation) {
	c.header().generation = uintptr(g)
}

// IsUnaligned ...
func (c Chunk) IsUnaligned() bool {
	return c.header().unaligned != 0
}

// Next ...
func (c Chunk) Next() Chunk {
	return Chunk{base: memory.Pointer(c.header().next)}
}

// Prev ...
func (c Chunk) Prev() Chunk {
	return Chunk{base: memory.Pointer(c.header().prev)}
}

// SetNext ...
func (c Chunk) SetNext(n Chunk) {
	c.header().next = uintptr(n.base)
}

// SetPrev ...
func (c Chunk) SetPrev(p Chunk) {
	c.header().prev = uintptr(p.base)
}

// Contains reports whether p lies inside the allocated objects of c.
func (c Chunk) Contains(p memory.Pointer) bool {
	return c.ObjectsStart() <= p && p < c.Top()
}

// WalkObjects calls fn on every object of the chunk in address order until
// fn returns false.
func (c Chunk) WalkObjects(fn func(obj memory.Pointer) bool) bool {
	ptr := c.ObjectsStart()
	top := c.Top()
	for ptr < top {
		if !fn(ptr) {
			return false
		}
		ptr = layout.ObjectEnd(ptr)
	}
	return true
}

// Aligned ...
type Aligned struct {
	Chunk
}

// AsAligned ...
func AsAligned(c Chunk) Aligned {
	if !c.IsNull() && c.IsUnaligned() {
		panic("chunk is not aligned")
	}
	return Aligned{Chunk: c}
}

// Allocate bumps the top by size bytes. It returns memory.Null if the chunk
// has no room left.
func (c Aligned) Allocate(size uintptr) memory.Pointer {
	h := c.header()
	if h.end-h.top < size {
		return memory.Null
	}
	result := memory.Pointer(h.top)
	h.top += size
	return result
}

// AvailableBytes ...
func (c Aligned) AvailableBytes() uintptr {
	h := c.header()
	return h.end - h.top
}

// Unaligned ...
type Unaligned struct {
	Chunk
}

// AsUnaligned ...
func AsUnaligned(c Chunk) Unaligned {
	if !c.IsNull() && !c.IsUnaligned() {
		panic("chunk is not unaligned")
	}
	return Unaligned{Chunk: c}
}

// Object returns the single object of the chunk.
func (c Unaligned) Object() memory.Pointer {
	return c.ObjectsStart()
}

// EnclosingAligned returns the aligned chunk of chunkSize bytes containing ptr.
func EnclosingAligned(ptr memory.Pointer, chunkSize uintptr) Aligned {
	return Aligned{Chunk: Chunk{base: memory.Pointer(memory.AlignDown(uintptr(ptr), chunkSize))}}
}

// EnclosingUnaligned returns the unaligned chunk whose object starts at obj.
func EnclosingUnaligned(obj memory.Pointer, objectsStartOffset uintptr) Unaligned {
	return Unaligned{Chunk: Chunk{base: obj.Sub(objectsStartOffset)}}
}
