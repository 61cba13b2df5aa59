// Package layout encodes the object header used by the simulated heap.
//
// An object is laid out as
//
//	| header word | reference slots | payload |
//
// and the header word packs
//
//	bit 0       remembered-set bit
//	bit 1       unaligned-object bit
//	bits 16..31 number of reference slots
//	bits 32..63 object size in units of Alignment
package layout

import (
	"github.com/QuangTung97/remset/memory"
)

const (
	// Alignment is the object alignment and the scale of first object table
	// memory offsets.
	Alignment = 8

	// HeaderSize ...
	HeaderSize = 8

	// MinObjectSize ...
	MinObjectSize = HeaderSize

	// MaxReferences ...
	MaxReferences = 1<<16 - 1

	// MaxObjectSize ...
	MaxObjectSize = (1<<32 - 1) * Alignment
)

const (
	rememberedSetBit uint64 = 1 << 0
	unalignedBit     uint64 = 1 << 1

	refsShift = 16
	refsMask  = 1<<16 - 1
	sizeShift = 32
)

// Header ...
type Header uint64

// Size ...
func (h Header) Size() uintptr {
	return uintptr(uint64(h)>>sizeShift) * Alignment
}

// NumReferences ...
func (h Header) NumReferences() int {
	return int((uint64(h) >> refsShift) & refsMask)
}

// HasRememberedSet ...
func (h Header) HasRememberedSet() bool {
	return uint64(h)&rememberedSetBit != 0
}

// IsUnaligned ...
func (h Header) IsUnaligned() bool {
	return uint64(h)&unalignedBit != 0
}

// SizeFor returns the aligned size of an object with numRefs reference slots
// followed by payload bytes.
func SizeFor(numRefs int, payload uintptr) uintptr {
	return memory.AlignUp(HeaderSize+uintptr(numRefs)*memory.WordSize+payload, Alignment)
}

func assertTrue(b bool, msg string) {
	if !b {
		panic(msg)
	}
}

// Initialize writes a fresh header at obj and zeroes the reference slots.
func Initialize(obj memory.Pointer, size uintptr, numRefs int, unaligned bool) {
	assertTrue(memory.IsAligned(size, Alignment), "object size must be aligned")
	assertTrue(size <= MaxObjectSize, "object too large")
	assertTrue(numRefs >= 0 && numRefs <= MaxReferences, "too many reference slots")
	assertTrue(size >= SizeFor(numRefs, 0), "object too small for its reference slots")

	h := uint64(size/Alignment)<<sizeShift | uint64(numRefs)<<refsShift
	if unaligned {
		h |= unalignedBit
	}
	obj.WriteWord(0, h)
	obj.Add(HeaderSize).Fill(uintptr(numRefs)*memory.WordSize, 0)
}

// ReadHeader ...
func ReadHeader(obj memory.Pointer) Header {
	return Header(obj.ReadWord(0))
}

// SetRememberedSetBit ...
func SetRememberedSetBit(obj memory.Pointer) {
	obj.WriteWord(0, obj.ReadWord(0)|rememberedSetBit)
}

// ClearRememberedSetBit ...
func ClearRememberedSetBit(obj memory.Pointer) {
	obj.WriteWord(0, obj.ReadWord(0)&^rememberedSetBit)
}

// ObjectSize ...
func ObjectSize(obj memory.Pointer) uintptr {
	return ReadHeader(obj).Size()
}

// ObjectEnd returns the first address past obj.
func ObjectEnd(obj memory.Pointer) memory.Pointer {
	return obj.Add(ObjectSize(obj))
}

func slotOffset(i int) uintptr {
	return HeaderSize + uintptr(i)*memory.WordSize
}

// ReferenceAddress returns the address of the i-th reference slot.
func ReferenceAddress(obj memory.Pointer, i int) memory.Pointer {
	return obj.Add(slotOffset(i))
}

// ReadReference ...
func ReadReference(obj memory.Pointer, i int) memory.Pointer {
	assertTrue(i >= 0 && i < ReadHeader(obj).NumReferences(), "reference slot out of range")
	return obj.ReadPointer(slotOffset(i))
}

// WriteReference stores ref into the i-th slot. It is a raw store; callers
// that need a write barrier go through the heap.
func WriteReference(obj memory.Pointer, i int, ref memory.Pointer) {
	assertTrue(i >= 0 && i < ReadHeader(obj).NumReferences(), "reference slot out of range")
	obj.WritePointer(slotOffset(i), ref)
}

// VisitReferences calls fn for every non-null reference of obj until fn
// returns false. It reports whether all references were visited.
func VisitReferences(obj memory.Pointer, fn func(slot int, ref memory.Pointer) bool) bool {
	n := ReadHeader(obj).NumReferences()
	for i := 0; i < n; i++ {
		ref := obj.ReadPointer(slotOffset(i))
		if ref.IsNull() {
			continue
		}
		if !fn(i, ref) {
			return false
		}
	}
	return true
}
