package chunk

import (
	"math/bits"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// ErrOutOfChunks is returned when the reserved space has no free aligned chunk.
var ErrOutOfChunks = errors.New("out of aligned chunks")

// ProviderConfig ...
type ProviderConfig struct {
	// AlignedChunkSize must be a power of two.
	AlignedChunkSize uintptr

	// ReservedSize is the address space reserved for aligned chunks, a
	// multiple of AlignedChunkSize.
	ReservedSize uintptr

	// AlignedObjectsStartOffset and UnalignedObjectsStartOffset include the
	// chunk header and everything the remembered set places after it.
	AlignedObjectsStartOffset   uintptr
	UnalignedObjectsStartOffset uintptr
}

// Provider carves aligned chunks out of one reserved region with a buddy
// allocator and maps every unaligned chunk separately.
type Provider struct {
	conf         ProviderConfig
	chunkSizeLog uint

	reserved  *memory.Region
	chunks    buddy
	numInUse  int
	unaligned *btree.BTree
}

const unalignedTreeDegree = 8

// unalignedRegion is ordered by base. A nil region is a lookup key.
type unalignedRegion struct {
	base   memory.Pointer
	region *memory.Region
}

func (r *unalignedRegion) Less(item btree.Item) bool {
	return r.base < item.(*unalignedRegion).base
}

func validateProviderConfig(conf ProviderConfig) error {
	if !memory.IsPowerOfTwo(conf.AlignedChunkSize) {
		return errors.Errorf("aligned chunk size %d is not a power of two", conf.AlignedChunkSize)
	}
	if conf.AlignedObjectsStartOffset < HeaderSize || conf.UnalignedObjectsStartOffset < HeaderSize {
		return errors.New("objects start offset must include the chunk header")
	}
	if !memory.IsAligned(conf.AlignedObjectsStartOffset, layout.Alignment) ||
		!memory.IsAligned(conf.UnalignedObjectsStartOffset, layout.Alignment) {
		return errors.New("objects start offset must be aligned")
	}
	if conf.ReservedSize == 0 || conf.ReservedSize%conf.AlignedChunkSize != 0 {
		return errors.Errorf("reserved size %d is not a positive multiple of the aligned chunk size", conf.ReservedSize)
	}
	if conf.AlignedObjectsStartOffset >= conf.AlignedChunkSize {
		return errors.Errorf("aligned chunk header (%d bytes) does not fit into %d bytes",
			conf.AlignedObjectsStartOffset, conf.AlignedChunkSize)
	}
	return nil
}

// NewProvider ...
func NewProvider(conf ProviderConfig) (*Provider, error) {
	if err := validateProviderConfig(conf); err != nil {
		return nil, err
	}

	reserved, err := memory.MapAligned(conf.ReservedSize, conf.AlignedChunkSize)
	if err != nil {
		return nil, errors.Wrap(err, "reserve aligned chunk space")
	}

	p := &Provider{
		conf:         conf,
		chunkSizeLog: uint(bits.TrailingZeros64(uint64(conf.AlignedChunkSize))),
		reserved:     reserved,
		unaligned:    btree.New(unalignedTreeDegree),
	}
	buddyInit(&p.chunks, p.chunkSizeLog, conf.ReservedSize/conf.AlignedChunkSize, reserved.Base())
	return p, nil
}

// AlignedChunkSize ...
func (p *Provider) AlignedChunkSize() uintptr {
	return p.conf.AlignedChunkSize
}

// AlignedObjectsStartOffset ...
func (p *Provider) AlignedObjectsStartOffset() uintptr {
	return p.conf.AlignedObjectsStartOffset
}

// UnalignedObjectsStartOffset ...
func (p *Provider) UnalignedObjectsStartOffset() uintptr {
	return p.conf.UnalignedObjectsStartOffset
}

// UsableAlignedChunkBytes ...
func (p *Provider) UsableAlignedChunkBytes() uintptr {
	return p.conf.AlignedChunkSize - p.conf.AlignedObjectsStartOffset
}

// ProduceAligned returns an empty aligned chunk. Chunk memory may be reused
// from a released chunk; its remembered set must be reinitialized by the caller.
func (p *Provider) ProduceAligned() (Aligned, error) {
	offset, ok := p.chunks.allocate(p.chunkSizeLog)
	if !ok {
		return Aligned{}, errors.Wrapf(ErrOutOfChunks, "produce aligned chunk (%d in use)", p.numInUse)
	}
	p.numInUse++

	c := Aligned{Chunk: Chunk{base: p.reserved.Base().Add(offset)}}
	c.init(p.conf.AlignedChunkSize, p.conf.AlignedObjectsStartOffset, false)
	return c, nil
}

// ProduceUnaligned returns a chunk sized for one object of objectSize bytes.
// The object space is reserved: Top equals End.
func (p *Provider) ProduceUnaligned(objectSize uintptr) (Unaligned, error) {
	size := p.conf.UnalignedObjectsStartOffset + memory.AlignUp(objectSize, layout.Alignment)
	r, err := memory.MapAligned(size, layout.Alignment)
	if err != nil {
		return Unaligned{}, errors.Wrap(err, "produce unaligned chunk")
	}
	p.unaligned.ReplaceOrInsert(&unalignedRegion{base: r.Base(), region: r})

	c := Unaligned{Chunk: Chunk{base: r.Base()}}
	c.init(size, p.conf.UnalignedObjectsStartOffset, true)
	c.SetTop(c.End())
	return c, nil
}

// ReleaseAligned returns the chunk memory to the reserved space.
func (p *Provider) ReleaseAligned(c Aligned) {
	c.SetGeneration(NoGeneration)
	p.numInUse--
	p.chunks.deallocate(c.Base().Offset(p.reserved.Base()), p.chunkSizeLog)
}

// ReleaseUnaligned unmaps the chunk.
func (p *Provider) ReleaseUnaligned(c Unaligned) error {
	item := p.unaligned.Delete(&unalignedRegion{base: c.Base()})
	if item == nil {
		return errors.Errorf("unknown unaligned chunk %#x", uintptr(c.Base()))
	}
	return item.(*unalignedRegion).region.Release()
}

// EnclosingAligned returns the aligned chunk containing ptr.
func (p *Provider) EnclosingAligned(ptr memory.Pointer) Aligned {
	return EnclosingAligned(ptr, p.conf.AlignedChunkSize)
}

// EnclosingUnaligned returns the unaligned chunk whose object is obj.
func (p *Provider) EnclosingUnaligned(obj memory.Pointer) Unaligned {
	return EnclosingUnaligned(obj, p.conf.UnalignedObjectsStartOffset)
}

// Enclosing returns the chunk of obj, using its header to tell the kinds apart.
func (p *Provider) Enclosing(obj memory.Pointer) Chunk {
	if layout.ReadHeader(obj).IsUnaligned() {
		return p.EnclosingUnaligned(obj).Chunk
	}
	return p.EnclosingAligned(obj).Chunk
}

// ChunkOf returns the chunk whose memory contains ptr. Unlike Enclosing, ptr
// need not be the start of an object.
func (p *Provider) ChunkOf(ptr memory.Pointer) (Chunk, bool) {
	if p.reserved != nil && p.reserved.Contains(ptr) {
		return p.EnclosingAligned(ptr).Chunk, true
	}
	if r := p.unalignedRegionOf(ptr); r != nil {
		return Chunk{base: r.base}, true
	}
	return Chunk{}, false
}

// unalignedRegionOf finds the region with the greatest base not above ptr.
func (p *Provider) unalignedRegionOf(ptr memory.Pointer) *unalignedRegion {
	var found *unalignedRegion
	p.unaligned.DescendLessOrEqual(&unalignedRegion{base: ptr}, func(item btree.Item) bool {
		found = item.(*unalignedRegion)
		return false
	})
	if found == nil || !found.region.Contains(ptr) {
		return nil
	}
	return found
}

// Owns reports whether ptr lies in memory of this provider.
func (p *Provider) Owns(ptr memory.Pointer) bool {
	if p.reserved != nil && p.reserved.Contains(ptr) {
		return true
	}
	return p.unalignedRegionOf(ptr) != nil
}

// NumAlignedChunks returns the number of aligned chunks in use.
func (p *Provider) NumAlignedChunks() int {
	return p.numInUse
}

// NumUnalignedChunks ...
func (p *Provider) NumUnalignedChunks() int {
	return p.unaligned.Len()
}

// Close unmaps every chunk.
func (p *Provider) Close() error {
	var firstErr error
	p.unaligned.Ascend(func(item btree.Item) bool {
		if err := item.(*unalignedRegion).region.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	p.unaligned.Clear(false)
	if p.reserved != nil {
		if err := p.reserved.Release(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.reserved = nil
	}
	p.numInUse = 0
	return firstErr
}
