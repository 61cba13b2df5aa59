package heap

import (
	"github.com/pkg/errors"

	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// Allocate returns a new object of size bytes with numRefs null reference
// slots. Objects allocated into the old generation are recorded in the
// remembered set before Allocate returns.
func (h *Heap) Allocate(gen chunk.Generation, size uintptr, numRefs int) (memory.Pointer, error) {
	s, err := h.spaceOf(gen)
	if err != nil {
		return memory.Null, err
	}
	if numRefs < 0 || numRefs > layout.MaxReferences {
		return memory.Null, errors.Errorf("invalid number of references %d", numRefs)
	}
	size = memory.AlignUp(size, layout.Alignment)
	if minSize := layout.SizeFor(numRefs, 0); size < minSize {
		return memory.Null, errors.Errorf("object of %d bytes cannot hold %d references", size, numRefs)
	}
	if size > layout.MaxObjectSize {
		return memory.Null, errors.Errorf("object of %d bytes is too large", size)
	}

	if size >= h.conf.LargeObjectThreshold {
		return h.allocateUnaligned(s, size, numRefs)
	}
	return h.allocateAligned(s, size, numRefs)
}

func (h *Heap) allocateAligned(s *space, size uintptr, numRefs int) (memory.Pointer, error) {
	obj := memory.Null
	if !s.current.IsNull() {
		obj = s.current.Allocate(size)
	}
	if obj.IsNull() {
		c, err := h.newAlignedChunk(s)
		if err != nil {
			return memory.Null, err
		}
		s.current = c
		obj = c.Allocate(size)
	}

	layout.Initialize(obj, size, numRefs, false)
	if s.generation == chunk.Old {
		h.rs.EnableRememberedSetForObject(s.current, obj)
	}
	return obj, nil
}

func (h *Heap) newAlignedChunk(s *space) (chunk.Aligned, error) {
	c, err := h.provider.ProduceAligned()
	if err != nil {
		return chunk.Aligned{}, errors.Wrapf(err, "allocate %v generation chunk", s.generation)
	}
	s.add(c.Chunk)
	if s.generation == chunk.Old {
		h.rs.EnableRememberedSetForAlignedChunk(c)
	} else {
		h.rs.ClearRememberedSetForAlignedChunk(c)
	}
	logger.Debugf("new %v generation aligned chunk %#x", s.generation, uintptr(c.Base()))
	return c, nil
}

func (h *Heap) allocateUnaligned(s *space, size uintptr, numRefs int) (memory.Pointer, error) {
	c, err := h.provider.ProduceUnaligned(size)
	if err != nil {
		return memory.Null, errors.Wrapf(err, "allocate %d byte object", size)
	}
	obj := c.Object()
	layout.Initialize(obj, size, numRefs, true)

	s.add(c.Chunk)
	if s.generation == chunk.Old {
		h.rs.EnableRememberedSetForUnalignedChunk(c)
	} else {
		h.rs.ClearRememberedSetForUnalignedChunk(c)
	}
	logger.Debugf("new %v generation unaligned chunk %#x for %d bytes", s.generation, uintptr(c.Base()), size)
	return obj, nil
}

// WriteReference stores referent into reference slot of holder and runs the
// post write barrier.
func (h *Heap) WriteReference(holder memory.Pointer, slot int, referent memory.Pointer) {
	layout.WriteReference(holder, slot, referent)
	h.rs.DirtyCardIfNecessary(holder, referent)

	if h.conf.VerifyRememberedSet {
		h.verifyBarrier(holder, referent)
	}
}

func (h *Heap) verifyBarrier(holder memory.Pointer, referent memory.Pointer) {
	if referent.IsNull() || h.completeCollection || !h.InYoungGeneration(referent) {
		return
	}
	hdr := layout.ReadHeader(holder)
	if !hdr.HasRememberedSet() {
		return
	}
	if hdr.IsUnaligned() {
		h.rs.DirtyCardForUnalignedObject(holder, true)
	} else {
		h.rs.DirtyCardForAlignedObject(holder, true)
	}
}
