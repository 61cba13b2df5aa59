package heap

import (
	"github.com/pkg/errors"

	"github.com/QuangTung97/remset"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/hotcard"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
	"github.com/QuangTung97/remset/safepoint"
)

// ScanDirtyCards visits every old object that starts in a dirty card, at a
// safepoint. With clean, the cards are clean afterwards. A heap with a
// single generation has no dirty cards.
func (h *Heap) ScanDirtyCards(clean bool, visitor remset.ObjectVisitor) error {
	if !h.Generational() {
		return nil
	}
	if clean && h.hot != nil {
		h.recordHotCards(h.DirtyCardSnapshot())
	}

	var err error
	safepoint.Run(func() {
		err = h.scanDirtyCards(clean, visitor)
	})
	return err
}

func (h *Heap) scanDirtyCards(clean bool, visitor remset.ObjectVisitor) error {
	var err error
	h.old.aligned.each(func(c chunk.Chunk) bool {
		err = h.rs.WalkDirtyObjectsOfAlignedChunk(chunk.AsAligned(c), visitor, clean)
		return err == nil
	})
	if err != nil {
		return err
	}
	h.old.unaligned.each(func(c chunk.Chunk) bool {
		err = h.rs.WalkDirtyObjectsOfUnalignedChunk(chunk.AsUnaligned(c), visitor, clean)
		return err == nil
	})
	return err
}

func (h *Heap) recordHotCards(snapshot Snapshot) {
	for _, c := range snapshot.Chunks {
		it := c.Dirty.Iterator()
		for it.HasNext() {
			h.hot.Record(hotcard.Key{Chunk: c.Base, Index: it.Next()})
		}
	}
}

// HotCards returns the cards that cleaning scans keep finding dirty, most
// recent first.
func (h *Heap) HotCards() []hotcard.Key {
	if h.hot == nil {
		return nil
	}
	return h.hot.Hot()
}

// Root is an old to young reference.
type Root struct {
	Holder   memory.Pointer
	Slot     int
	Referent memory.Pointer
}

// OldToYoungRoots returns the references from old objects in dirty cards
// into the young generation. Cards are left dirty.
func (h *Heap) OldToYoungRoots() ([]Root, error) {
	var roots []Root
	err := h.ScanDirtyCards(false, func(obj memory.Pointer) error {
		layout.VisitReferences(obj, func(slot int, ref memory.Pointer) bool {
			if h.InYoungGeneration(ref) {
				roots = append(roots, Root{Holder: obj, Slot: slot, Referent: ref})
			}
			return true
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roots, nil
}

// PromoteChunk moves a young chunk with all of its objects into the old
// generation. The cards of objects referencing the young generation are
// dirtied.
func (h *Heap) PromoteChunk(c chunk.Chunk) error {
	if !h.Generational() {
		return ErrSingleGeneration
	}
	if c.Generation() != chunk.Young {
		return errors.Errorf("chunk %#x is in the %v generation", uintptr(c.Base()), c.Generation())
	}

	h.young.remove(c)
	h.old.add(c)
	if c.IsUnaligned() {
		h.rs.EnableRememberedSetForUnalignedChunk(chunk.AsUnaligned(c))
	} else {
		h.rs.EnableRememberedSetForAlignedChunk(chunk.AsAligned(c))
	}

	c.WalkObjects(func(obj memory.Pointer) bool {
		layout.VisitReferences(obj, func(_ int, ref memory.Pointer) bool {
			h.rs.DirtyCardIfNecessary(obj, ref)
			return true
		})
		return true
	})

	logger.Infof("promoted chunk %#x with %d bytes", uintptr(c.Base()), c.Top().Offset(c.ObjectsStart()))
	return nil
}

// ReleaseChunk returns a chunk to the provider. No object of the chunk may
// be referenced anymore.
func (h *Heap) ReleaseChunk(c chunk.Chunk) error {
	s, err := h.spaceOf(c.Generation())
	if err != nil {
		return errors.Wrapf(err, "release chunk %#x", uintptr(c.Base()))
	}
	s.remove(c)
	if h.hot != nil {
		h.hot.Forget(c.Base())
	}

	if c.IsUnaligned() {
		return h.provider.ReleaseUnaligned(chunk.AsUnaligned(c))
	}
	h.provider.ReleaseAligned(chunk.AsAligned(c))
	return nil
}
