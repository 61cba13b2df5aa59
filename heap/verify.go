package heap

import (
	"fmt"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/pkg/errors"

	"github.com/QuangTung97/remset"
	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/memory"
)

// Verify checks the remembered set of every chunk. Old chunks must have a
// dirty card for every object referencing the young generation, young chunks
// must have clean cards only.
func (h *Heap) Verify() error {
	var failed []string
	total := 0

	h.old.aligned.each(func(c chunk.Chunk) bool {
		total++
		if !h.rs.VerifyAlignedChunk(chunk.AsAligned(c)) {
			failed = append(failed, fmt.Sprintf("old aligned %#x", uintptr(c.Base())))
		}
		return true
	})
	h.old.unaligned.each(func(c chunk.Chunk) bool {
		total++
		if !h.rs.VerifyUnalignedChunk(chunk.AsUnaligned(c)) {
			failed = append(failed, fmt.Sprintf("old unaligned %#x", uintptr(c.Base())))
		}
		return true
	})

	if h.young != nil {
		h.young.aligned.each(func(c chunk.Chunk) bool {
			total++
			if !h.rs.VerifyOnlyCleanAlignedChunk(chunk.AsAligned(c)) {
				failed = append(failed, fmt.Sprintf("young aligned %#x", uintptr(c.Base())))
			}
			return true
		})
		h.young.unaligned.each(func(c chunk.Chunk) bool {
			total++
			if !h.rs.VerifyOnlyCleanUnalignedChunk(chunk.AsUnaligned(c)) {
				failed = append(failed, fmt.Sprintf("young unaligned %#x", uintptr(c.Base())))
			}
			return true
		})
	}

	if len(failed) > 0 {
		logger.Errorf("remembered set verification failed for %d of %d chunks", len(failed), total)
		return errors.Wrapf(ErrVerificationFailed, "%d of %d chunks: %s",
			len(failed), total, strings.Join(failed, ", "))
	}
	return nil
}

// ChunkCards are the dirty card indices of one old chunk.
type ChunkCards struct {
	Base      memory.Pointer
	Unaligned bool
	Dirty     *roaring.Bitmap
}

// Snapshot ...
type Snapshot struct {
	Chunks []ChunkCards
}

// NumDirtyCards ...
func (s Snapshot) NumDirtyCards() uint64 {
	var n uint64
	for _, c := range s.Chunks {
		n += c.Dirty.GetCardinality()
	}
	return n
}

// Dirty returns the dirty cards of the chunk at base, nil if the chunk is not
// part of the snapshot.
func (s Snapshot) Dirty(base memory.Pointer) *roaring.Bitmap {
	for _, c := range s.Chunks {
		if c.Base == base {
			return c.Dirty
		}
	}
	return nil
}

// NewlyDirty returns, per chunk, the cards dirty in s but not in prev.
func (s Snapshot) NewlyDirty(prev Snapshot) Snapshot {
	result := Snapshot{}
	for _, c := range s.Chunks {
		dirty := c.Dirty.Clone()
		if old := prev.Dirty(c.Base); old != nil {
			dirty.AndNot(old)
		}
		if dirty.IsEmpty() {
			continue
		}
		result.Chunks = append(result.Chunks, ChunkCards{Base: c.Base, Unaligned: c.Unaligned, Dirty: dirty})
	}
	return result
}

// DirtyCardSnapshot records the dirty cards of every old chunk. It reads the
// cards without a safepoint, so concurrent barriers may or may not be seen.
func (h *Heap) DirtyCardSnapshot() Snapshot {
	cb, ok := h.rs.(*remset.CardTableBased)
	if !ok {
		return Snapshot{}
	}

	result := Snapshot{}
	h.old.aligned.each(func(c chunk.Chunk) bool {
		a := chunk.AsAligned(c)
		limit := cardtable.IndexLimitForMemorySize(a.End().Offset(a.ObjectsStart()))
		result.Chunks = append(result.Chunks, ChunkCards{
			Base:  c.Base(),
			Dirty: dirtyCards(cb.Aligned().CardTableStart(a), limit),
		})
		return true
	})
	h.old.unaligned.each(func(c chunk.Chunk) bool {
		result.Chunks = append(result.Chunks, ChunkCards{
			Base:      c.Base(),
			Unaligned: true,
			Dirty:     dirtyCards(cb.Unaligned().CardTableStart(chunk.AsUnaligned(c)), 1),
		})
		return true
	})
	return result
}

func dirtyCards(table memory.Pointer, limit uintptr) *roaring.Bitmap {
	bm := roaring.New()
	for index := uintptr(0); index < limit; index++ {
		if cardtable.IsDirtyEntryAtIndexUnchecked(table, index) {
			bm.Add(uint32(index))
		}
	}
	return bm
}
