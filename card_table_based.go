package remset

import (
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// CardTableBased remembers old to young references with card tables.
type CardTableBased struct {
	aligned   *AlignedChunkRememberedSet
	unaligned *UnalignedChunkRememberedSet
	state     HeapState
}

var _ RememberedSet = &CardTableBased{}

// NewCardTableBased ...
func NewCardTableBased(alignedChunkSize uintptr, state HeapState) *CardTableBased {
	return &CardTableBased{
		aligned:   NewAlignedChunkRememberedSet(alignedChunkSize),
		unaligned: NewUnalignedChunkRememberedSet(),
		state:     state,
	}
}

// Aligned ...
func (r *CardTableBased) Aligned() *AlignedChunkRememberedSet {
	return r.aligned
}

// Unaligned ...
func (r *CardTableBased) Unaligned() *UnalignedChunkRememberedSet {
	return r.unaligned
}

// AlignedChunkHeaderSize ...
func (r *CardTableBased) AlignedChunkHeaderSize() uintptr {
	return r.aligned.HeaderSize()
}

// UnalignedChunkHeaderSize ...
func (r *CardTableBased) UnalignedChunkHeaderSize() uintptr {
	return r.unaligned.HeaderSize()
}

// EnableRememberedSetForAlignedChunk ...
func (r *CardTableBased) EnableRememberedSetForAlignedChunk(c chunk.Aligned) {
	r.aligned.EnableRememberedSetForChunk(c)
}

// EnableRememberedSetForUnalignedChunk ...
func (r *CardTableBased) EnableRememberedSetForUnalignedChunk(c chunk.Unaligned) {
	r.unaligned.EnableRememberedSetForChunk(c)
}

// EnableRememberedSetForObject ...
func (r *CardTableBased) EnableRememberedSetForObject(c chunk.Aligned, obj memory.Pointer) {
	r.aligned.EnableRememberedSetForObject(c, obj)
}

// ClearRememberedSetForAlignedChunk ...
func (r *CardTableBased) ClearRememberedSetForAlignedChunk(c chunk.Aligned) {
	r.aligned.ClearRememberedSet(c)
}

// ClearRememberedSetForUnalignedChunk ...
func (r *CardTableBased) ClearRememberedSetForUnalignedChunk(c chunk.Unaligned) {
	r.unaligned.ClearRememberedSet(c)
}

// DirtyCardForAlignedObject ...
func (r *CardTableBased) DirtyCardForAlignedObject(obj memory.Pointer, verifyOnly bool) {
	r.aligned.DirtyCardForObject(obj, verifyOnly)
}

// DirtyCardForUnalignedObject ...
func (r *CardTableBased) DirtyCardForUnalignedObject(obj memory.Pointer, verifyOnly bool) {
	r.unaligned.DirtyCardForObject(obj, verifyOnly)
}

// DirtyCardIfNecessary is the post write barrier for a store of referent into
// holder. It dirties the card of holder only if the store creates a reference
// that a young collection must treat as a root.
func (r *CardTableBased) DirtyCardIfNecessary(holder memory.Pointer, referent memory.Pointer) {
	if holder.IsNull() || referent.IsNull() {
		return
	}
	if r.state.IsCompleteCollection() {
		return
	}
	if !r.state.InYoungGeneration(referent) {
		return
	}

	h := layout.ReadHeader(holder)
	if !h.HasRememberedSet() {
		return
	}
	if h.IsUnaligned() {
		r.unaligned.DirtyCardForObject(holder, false)
	} else {
		r.aligned.DirtyCardForObject(holder, false)
	}
}

// WalkDirtyObjectsOfAlignedChunk ...
func (r *CardTableBased) WalkDirtyObjectsOfAlignedChunk(c chunk.Aligned, visitor ObjectVisitor, clean bool) error {
	return r.aligned.WalkDirtyObjects(c, visitor, clean)
}

// WalkDirtyObjectsOfUnalignedChunk ...
func (r *CardTableBased) WalkDirtyObjectsOfUnalignedChunk(c chunk.Unaligned, visitor ObjectVisitor, clean bool) error {
	return r.unaligned.WalkDirtyObjects(c, visitor, clean)
}

// CleanCardTableOfAlignedChunk ...
func (r *CardTableBased) CleanCardTableOfAlignedChunk(c chunk.Aligned) {
	r.aligned.CleanCardTable(c)
}

// CleanCardTableOfUnalignedChunk ...
func (r *CardTableBased) CleanCardTableOfUnalignedChunk(c chunk.Unaligned) {
	r.unaligned.CleanCardTable(c)
}

// VerifyAlignedChunk ...
func (r *CardTableBased) VerifyAlignedChunk(c chunk.Aligned) bool {
	return r.aligned.Verify(c, r.state.InYoungGeneration)
}

// VerifyUnalignedChunk ...
func (r *CardTableBased) VerifyUnalignedChunk(c chunk.Unaligned) bool {
	return r.unaligned.Verify(c, r.state.InYoungGeneration)
}

// VerifyOnlyCleanAlignedChunk ...
func (r *CardTableBased) VerifyOnlyCleanAlignedChunk(c chunk.Aligned) bool {
	return r.aligned.VerifyOnlyCleanCards(c)
}

// VerifyOnlyCleanUnalignedChunk ...
func (r *CardTableBased) VerifyOnlyCleanUnalignedChunk(c chunk.Unaligned) bool {
	return r.unaligned.VerifyOnlyCleanCards(c)
}
