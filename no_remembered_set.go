package remset

import (
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// NoRememberedSet is used by a heap with a single generation. Chunk headers
// carry no tables and nothing may ever ask for a card.
type NoRememberedSet struct{}

var _ RememberedSet = NoRememberedSet{}

// NewNoRememberedSet ...
func NewNoRememberedSet() NoRememberedSet {
	return NoRememberedSet{}
}

func shouldNotReachHere() {
	panic(ErrShouldNotReachHere)
}

// AlignedChunkHeaderSize ...
func (NoRememberedSet) AlignedChunkHeaderSize() uintptr {
	return memory.AlignUp(chunk.HeaderSize, layout.Alignment)
}

// UnalignedChunkHeaderSize ...
func (NoRememberedSet) UnalignedChunkHeaderSize() uintptr {
	return memory.AlignUp(chunk.HeaderSize, layout.Alignment)
}

// EnableRememberedSetForAlignedChunk ...
func (NoRememberedSet) EnableRememberedSetForAlignedChunk(chunk.Aligned) {
}

// EnableRememberedSetForUnalignedChunk ...
func (NoRememberedSet) EnableRememberedSetForUnalignedChunk(chunk.Unaligned) {
}

// EnableRememberedSetForObject ...
func (NoRememberedSet) EnableRememberedSetForObject(chunk.Aligned, memory.Pointer) {
}

// ClearRememberedSetForAlignedChunk ...
func (NoRememberedSet) ClearRememberedSetForAlignedChunk(chunk.Aligned) {
}

// ClearRememberedSetForUnalignedChunk ...
func (NoRememberedSet) ClearRememberedSetForUnalignedChunk(chunk.Unaligned) {
}

// DirtyCardForAlignedObject ...
func (NoRememberedSet) DirtyCardForAlignedObject(memory.Pointer, bool) {
	shouldNotReachHere()
}

// DirtyCardForUnalignedObject ...
func (NoRememberedSet) DirtyCardForUnalignedObject(memory.Pointer, bool) {
	shouldNotReachHere()
}

// DirtyCardIfNecessary does nothing: without a young generation no store
// creates an old to young reference.
func (NoRememberedSet) DirtyCardIfNecessary(memory.Pointer, memory.Pointer) {
}

// WalkDirtyObjectsOfAlignedChunk ...
func (NoRememberedSet) WalkDirtyObjectsOfAlignedChunk(chunk.Aligned, ObjectVisitor, bool) error {
	shouldNotReachHere()
	return nil
}

// WalkDirtyObjectsOfUnalignedChunk ...
func (NoRememberedSet) WalkDirtyObjectsOfUnalignedChunk(chunk.Unaligned, ObjectVisitor, bool) error {
	shouldNotReachHere()
	return nil
}

// CleanCardTableOfAlignedChunk ...
func (NoRememberedSet) CleanCardTableOfAlignedChunk(chunk.Aligned) {
	shouldNotReachHere()
}

// CleanCardTableOfUnalignedChunk ...
func (NoRememberedSet) CleanCardTableOfUnalignedChunk(chunk.Unaligned) {
	shouldNotReachHere()
}

// VerifyAlignedChunk ...
func (NoRememberedSet) VerifyAlignedChunk(chunk.Aligned) bool {
	return true
}

// VerifyUnalignedChunk ...
func (NoRememberedSet) VerifyUnalignedChunk(chunk.Unaligned) bool {
	return true
}

// VerifyOnlyCleanAlignedChunk ...
func (NoRememberedSet) VerifyOnlyCleanAlignedChunk(chunk.Aligned) bool {
	return true
}

// VerifyOnlyCleanUnalignedChunk ...
func (NoRememberedSet) VerifyOnlyCleanUnalignedChunk(chunk.Unaligned) bool {
	return true
}
