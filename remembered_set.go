// Package remset tracks references from old to young objects of a
// generational heap.
//
// Write barriers dirty the card of the holder of a young reference. The
// collector scans the dirty cards of old chunks at a safepoint and cleans them
// afterwards. Aligned chunks keep a card table and a first object table in
// their header, unaligned chunks keep a single card.
package remset

import (
	"github.com/pkg/errors"

	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/logutil"
	"github.com/QuangTung97/remset/memory"
)

var logger = logutil.GetLogger("remset")

// ErrShouldNotReachHere is the panic value of operations that must never be
// called on the selected remembered set.
var ErrShouldNotReachHere = errors.New("should not reach here")

// ObjectVisitor is called for every object of a dirty card. Returning a non
// nil error stops the walk and the error is returned to the caller.
type ObjectVisitor func(obj memory.Pointer) error

// HeapState is what the remembered set needs to know about the heap.
type HeapState interface {
	InYoungGeneration(ptr memory.Pointer) bool
	IsCompleteCollection() bool
}

// RememberedSet ...
type RememberedSet interface {
	AlignedChunkHeaderSize() uintptr
	UnalignedChunkHeaderSize() uintptr

	EnableRememberedSetForAlignedChunk(c chunk.Aligned)
	EnableRememberedSetForUnalignedChunk(c chunk.Unaligned)
	EnableRememberedSetForObject(c chunk.Aligned, obj memory.Pointer)

	ClearRememberedSetForAlignedChunk(c chunk.Aligned)
	ClearRememberedSetForUnalignedChunk(c chunk.Unaligned)

	DirtyCardForAlignedObject(obj memory.Pointer, verifyOnly bool)
	DirtyCardForUnalignedObject(obj memory.Pointer, verifyOnly bool)
	DirtyCardIfNecessary(holder memory.Pointer, referent memory.Pointer)

	WalkDirtyObjectsOfAlignedChunk(c chunk.Aligned, visitor ObjectVisitor, clean bool) error
	WalkDirtyObjectsOfUnalignedChunk(c chunk.Unaligned, visitor ObjectVisitor, clean bool) error

	CleanCardTableOfAlignedChunk(c chunk.Aligned)
	CleanCardTableOfUnalignedChunk(c chunk.Unaligned)

	VerifyAlignedChunk(c chunk.Aligned) bool
	VerifyUnalignedChunk(c chunk.Unaligned) bool
	VerifyOnlyCleanAlignedChunk(c chunk.Aligned) bool
	VerifyOnlyCleanUnalignedChunk(c chunk.Unaligned) bool
}

// New selects the remembered set once for the whole heap.
func New(state HeapState, options ...Option) RememberedSet {
	opts := computeOptions(options...)
	if !opts.UseRememberedSet {
		logger.Infof("single generation heap, remembered set disabled")
		return NewNoRememberedSet()
	}
	logger.Infof("card table remembered set with %d byte aligned chunks", opts.AlignedChunkSize)
	return NewCardTableBased(opts.AlignedChunkSize, state)
}

func assertTrue(b bool, msg string) {
	if !b {
		panic(msg)
	}
}
