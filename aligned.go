package remset

import (
	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/fot"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// AlignedChunkRememberedSet manages the card table and first object table of
// aligned chunks. The chunk header is laid out as
//
//	| chunk header | card table | first object table | objects ...
//
// with every section rounded up to the object alignment. Both tables are
// sized for the whole chunk.
type AlignedChunkRememberedSet struct {
	chunkSize uintptr

	cardTableOffset uintptr
	cardTableSize   uintptr
	fotOffset       uintptr
	fotSize         uintptr
	headerSize      uintptr
}

// NewAlignedChunkRememberedSet ...
func NewAlignedChunkRememberedSet(chunkSize uintptr) *AlignedChunkRememberedSet {
	assertTrue(memory.IsPowerOfTwo(chunkSize), "aligned chunk size must be a power of two")

	a := &AlignedChunkRememberedSet{chunkSize: chunkSize}
	a.cardTableOffset = chunk.HeaderSize
	a.cardTableSize = memory.AlignUp(cardtable.TableSize(chunkSize), layout.Alignment)
	a.fotOffset = a.cardTableOffset + a.cardTableSize
	a.fotSize = memory.AlignUp(fot.TableSize(chunkSize), layout.Alignment)
	a.headerSize = a.fotOffset + a.fotSize
	return a
}

// ChunkSize ...
func (a *AlignedChunkRememberedSet) ChunkSize() uintptr {
	return a.chunkSize
}

// HeaderSize is the objects start offset of an aligned chunk.
func (a *AlignedChunkRememberedSet) HeaderSize() uintptr {
	return a.headerSize
}

// CardTableSize ...
func (a *AlignedChunkRememberedSet) CardTableSize() uintptr {
	return a.cardTableSize
}

// FirstObjectTableSize ...
func (a *AlignedChunkRememberedSet) FirstObjectTableSize() uintptr {
	return a.fotSize
}

// CardTableStart ...
func (a *AlignedChunkRememberedSet) CardTableStart(c chunk.Aligned) memory.Pointer {
	return c.Base().Add(a.cardTableOffset)
}

// FirstObjectTableStart ...
func (a *AlignedChunkRememberedSet) FirstObjectTableStart(c chunk.Aligned) memory.Pointer {
	return c.Base().Add(a.fotOffset)
}

// EnableRememberedSetForChunk builds the remembered set of a chunk that
// already holds objects, e.g. one promoted to the old generation.
func (a *AlignedChunkRememberedSet) EnableRememberedSetForChunk(c chunk.Aligned) {
	a.initializeTables(c)
	c.WalkObjects(func(obj memory.Pointer) bool {
		a.EnableRememberedSetForObject(c, obj)
		return true
	})
}

func (a *AlignedChunkRememberedSet) initializeTables(c chunk.Aligned) {
	cardtable.CleanTable(a.CardTableStart(c), a.cardTableSize)
	fot.InitializeTable(a.FirstObjectTableStart(c), a.fotSize)
}

// EnableRememberedSetForObject records a freshly allocated object.
func (a *AlignedChunkRememberedSet) EnableRememberedSetForObject(c chunk.Aligned, obj memory.Pointer) {
	objectsStart := c.ObjectsStart()
	startOffset := obj.Offset(objectsStart)
	endOffset := layout.ObjectEnd(obj).Offset(objectsStart)
	fot.SetTableForObject(a.FirstObjectTableStart(c), startOffset, endOffset)
	layout.SetRememberedSetBit(obj)
}

// ClearRememberedSet resets both tables, e.g. when the chunk is reused.
func (a *AlignedChunkRememberedSet) ClearRememberedSet(c chunk.Aligned) {
	a.initializeTables(c)
}

func (a *AlignedChunkRememberedSet) cardIndex(c chunk.Aligned, obj memory.Pointer) uintptr {
	return cardtable.MemoryOffsetToIndex(obj.Offset(c.ObjectsStart()))
}

// DirtyCardForObject dirties the card of the start of obj. With verifyOnly it
// instead asserts that the card is already dirty.
func (a *AlignedChunkRememberedSet) DirtyCardForObject(obj memory.Pointer, verifyOnly bool) {
	c := chunk.EnclosingAligned(obj, a.chunkSize)
	table := a.CardTableStart(c)
	index := a.cardIndex(c, obj)
	if verifyOnly {
		assertTrue(cardtable.IsDirtyEntryAtIndexUnchecked(table, index), "card must be dirty")
		return
	}
	cardtable.DirtyEntryAtIndex(table, index)
}

// WalkDirtyObjects visits every object that starts in a dirty card. The
// first object table only locates the first object of a card, the rest are
// reached by striding over object sizes. With clean, each dirty card is
// cleaned before its objects are visited. A card whose walk is aborted by
// the visitor is left dirty.
func (a *AlignedChunkRememberedSet) WalkDirtyObjects(c chunk.Aligned, visitor ObjectVisitor, clean bool) error {
	table := a.CardTableStart(c)
	fotStart := a.FirstObjectTableStart(c)
	objectsStart := c.ObjectsStart()
	objectsLimit := c.Top()
	indexLimit := cardtable.IndexLimitForMemorySize(objectsLimit.Offset(objectsStart))

	for index := uintptr(0); index < indexLimit; index++ {
		if !cardtable.IsDirtyEntryAtIndex(table, index) {
			continue
		}
		if clean {
			cardtable.CleanEntryAtIndex(table, index)
		}

		ptr := fot.GetFirstObjectImprecise(fotStart, objectsStart, index)
		walkLimit := memory.Min(cardtable.IndexToMemoryPointer(objectsStart, index+1), objectsLimit)
		for ptr < walkLimit {
			if err := visitor(ptr); err != nil {
				if clean {
					cardtable.DirtyEntryAtIndex(table, index)
				}
				return err
			}
			ptr = layout.ObjectEnd(ptr)
		}
	}
	return nil
}

// CleanCardTable cleans every card below the chunk top. Cards at and above
// top are clean already.
func (a *AlignedChunkRememberedSet) CleanCardTable(c chunk.Aligned) {
	cardtable.CleanTableToPointer(a.CardTableStart(c), c.ObjectsStart(), c.Top())
}

// Verify ...
func (a *AlignedChunkRememberedSet) Verify(c chunk.Aligned, inYoungGeneration func(memory.Pointer) bool) bool {
	table := a.CardTableStart(c)
	objectsStart := c.ObjectsStart()
	top := c.Top()

	success := cardtable.Verify(table, objectsStart, top, inYoungGeneration)
	success = fot.Verify(a.FirstObjectTableStart(c), objectsStart, top) && success

	indexLimit := cardtable.IndexLimitForMemorySize(c.End().Offset(objectsStart))
	// The card containing top may still hold the last objects.
	topIndex := cardtable.IndexLimitForMemorySize(top.Offset(objectsStart))
	success = cardtable.VerifyAllClean(table, topIndex, indexLimit) && success

	if !success {
		logger.Errorf("remembered set of aligned chunk %#x in the %v generation failed verification",
			uintptr(c.Base()), c.Generation())
	}
	return success
}

// VerifyOnlyCleanCards checks that no card of the chunk is dirty.
func (a *AlignedChunkRememberedSet) VerifyOnlyCleanCards(c chunk.Aligned) bool {
	indexLimit := cardtable.IndexLimitForMemorySize(c.End().Offset(c.ObjectsStart()))
	if !cardtable.VerifyAllClean(a.CardTableStart(c), 0, indexLimit) {
		logger.Errorf("aligned chunk %#x has dirty cards", uintptr(c.Base()))
		return false
	}
	return true
}
