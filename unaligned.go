package remset

import (
	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

// unalignedCardIndex is the only card of an unaligned chunk.
const unalignedCardIndex = 0

// UnalignedChunkRememberedSet keeps a single card for the one object of an
// unaligned chunk. The chunk header is laid out as
//
//	| chunk header | card | object
type UnalignedChunkRememberedSet struct {
	cardTableOffset uintptr
	cardTableSize   uintptr
	headerSize      uintptr
}

// NewUnalignedChunkRememberedSet ...
func NewUnalignedChunkRememberedSet() *UnalignedChunkRememberedSet {
	u := &UnalignedChunkRememberedSet{}
	u.cardTableOffset = chunk.HeaderSize
	u.cardTableSize = memory.AlignUp(cardtable.EntrySize, layout.Alignment)
	u.headerSize = u.cardTableOffset + u.cardTableSize
	return u
}

// HeaderSize ...
func (u *UnalignedChunkRememberedSet) HeaderSize() uintptr {
	return u.headerSize
}

// CardTableSize ...
func (u *UnalignedChunkRememberedSet) CardTableSize() uintptr {
	return u.cardTableSize
}

// CardTableStart ...
func (u *UnalignedChunkRememberedSet) CardTableStart(c chunk.Unaligned) memory.Pointer {
	return c.Base().Add(u.cardTableOffset)
}

// EnableRememberedSetForChunk ...
func (u *UnalignedChunkRememberedSet) EnableRememberedSetForChunk(c chunk.Unaligned) {
	cardtable.CleanTable(u.CardTableStart(c), u.cardTableSize)
	layout.SetRememberedSetBit(c.Object())
}

// ClearRememberedSet ...
func (u *UnalignedChunkRememberedSet) ClearRememberedSet(c chunk.Unaligned) {
	cardtable.CleanTable(u.CardTableStart(c), u.cardTableSize)
}

// DirtyCardForObject ...
func (u *UnalignedChunkRememberedSet) DirtyCardForObject(obj memory.Pointer, verifyOnly bool) {
	c := chunk.EnclosingUnaligned(obj, u.headerSize)
	table := u.CardTableStart(c)
	if verifyOnly {
		assertTrue(cardtable.IsDirtyEntryAtIndexUnchecked(table, unalignedCardIndex), "card must be dirty")
		return
	}
	cardtable.DirtyEntryAtIndex(table, unalignedCardIndex)
}

// WalkDirtyObjects visits the object of c if its card is dirty. The card
// stays dirty if the visitor fails.
func (u *UnalignedChunkRememberedSet) WalkDirtyObjects(c chunk.Unaligned, visitor ObjectVisitor, clean bool) error {
	table := u.CardTableStart(c)
	if !cardtable.IsDirtyEntryAtIndex(table, unalignedCardIndex) {
		return nil
	}
	if clean {
		cardtable.CleanEntryAtIndex(table, unalignedCardIndex)
	}
	if err := visitor(c.Object()); err != nil {
		if clean {
			cardtable.DirtyEntryAtIndex(table, unalignedCardIndex)
		}
		return err
	}
	return nil
}

// CleanCardTable ...
func (u *UnalignedChunkRememberedSet) CleanCardTable(c chunk.Unaligned) {
	cardtable.CleanEntryAtIndex(u.CardTableStart(c), unalignedCardIndex)
}

// Verify checks that the card is dirty if the object holds a young reference.
func (u *UnalignedChunkRememberedSet) Verify(c chunk.Unaligned, inYoungGeneration func(memory.Pointer) bool) bool {
	obj := c.Object()
	if !cardtable.Verify(u.CardTableStart(c), obj, layout.ObjectEnd(obj), inYoungGeneration) {
		logger.Errorf("remembered set of unaligned chunk %#x failed verification", uintptr(c.Base()))
		return false
	}
	return true
}

// VerifyOnlyCleanCards ...
func (u *UnalignedChunkRememberedSet) VerifyOnlyCleanCards(c chunk.Unaligned) bool {
	if !cardtable.IsCleanEntryAtIndex(u.CardTableStart(c), unalignedCardIndex) {
		logger.Errorf("unaligned chunk %#x has a dirty card", uintptr(c.Base()))
		return false
	}
	return true
}
