// Package brick reinterprets the card table storage of an aligned chunk as a
// table of 16-bit offsets to relocation records.
//
// The brick table is only meaningful once the remembered set of the chunk is
// no longer needed, e.g. during compaction. Writing to it destroys the card
// table of the chunk.
package brick

import (
	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
)

const (
	// BytesCoveredByEntry ...
	BytesCoveredByEntry = 2 * cardtable.BytesCoveredByEntry

	// EntrySize ...
	EntrySize = 2

	maxEntry = 1<<16 - 1
)

// CardTableLayout locates the card table storage of an aligned chunk.
type CardTableLayout interface {
	CardTableStart(c chunk.Aligned) memory.Pointer
	CardTableSize() uintptr
}

// Table ...
type Table struct {
	cards CardTableLayout
}

// New ...
func New(cards CardTableLayout) *Table {
	return &Table{cards: cards}
}

func assertTrue(b bool, msg string) {
	if !b {
		panic(msg)
	}
}

// Length returns the number of entries needed to cover the objects of c.
func (t *Table) Length(c chunk.Aligned) uintptr {
	length := memory.CeilDiv(c.End().Offset(c.ObjectsStart()), BytesCoveredByEntry)
	assertTrue(length*EntrySize <= t.cards.CardTableSize(), "brick table does not fit into the card table")
	return length
}

// GetIndex ...
func (t *Table) GetIndex(c chunk.Aligned, ptr memory.Pointer) uintptr {
	return ptr.Offset(c.ObjectsStart()) / BytesCoveredByEntry
}

func (t *Table) entryAddress(c chunk.Aligned, index uintptr) memory.Pointer {
	assertTrue(index < t.Length(c), "brick index out of range")
	return t.cards.CardTableStart(c).Add(index * EntrySize)
}

// GetEntry ...
func (t *Table) GetEntry(c chunk.Aligned, index uintptr) memory.Pointer {
	entry := t.entryAddress(c, index).ReadUint16(0)
	return c.ObjectsStart().Add(uintptr(entry) * layout.Alignment)
}

// SetEntry ...
func (t *Table) SetEntry(c chunk.Aligned, index uintptr, ptr memory.Pointer) {
	offset := ptr.Offset(c.ObjectsStart())
	assertTrue(memory.IsAligned(offset, layout.Alignment), "brick entry must be aligned")
	scaled := offset / layout.Alignment
	assertTrue(scaled <= maxEntry, "brick entry offset too large")
	t.entryAddress(c, index).WriteUint16(0, uint16(scaled))
}
