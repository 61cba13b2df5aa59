// Package fot implements the first object table: one signed byte per card
// that locates the object crossing onto that card.
//
// Entry encoding:
//
//	[-128, 0]   memory offset: the object starts -entry*layout.Alignment bytes
//	            before the start of this card
//	[1, 63]     linear: the memory offset entry is entry cards to the left
//	[64, 126]   exponential, biased by 58: the answer is 2^(entry-58) cards
//	            to the left, or further left
//	127         uninitialized
//
// An object writes a memory offset entry on the first card whose start it
// covers, up to 63 linear entries after that, then runs of exponential
// entries of doubling length. A lookup therefore needs at most one linear hop
// after O(log(object size)) exponential hops.
package fot

import (
	"fmt"

	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/logutil"
	"github.com/QuangTung97/remset/memory"
)

const (
	// EntrySize ...
	EntrySize = 1

	entryMin = -128
	entryMax = 127

	// UninitializedEntry ...
	UninitializedEntry int8 = entryMax

	memoryOffsetMin = entryMin
	memoryOffsetMax = 0

	linearOffsetMin = 1
	linearOffsetMax = 63

	exponentBias = 58
	exponentMin  = 6
	exponentMax  = 55

	biasedExponentMin = exponentMin + exponentBias
	biasedExponentMax = 126

	memoryOffsetScale = layout.Alignment
)

var logger = logutil.GetLogger("remset")

func assertTrue(b bool, msg string) {
	if !b {
		panic(msg)
	}
}

// TableSize returns the table bytes needed for memorySize bytes of objects.
func TableSize(memorySize uintptr) uintptr {
	return cardtable.IndexLimitForMemorySize(memorySize) * EntrySize
}

// InitializeTable marks size bytes of table as uninitialized.
func InitializeTable(table memory.Pointer, size uintptr) {
	table.Fill(size, byte(UninitializedEntry))
}

// IsUninitializedIndex ...
func IsUninitializedIndex(table memory.Pointer, index uintptr) bool {
	return getEntryAtIndex(table, index) == UninitializedEntry
}

func getEntryAtIndex(table memory.Pointer, index uintptr) int8 {
	return table.ReadInt8(index * EntrySize)
}

func setEntryAtIndex(table memory.Pointer, index uintptr, entry int8) {
	existing := getEntryAtIndex(table, index)
	if existing != UninitializedEntry && existing != entry {
		panic(fmt.Sprintf("first object table entry %d at index %d would be overwritten with %d",
			existing, index, entry))
	}
	table.WriteInt8(index*EntrySize, entry)
}

func isMemoryOffsetEntry(entry int8) bool {
	return entry >= memoryOffsetMin && entry <= memoryOffsetMax
}

func isLinearOffsetEntry(entry int8) bool {
	return entry >= linearOffsetMin && entry <= linearOffsetMax
}

func isExponentialEntry(entry int8) bool {
	return entry >= biasedExponentMin && entry <= biasedExponentMax
}

func biasExponent(exponent int) int8 {
	assertTrue(exponent >= exponentMin && exponent <= exponentMax, "exponent out of range")
	return int8(exponent + exponentBias)
}

func unbiasExponent(entry int8) int {
	exponent := int(entry) - exponentBias
	assertTrue(exponent >= exponentMin && exponent <= exponentMax, "biased exponent out of range")
	return exponent
}

func exponentToOffset(exponent int) uintptr {
	return uintptr(1) << uint(exponent)
}

// memoryOffsetToEntry encodes the distance from an object start back to the
// start of the card it crosses onto.
func memoryOffsetToEntry(offset uintptr) int8 {
	assertTrue(memory.IsAligned(offset, memoryOffsetScale), "memory offset must be aligned")
	scaled := offset / memoryOffsetScale
	assertTrue(scaled <= -memoryOffsetMin, "memory offset too large for an entry")
	return int8(-int(scaled))
}

func entryToMemoryOffset(index uintptr, entry int8) uintptr {
	assertTrue(isMemoryOffsetEntry(entry), "not a memory offset entry")
	return cardtable.IndexToMemoryOffset(index) - uintptr(-int(entry))*memoryOffsetScale
}

// SetTableForObject records an object occupying [startOffset, endOffset),
// relative to the start of the objects area. It is called exactly once per
// object, when the object is allocated or its chunk gains a remembered set.
func SetTableForObject(table memory.Pointer, startOffset uintptr, endOffset uintptr) {
	assertTrue(startOffset < endOffset, "object must not be empty")
	assertTrue(memory.IsAligned(startOffset, layout.Alignment), "object start must be aligned")

	startIndex := cardtable.MemoryOffsetToIndex(startOffset)
	endIndex := cardtable.MemoryOffsetToIndex(endOffset - 1)
	startsAtCardBoundary := memory.IsAligned(startOffset, cardtable.BytesCoveredByEntry)
	if startIndex == endIndex && !startsAtCardBoundary {
		// Neither starts at nor crosses a card boundary.
		return
	}

	memoryIndex := startIndex
	if !startsAtCardBoundary {
		memoryIndex++
	}
	memoryEntry := memoryOffsetToEntry(cardtable.IndexToMemoryOffset(memoryIndex) - startOffset)
	setEntryAtIndex(table, memoryIndex, memoryEntry)

	index := memoryIndex + 1
	linearLimit := minIndex(endIndex, memoryIndex+linearOffsetMax)
	for entry := int8(linearOffsetMin); index <= linearLimit; entry++ {
		setEntryAtIndex(table, index, entry)
		index++
	}

	for exponent := exponentMin; index <= endIndex; exponent++ {
		biased := biasExponent(exponent)
		runLimit := minIndex(endIndex, index+exponentToOffset(exponent)-1)
		for ; index <= runLimit; index++ {
			setEntryAtIndex(table, index, biased)
		}
	}
}

func minIndex(a, b uintptr) uintptr {
	if a < b {
		return a
	}
	return b
}

// GetFirstObject returns the start of the object that covers the first byte
// of card index.
func GetFirstObject(table memory.Pointer, objectsStart memory.Pointer, index uintptr) memory.Pointer {
	result, _ := getFirstObjectHops(table, objectsStart, index)
	return result
}

func getFirstObjectHops(table memory.Pointer, objectsStart memory.Pointer, index uintptr) (memory.Pointer, int) {
	hops := 0
	current := index
	entry := getEntryAtIndex(table, current)
	assertTrue(entry != UninitializedEntry, "uninitialized first object table entry")

	for isExponentialEntry(entry) {
		delta := exponentToOffset(unbiasExponent(entry))
		assertTrue(delta <= current, "exponential entry points before the table")
		current -= delta
		entry = getEntryAtIndex(table, current)
		hops++
	}
	if isLinearOffsetEntry(entry) {
		delta := uintptr(entry)
		assertTrue(delta <= current, "linear entry points before the table")
		current -= delta
		entry = getEntryAtIndex(table, current)
		hops++
	}
	assertTrue(isMemoryOffsetEntry(entry), "lookup did not end at a memory offset entry")

	return objectsStart.Add(entryToMemoryOffset(current, entry)), hops
}

// GetFirstObjectImprecise returns the first object that starts inside card
// index. An object crossing onto the card is skipped: with imprecise card
// marking its stores dirty the card it starts on. The result may lie past
// the end of the card.
func GetFirstObjectImprecise(table memory.Pointer, objectsStart memory.Pointer, index uintptr) memory.Pointer {
	first := GetFirstObject(table, objectsStart, index)
	cardStart := cardtable.IndexToMemoryPointer(objectsStart, index)
	if first < cardStart {
		return layout.ObjectEnd(first)
	}
	assertTrue(first == cardStart, "first object starts after the card start")
	return cardStart
}

// Verify checks that every card covering [objectsStart, objectsLimit)
// resolves to an object inside the range that covers the card start.
func Verify(table memory.Pointer, objectsStart memory.Pointer, objectsLimit memory.Pointer) bool {
	indexLimit := cardtable.IndexLimitForMemorySize(objectsLimit.Offset(objectsStart))
	for index := uintptr(0); index < indexLimit; index++ {
		if !verifyIndex(table, objectsStart, objectsLimit, index) {
			return false
		}
	}
	return true
}

func verifyIndex(table memory.Pointer, objectsStart memory.Pointer, objectsLimit memory.Pointer, index uintptr) bool {
	entry := getEntryAtIndex(table, index)
	if entry == UninitializedEntry {
		logger.Errorf("first object table entry at index %d is uninitialized", index)
		return false
	}
	if !isMemoryOffsetEntry(entry) && !isLinearOffsetEntry(entry) && !isExponentialEntry(entry) {
		logger.Errorf("first object table entry at index %d has invalid value %d", index, entry)
		return false
	}

	first, ok := lookupForVerify(table, objectsStart, index)
	if !ok {
		return false
	}
	if first < objectsStart || first >= objectsLimit {
		logger.Errorf("first object %#x for index %d is outside [%#x, %#x)",
			uintptr(first), index, uintptr(objectsStart), uintptr(objectsLimit))
		return false
	}

	cardStart := cardtable.IndexToMemoryPointer(objectsStart, index)
	if first > cardStart {
		logger.Errorf("first object %#x for index %d starts after the card start %#x",
			uintptr(first), index, uintptr(cardStart))
		return false
	}

	end := layout.ObjectEnd(first)
	if end <= cardStart {
		logger.Errorf("first object [%#x, %#x) for index %d ends before the card start %#x",
			uintptr(first), uintptr(end), index, uintptr(cardStart))
		return false
	}
	return true
}

func lookupForVerify(table memory.Pointer, objectsStart memory.Pointer, index uintptr) (first memory.Pointer, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("first object lookup for index %d failed: %v", index, r)
			first, ok = memory.Null, false
		}
	}()
	return GetFirstObject(table, objectsStart, index), true
}
