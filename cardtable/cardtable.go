// Package cardtable implements a byte-per-card dirty table.
//
// Each entry covers BytesCoveredByEntry bytes of object memory and is either
// DirtyEntry or CleanEntry. Dirtying is a single unconditional byte store so
// that it can be issued from any mutator thread without synchronization.
package cardtable

import (
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/logutil"
	"github.com/QuangTung97/remset/memory"
	"github.com/QuangTung97/remset/safepoint"
)

const (
	// BytesCoveredByEntry ...
	BytesCoveredByEntry = 512

	// EntrySize ...
	EntrySize = 1

	// DirtyEntry is zero so that dirtying compiles to a store of zero.
	DirtyEntry byte = 0

	// CleanEntry ...
	CleanEntry byte = 1
)

var logger = logutil.GetLogger("remset")

// DirtyEntryAtIndex ...
func DirtyEntryAtIndex(table memory.Pointer, index uintptr) {
	table.WriteUint8(index*EntrySize, DirtyEntry)
}

// IsDirtyEntryAtIndexUnchecked ...
func IsDirtyEntryAtIndexUnchecked(table memory.Pointer, index uintptr) bool {
	return table.ReadUint8(index*EntrySize) == DirtyEntry
}

// IsDirtyEntryAtIndex may only be used by the collector while it holds
// exclusive access to the heap.
func IsDirtyEntryAtIndex(table memory.Pointer, index uintptr) bool {
	safepoint.Guarantee("reading a card table entry")
	return IsDirtyEntryAtIndexUnchecked(table, index)
}

// IsCleanEntryAtIndex ...
func IsCleanEntryAtIndex(table memory.Pointer, index uintptr) bool {
	return table.ReadUint8(index*EntrySize) == CleanEntry
}

// CleanEntryAtIndex ...
func CleanEntryAtIndex(table memory.Pointer, index uintptr) {
	table.WriteUint8(index*EntrySize, CleanEntry)
}

// CleanTable cleans size bytes of table memory.
func CleanTable(table memory.Pointer, size uintptr) {
	table.Fill(size, CleanEntry)
}

// CleanTableToIndex cleans entries [0, limit).
func CleanTableToIndex(table memory.Pointer, limit uintptr) {
	CleanTable(table, limit*EntrySize)
}

// CleanTableToPointer cleans every entry that covers memory in [objectsStart, limit).
func CleanTableToPointer(table memory.Pointer, objectsStart memory.Pointer, limit memory.Pointer) {
	CleanTableToIndex(table, IndexLimitForMemorySize(limit.Offset(objectsStart)))
}

// TableSize returns the table bytes needed to cover spaceSize bytes.
func TableSize(spaceSize uintptr) uintptr {
	return IndexLimitForMemorySize(spaceSize) * EntrySize
}

// IndexLimitForMemorySize ...
func IndexLimitForMemorySize(memorySize uintptr) uintptr {
	return memory.CeilDiv(memorySize, BytesCoveredByEntry)
}

// MemoryOffsetToIndex ...
func MemoryOffsetToIndex(offset uintptr) uintptr {
	return offset / BytesCoveredByEntry
}

// IndexToMemoryOffset ...
func IndexToMemoryOffset(index uintptr) uintptr {
	return index * BytesCoveredByEntry
}

// IndexToMemoryPointer ...
func IndexToMemoryPointer(objectsStart memory.Pointer, index uintptr) memory.Pointer {
	return objectsStart.Add(IndexToMemoryOffset(index))
}

// Verify walks every object in [objectsStart, objectsLimit) and checks that
// an object holding a reference into the young generation has a dirty card
// at its start. Failures are logged, never fatal.
func Verify(table memory.Pointer, objectsStart memory.Pointer, objectsLimit memory.Pointer,
	inYoungGeneration func(memory.Pointer) bool,
) bool {
	success := true
	ptr := objectsStart
	for ptr < objectsLimit {
		if !verifyObject(table, objectsStart, ptr, inYoungGeneration) {
			success = false
		}
		ptr = layout.ObjectEnd(ptr)
	}
	return success
}

func verifyObject(table memory.Pointer, objectsStart memory.Pointer, obj memory.Pointer,
	inYoungGeneration func(memory.Pointer) bool,
) bool {
	index := MemoryOffsetToIndex(obj.Offset(objectsStart))
	if IsDirtyEntryAtIndexUnchecked(table, index) {
		return true
	}

	success := true
	layout.VisitReferences(obj, func(slot int, ref memory.Pointer) bool {
		if inYoungGeneration(ref) {
			logger.Errorf("object %#x (card %d) holds young reference %#x in slot %d but its card is clean",
				uintptr(obj), index, uintptr(ref), slot)
			success = false
		}
		return true
	})
	return success
}

// VerifyAllClean checks that every entry in [from, to) is clean.
func VerifyAllClean(table memory.Pointer, from uintptr, to uintptr) bool {
	success := true
	for index := from; index < to; index++ {
		if !IsCleanEntryAtIndex(table, index) {
			logger.Errorf("card %d is expected to be clean, found entry %d",
				index, table.ReadUint8(index*EntrySize))
			success = false
		}
	}
	return success
}
