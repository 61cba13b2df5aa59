package fot

import (
	"fmt"

	"github.com/QuangTung97/remset/memory"
)

// EntryKind ...
type EntryKind int

const (
	// InvalidEntryKind ...
	InvalidEntryKind EntryKind = iota
	// MemoryOffsetEntryKind ...
	MemoryOffsetEntryKind
	// LinearEntryKind ...
	LinearEntryKind
	// ExponentialEntryKind ...
	ExponentialEntryKind
	// UninitializedEntryKind ...
	UninitializedEntryKind
)

func (k EntryKind) String() string {
	switch k {
	case MemoryOffsetEntryKind:
		return "memory-offset"
	case LinearEntryKind:
		return "linear"
	case ExponentialEntryKind:
		return "exponential"
	case UninitializedEntryKind:
		return "uninitialized"
	default:
		return "invalid"
	}
}

// KindOf ...
func KindOf(entry int8) EntryKind {
	switch {
	case entry == UninitializedEntry:
		return UninitializedEntryKind
	case isMemoryOffsetEntry(entry):
		return MemoryOffsetEntryKind
	case isLinearOffsetEntry(entry):
		return LinearEntryKind
	case isExponentialEntry(entry) && int(entry)-exponentBias <= exponentMax:
		return ExponentialEntryKind
	default:
		return InvalidEntryKind
	}
}

// EntryAtIndex ...
func EntryAtIndex(table memory.Pointer, index uintptr) int8 {
	return getEntryAtIndex(table, index)
}

// Describe renders the entry at index for a table dump.
func Describe(table memory.Pointer, index uintptr) string {
	entry := getEntryAtIndex(table, index)
	switch kind := KindOf(entry); kind {
	case MemoryOffsetEntryKind:
		return fmt.Sprintf("%s -%d bytes", kind, uintptr(-int(entry))*memoryOffsetScale)
	case LinearEntryKind:
		return fmt.Sprintf("%s %d cards back", kind, entry)
	case ExponentialEntryKind:
		return fmt.Sprintf("%s 2^%d cards back", kind, unbiasExponent(entry))
	default:
		return fmt.Sprintf("%s (%d)", kind, entry)
	}
}
