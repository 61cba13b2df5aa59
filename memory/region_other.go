//go:build !unix

package memory

import "unsafe"

// Slices carry no alignment guarantee beyond a byte.
const mapGranularity = 1

// A plain slice stands in for an anonymous mapping. Heap slices do not move.
func mapAnonymous(size uintptr) ([]byte, error) {
	return make([]byte, size), nil
}

func unmap(b []byte) error {
	return nil
}

func addressOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
