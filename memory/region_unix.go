//go:build unix

package memory

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

var mapGranularity = uintptr(unix.Getpagesize())

func mapAnonymous(size uintptr) ([]byte, error) {
	return unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func unmap(b []byte) error {
	return unix.Munmap(b)
}

func addressOf(b []byte) uintptr {
	return uintptr(unsafe.Pointer(&b[0]))
}
