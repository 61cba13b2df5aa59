package memory

import "unsafe"

// WordSize ...
const WordSize = unsafe.Sizeof(uintptr(0))

// Pointer is a raw address into memory owned by a Region. It never owns or
// frees the memory it points to.
type Pointer uintptr

// Null ...
const Null Pointer = 0

// IsNull ...
func (p Pointer) IsNull() bool {
	return p == Null
}

// Add ...
func (p Pointer) Add(n uintptr) Pointer {
	return p + Pointer(n)
}

// Sub ...
func (p Pointer) Sub(n uintptr) Pointer {
	return p - Pointer(n)
}

// Offset returns the distance from base to p. p must not be below base.
func (p Pointer) Offset(base Pointer) uintptr {
	return uintptr(p - base)
}

func (p Pointer) raw(off uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) + off)
}

// ReadUint8 ...
func (p Pointer) ReadUint8(off uintptr) byte {
	return *(*byte)(p.raw(off))
}

// WriteUint8 ...
func (p Pointer) WriteUint8(off uintptr, v byte) {
	*(*byte)(p.raw(off)) = v
}

// ReadInt8 ...
func (p Pointer) ReadInt8(off uintptr) int8 {
	return *(*int8)(p.raw(off))
}

// WriteInt8 ...
func (p Pointer) WriteInt8(off uintptr, v int8) {
	*(*int8)(p.raw(off)) = v
}

// ReadUint16 ...
func (p Pointer) ReadUint16(off uintptr) uint16 {
	return *(*uint16)(p.raw(off))
}

// WriteUint16 ...
func (p Pointer) WriteUint16(off uintptr, v uint16) {
	*(*uint16)(p.raw(off)) = v
}

// ReadWord ...
func (p Pointer) ReadWord(off uintptr) uint64 {
	return *(*uint64)(p.raw(off))
}

// WriteWord ...
func (p Pointer) WriteWord(off uintptr, v uint64) {
	*(*uint64)(p.raw(off)) = v
}

// ReadPointer ...
func (p Pointer) ReadPointer(off uintptr) Pointer {
	return Pointer(p.ReadWord(off))
}

// WritePointer ...
func (p Pointer) WritePointer(off uintptr, v Pointer) {
	p.WriteWord(off, uint64(v))
}

// Fill sets size bytes starting at p to value.
func (p Pointer) Fill(size uintptr, value byte) {
	if size == 0 {
		return
	}
	b := unsafe.Slice((*byte)(p.raw(0)), size)
	for i := range b {
		b[i] = value
	}
}

// Bytes returns a slice aliasing size bytes at p.
func (p Pointer) Bytes(size uintptr) []byte {
	if size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(p.raw(0)), size)
}

// Min ...
func Min(a, b Pointer) Pointer {
	if a < b {
		return a
	}
	return b
}
