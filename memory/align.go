package memory

// AlignUp ...
func AlignUp(x, align uintptr) uintptr {
	return (x + align - 1) &^ (align - 1)
}

// AlignDown ...
func AlignDown(x, align uintptr) uintptr {
	return x &^ (align - 1)
}

// IsAligned ...
func IsAligned(x, align uintptr) bool {
	return x&(align-1) == 0
}

// IsPowerOfTwo ...
func IsPowerOfTwo(x uintptr) bool {
	return x != 0 && x&(x-1) == 0
}

// CeilDiv ...
func CeilDiv(x, y uintptr) uintptr {
	return (x + y - 1) / y
}
