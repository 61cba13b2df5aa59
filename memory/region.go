package memory

import (
	"github.com/pkg/errors"
)

// Region is a block of memory that is invisible to the Go collector. Chunk
// headers and objects live inside a Region and only refer to each other by
// raw addresses.
type Region struct {
	mapping []byte
	base    Pointer
	size    uintptr
}

// MapAligned reserves size bytes whose start address is a multiple of align.
// The memory is zeroed.
func MapAligned(size uintptr, align uintptr) (*Region, error) {
	if size == 0 {
		return nil, errors.New("region size must > 0")
	}
	if !IsPowerOfTwo(align) {
		return nil, errors.Errorf("region alignment %d is not a power of two", align)
	}

	reserved := size
	if align > mapGranularity {
		reserved += align
	}
	mapping, err := mapAnonymous(reserved)
	if err != nil {
		return nil, errors.Wrapf(err, "map %d bytes", reserved)
	}

	start := addressOf(mapping)
	base := AlignUp(start, align)
	return &Region{
		mapping: mapping,
		base:    Pointer(base),
		size:    size,
	}, nil
}

// Base ...
func (r *Region) Base() Pointer {
	return r.base
}

// Size ...
func (r *Region) Size() uintptr {
	return r.size
}

// End ...
func (r *Region) End() Pointer {
	return r.base.Add(r.size)
}

// Contains ...
func (r *Region) Contains(p Pointer) bool {
	return r.base <= p && p < r.End()
}

// Release returns the memory to the operating system. The region must not be
// used afterwards.
func (r *Region) Release() error {
	if r.mapping == nil {
		return nil
	}
	err := unmap(r.mapping)
	r.mapping = nil
	r.base = Null
	r.size = 0
	return errors.Wrap(err, "unmap region")
}
