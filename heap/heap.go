// Package heap is a small two generation heap built on the remembered set.
//
// It bump allocates objects into aligned chunks, puts large objects into
// unaligned chunks, runs the post write barrier on every reference store and
// scans the dirty cards of the old generation the way a young collection
// would find its roots. It never moves or frees objects on its own.
package heap

import (
	"github.com/pkg/errors"

	"github.com/QuangTung97/remset"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/hotcard"
	"github.com/QuangTung97/remset/logutil"
	"github.com/QuangTung97/remset/memory"
)

var logger = logutil.GetLogger("heap")

var (
	// ErrSingleGeneration is returned for young generation requests on a heap
	// without a remembered set.
	ErrSingleGeneration = errors.New("heap has a single generation")

	// ErrVerificationFailed ...
	ErrVerificationFailed = errors.New("remembered set verification failed")
)

// Config ...
type Config struct {
	UseRememberedSet bool

	// AlignedChunkSize must be a power of two, at most remset.MaxAlignedChunkSize.
	AlignedChunkSize uintptr

	// ReservedSize is the address space for aligned chunks.
	ReservedSize uintptr

	// Objects of at least LargeObjectThreshold bytes get an unaligned chunk.
	LargeObjectThreshold uintptr

	// VerifyRememberedSet asserts after every barrier that the card of the
	// holder is dirty when it has to be.
	VerifyRememberedSet bool

	// HotCardLimit bounds the number of hot cards remembered, 0 disables
	// hot card tracking. A card becomes hot once HotCardThreshold cleaning
	// scans have found it dirty.
	HotCardLimit     int
	HotCardThreshold uint32
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		UseRememberedSet:     true,
		AlignedChunkSize:     remset.DefaultAlignedChunkSize,
		ReservedSize:         64 * remset.DefaultAlignedChunkSize,
		LargeObjectThreshold: remset.DefaultAlignedChunkSize / 4,
		HotCardLimit:         64,
		HotCardThreshold:     4,
	}
}

// Heap ...
type Heap struct {
	conf     Config
	rs       remset.RememberedSet
	provider *chunk.Provider

	young *space
	old   *space
	hot   *hotcard.Cache

	completeCollection bool
}

var _ remset.HeapState = &Heap{}

// New ...
func New(conf Config) (*Heap, error) {
	if !memory.IsPowerOfTwo(conf.AlignedChunkSize) {
		return nil, errors.Errorf("aligned chunk size %d is not a power of two", conf.AlignedChunkSize)
	}
	if conf.AlignedChunkSize > remset.MaxAlignedChunkSize {
		return nil, errors.Errorf("aligned chunk size %d exceeds %d", conf.AlignedChunkSize, remset.MaxAlignedChunkSize)
	}

	h := &Heap{
		conf: conf,
		old:  newSpace(chunk.Old),
	}
	if conf.UseRememberedSet {
		h.young = newSpace(chunk.Young)
		if conf.HotCardLimit > 0 {
			h.hot = hotcard.New(conf.HotCardLimit, conf.HotCardThreshold)
		}
	}
	h.rs = remset.New(h,
		remset.WithRememberedSet(conf.UseRememberedSet),
		remset.WithAlignedChunkSize(conf.AlignedChunkSize),
	)

	provider, err := chunk.NewProvider(chunk.ProviderConfig{
		AlignedChunkSize:            conf.AlignedChunkSize,
		ReservedSize:                conf.ReservedSize,
		AlignedObjectsStartOffset:   h.rs.AlignedChunkHeaderSize(),
		UnalignedObjectsStartOffset: h.rs.UnalignedChunkHeaderSize(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create chunk provider")
	}

	if conf.LargeObjectThreshold == 0 || conf.LargeObjectThreshold > provider.UsableAlignedChunkBytes() {
		_ = provider.Close()
		return nil, errors.Errorf("large object threshold %d must be in (0, %d]",
			conf.LargeObjectThreshold, provider.UsableAlignedChunkBytes())
	}
	h.provider = provider

	logger.Debugf("heap created: chunk size %d, objects start at offset %d, large objects from %d bytes",
		conf.AlignedChunkSize, provider.AlignedObjectsStartOffset(), conf.LargeObjectThreshold)
	return h, nil
}

// RememberedSet ...
func (h *Heap) RememberedSet() remset.RememberedSet {
	return h.rs
}

// Provider ...
func (h *Heap) Provider() *chunk.Provider {
	return h.provider
}

// Generational reports whether the heap has a young generation.
func (h *Heap) Generational() bool {
	return h.young != nil
}

// InYoungGeneration ...
func (h *Heap) InYoungGeneration(ptr memory.Pointer) bool {
	if h.young == nil || ptr.IsNull() {
		return false
	}
	c, ok := h.provider.ChunkOf(ptr)
	return ok && c.Generation() == chunk.Young
}

// IsCompleteCollection ...
func (h *Heap) IsCompleteCollection() bool {
	return h.completeCollection
}

// SetCompleteCollection marks the start or the end of a full collection.
// During a full collection no card needs to be dirtied.
func (h *Heap) SetCompleteCollection(complete bool) {
	h.completeCollection = complete
}

func (h *Heap) spaceOf(gen chunk.Generation) (*space, error) {
	switch gen {
	case chunk.Young:
		if h.young == nil {
			return nil, ErrSingleGeneration
		}
		return h.young, nil
	case chunk.Old:
		return h.old, nil
	default:
		return nil, errors.Errorf("invalid generation %v", gen)
	}
}

// WalkChunks calls fn on every chunk of gen until fn returns false.
func (h *Heap) WalkChunks(gen chunk.Generation, fn func(c chunk.Chunk) bool) error {
	s, err := h.spaceOf(gen)
	if err != nil {
		return err
	}
	if s.aligned.each(fn) {
		s.unaligned.each(fn)
	}
	return nil
}

// Stats ...
type Stats struct {
	YoungAlignedChunks   int
	YoungUnalignedChunks int
	YoungBytes           uintptr

	OldAlignedChunks   int
	OldUnalignedChunks int
	OldBytes           uintptr
}

// Stats ...
func (h *Heap) Stats() Stats {
	st := Stats{
		OldAlignedChunks:   h.old.aligned.length,
		OldUnalignedChunks: h.old.unaligned.length,
		OldBytes:           h.old.usedBytes(),
	}
	if h.young != nil {
		st.YoungAlignedChunks = h.young.aligned.length
		st.YoungUnalignedChunks = h.young.unaligned.length
		st.YoungBytes = h.young.usedBytes()
	}
	return st
}

// Close unmaps the memory of every chunk. Objects must not be used afterwards.
func (h *Heap) Close() error {
	if h.provider == nil {
		return nil
	}
	err := h.provider.Close()
	h.provider = nil
	return errors.Wrap(err, "close heap")
}
