package remset

// DefaultAlignedChunkSize keeps every brick offset of a chunk within 16 bits.
const DefaultAlignedChunkSize = 512 << 10

// MaxAlignedChunkSize is the largest aligned chunk size the brick table can
// address.
const MaxAlignedChunkSize = DefaultAlignedChunkSize

// Options ...
type Options struct {
	// UseRememberedSet selects CardTableBased. Without it the heap has a
	// single generation and nothing needs to be remembered.
	UseRememberedSet bool

	// AlignedChunkSize must be a power of two.
	AlignedChunkSize uintptr
}

// Option ...
type Option func(opts *Options)

func computeOptions(options ...Option) Options {
	opts := Options{
		UseRememberedSet: true,
		AlignedChunkSize: DefaultAlignedChunkSize,
	}
	for _, o := range options {
		o(&opts)
	}
	return opts
}

// WithRememberedSet ...
func WithRememberedSet(enabled bool) Option {
	return func(opts *Options) {
		opts.UseRememberedSet = enabled
	}
}

// WithAlignedChunkSize ...
func WithAlignedChunkSize(size uintptr) Option {
	return func(opts *Options) {
		opts.AlignedChunkSize = size
	}
}
