package hotcard

import (
	"math/bits"
)

// Seeds of the four counter rows, taken from FNV-1a, CityHash and Murmur3.
var rowSeeds = [4]uint64{
	0xc3a5c85c97cb3127,
	0xb492b66fbe98f273,
	0x9ae16a3b2f90404f,
	0xcbf29ce484222325,
}

const (
	counterBits = 4
	counterMax  = 1<<counterBits - 1

	// halving every counter of a word at once
	halfMask uint64 = 0x7777777777777777
	lowMask  uint64 = 0x1111111111111111
)

// frequency is a count-min sketch of 4-bit counters, 16 per word. All
// counters are halved once resetAt increments have been counted, so old
// scans weigh less than recent ones.
type frequency struct {
	words    []uint64
	wordMask uint64

	additions uint64
	resetAt   uint64
}

func newFrequency(numCounters uint64, resetAt uint64) *frequency {
	n := (uint64(1)<<bits.Len64(numCounters-1) + 15) >> 4
	return &frequency{
		words:    make([]uint64, n),
		wordMask: n - 1,
		resetAt:  resetAt,
	}
}

func (f *frequency) wordIndex(hash uint64, row int) uint64 {
	h := (hash + rowSeeds[row]) * rowSeeds[row]
	h += h >> 32
	return h & f.wordMask
}

// counterShift picks one of four counter groups of a word per row, so the
// rows of a key never share a counter.
func counterShift(hash uint64, row int) uint64 {
	return (((hash & 3) << 2) + uint64(row)) * counterBits
}

func (f *frequency) increment(hash uint64) {
	added := false
	for row := 0; row < len(rowSeeds); row++ {
		i := f.wordIndex(hash, row)
		shift := counterShift(hash, row)
		if (f.words[i]>>shift)&counterMax != counterMax {
			f.words[i] += 1 << shift
			added = true
		}
	}
	if !added {
		return
	}
	f.additions++
	if f.additions >= f.resetAt {
		f.age()
	}
}

func (f *frequency) age() {
	odd := uint64(0)
	for i, w := range f.words {
		odd += uint64(bits.OnesCount64(w & lowMask))
		f.words[i] = (w >> 1) & halfMask
	}
	half, lost := f.additions>>1, odd>>2
	if lost > half {
		lost = half
	}
	f.additions = half - lost
}

func (f *frequency) estimate(hash uint64) uint32 {
	result := uint32(counterMax)
	for row := 0; row < len(rowSeeds); row++ {
		c := uint32((f.words[f.wordIndex(hash, row)] >> counterShift(hash, row)) & counterMax)
		if c < result {
			result = c
		}
	}
	return result
}
