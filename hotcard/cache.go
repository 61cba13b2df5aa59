// Package hotcard remembers the cards that are found dirty scan after scan.
//
// Every dirty card seen by a scan is counted in a frequency sketch. Cards
// whose estimated count reaches the threshold enter a bounded set of hot
// cards, evicting the card that was seen least recently.
package hotcard

import (
	"github.com/QuangTung97/remset/memory"
)

// MaxThreshold is the largest count the sketch can estimate.
const MaxThreshold = counterMax

// Key identifies a card by its chunk and index.
type Key struct {
	Chunk memory.Pointer
	Index uint32
}

func (k Key) hash() uint64 {
	h := uint64(k.Chunk) ^ uint64(k.Index)*0x9e3779b97f4a7c15
	h ^= h >> 29
	return h
}

// Cache ...
type Cache struct {
	limit     int
	threshold uint32

	freq   *frequency
	recent recencyList
	index  map[Key]uint32
}

// New returns a cache of at most limit hot cards. threshold is clamped to
// [1, MaxThreshold].
func New(limit int, threshold uint32) *Cache {
	if limit < 1 {
		limit = 1
	}
	if threshold < 1 {
		threshold = 1
	}
	if threshold > MaxThreshold {
		threshold = MaxThreshold
	}
	numCounters := uint64(16 * limit)
	return &Cache{
		limit:     limit,
		threshold: threshold,
		freq:      newFrequency(numCounters, 10*numCounters),
		recent:    newRecencyList(),
		index:     make(map[Key]uint32),
	}
}

// Record counts one more scan that found k dirty. It reports whether k is
// hot afterwards.
func (c *Cache) Record(k Key) bool {
	h := k.hash()
	c.freq.increment(h)

	if addr, ok := c.index[k]; ok {
		c.recent.moveToFront(addr)
		return true
	}
	if c.freq.estimate(h) < c.threshold {
		return false
	}

	if c.recent.size >= c.limit {
		addr, evicted := c.recent.back()
		c.recent.remove(addr)
		delete(c.index, evicted)
	}
	c.index[k] = c.recent.pushFront(k)
	return true
}

// Contains ...
func (c *Cache) Contains(k Key) bool {
	_, ok := c.index[k]
	return ok
}

// Hot returns the hot cards, most recently recorded first.
func (c *Cache) Hot() []Key {
	return c.recent.keys()
}

// Forget drops the hot cards of a chunk, e.g. when the chunk is released.
func (c *Cache) Forget(chunk memory.Pointer) int {
	n := 0
	for k, addr := range c.index {
		if k.Chunk != chunk {
			continue
		}
		c.recent.remove(addr)
		delete(c.index, k)
		n++
	}
	return n
}

// Len ...
func (c *Cache) Len() int {
	return c.recent.size
}

// Limit ...
func (c *Cache) Limit() int {
	return c.limit
}
