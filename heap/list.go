package heap

import (
	"github.com/QuangTung97/remset/chunk"
)

// chunkList links chunks through the next and prev fields of their headers.
type chunkList struct {
	head   chunk.Chunk
	length int
}

func (l *chunkList) push(c chunk.Chunk) {
	c.SetPrev(chunk.Chunk{})
	c.SetNext(l.head)
	if !l.head.IsNull() {
		l.head.SetPrev(c)
	}
	l.head = c
	l.length++
}

func (l *chunkList) remove(c chunk.Chunk) {
	prev := c.Prev()
	next := c.Next()
	if prev.IsNull() {
		l.head = next
	} else {
		prev.SetNext(next)
	}
	if !next.IsNull() {
		next.SetPrev(prev)
	}
	c.SetNext(chunk.Chunk{})
	c.SetPrev(chunk.Chunk{})
	l.length--
}

// each stops early and returns false when fn returns false. fn may remove
// the chunk it is called with.
func (l *chunkList) each(fn func(c chunk.Chunk) bool) bool {
	c := l.head
	for !c.IsNull() {
		next := c.Next()
		if !fn(c) {
			return false
		}
		c = next
	}
	return true
}

// space is the set of chunks of one generation.
type space struct {
	generation chunk.Generation
	aligned    chunkList
	unaligned  chunkList

	// current is the aligned chunk bump allocation happens in.
	current chunk.Aligned
}

func newSpace(gen chunk.Generation) *space {
	return &space{generation: gen}
}

func (s *space) listOf(c chunk.Chunk) *chunkList {
	if c.IsUnaligned() {
		return &s.unaligned
	}
	return &s.aligned
}

func (s *space) add(c chunk.Chunk) {
	c.SetGeneration(s.generation)
	s.listOf(c).push(c)
}

func (s *space) remove(c chunk.Chunk) {
	s.listOf(c).remove(c)
	if !c.IsUnaligned() && s.current.Base() == c.Base() {
		s.current = chunk.Aligned{}
	}
}

func (s *space) usedBytes() uintptr {
	var used uintptr
	count := func(c chunk.Chunk) bool {
		used += c.Top().Offset(c.ObjectsStart())
		return true
	}
	s.aligned.each(count)
	s.unaligned.each(count)
	return used
}
