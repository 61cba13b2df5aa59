package remset

import (
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QuangTung97/remset/cardtable"
	"github.com/QuangTung97/remset/chunk"
	"github.com/QuangTung97/remset/fot"
	"github.com/QuangTung97/remset/layout"
	"github.com/QuangTung97/remset/memory"
	"github.com/QuangTung97/remset/safepoint"
)

const testChunkSize = 64 << 10

type fakeHeap struct {
	young    map[memory.Pointer]bool
	complete bool
}

func (h *fakeHeap) InYoungGeneration(ptr memory.Pointer) bool {
	return h.young[chunk.EnclosingAligned(ptr, testChunkSize).Base()]
}

func (h *fakeHeap) IsCompleteCollection() bool {
	return h.complete
}

type fixture struct {
	heap     *fakeHeap
	rs       *CardTableBased
	provider *chunk.Provider
}

func newFixture(t *testing.T) *fixture {
	h := &fakeHeap{young: make(map[memory.Pointer]bool)}
	rs := NewCardTableBased(testChunkSize, h)
	p, err := chunk.NewProvider(chunk.ProviderConfig{
		AlignedChunkSize:            testChunkSize,
		ReservedSize:                1 << 20,
		AlignedObjectsStartOffset:   rs.AlignedChunkHeaderSize(),
		UnalignedObjectsStartOffset: rs.UnalignedChunkHeaderSize(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return &fixture{heap: h, rs: rs, provider: p}
}

func (f *fixture) oldChunk(t *testing.T) chunk.Aligned {
	c, err := f.provider.ProduceAligned()
	require.NoError(t, err)
	c.SetGeneration(chunk.Old)
	f.rs.EnableRememberedSetForAlignedChunk(c)
	return c
}

func (f *fixture) youngChunk(t *testing.T) chunk.Aligned {
	c, err := f.provider.ProduceAligned()
	require.NoError(t, err)
	c.SetGeneration(chunk.Young)
	f.heap.young[c.Base()] = true
	return c
}

func (f *fixture) allocOld(t *testing.T, c chunk.Aligned, size uintptr, refs int) memory.Pointer {
	obj := c.Allocate(size)
	require.False(t, obj.IsNull())
	layout.Initialize(obj, size, refs, false)
	f.rs.EnableRememberedSetForObject(c, obj)
	return obj
}

func allocYoung(t *testing.T, c chunk.Aligned, size uintptr) memory.Pointer {
	obj := c.Allocate(size)
	require.False(t, obj.IsNull())
	layout.Initialize(obj, size, 0, false)
	return obj
}

func collectDirty(t *testing.T, rs RememberedSet, c chunk.Aligned, clean bool) []uintptr {
	var offsets []uintptr
	safepoint.Run(func() {
		err := rs.WalkDirtyObjectsOfAlignedChunk(c, func(obj memory.Pointer) error {
			offsets = append(offsets, obj.Offset(c.ObjectsStart()))
			return nil
		}, clean)
		require.NoError(t, err)
	})
	return offsets
}

func TestAlignedChunkLayout(t *testing.T) {
	a := NewAlignedChunkRememberedSet(testChunkSize)

	assert.Equal(t, uintptr(testChunkSize), a.ChunkSize())
	assert.Equal(t, uintptr(128), a.CardTableSize())
	assert.Equal(t, uintptr(128), a.FirstObjectTableSize())
	assert.Equal(t, chunk.HeaderSize+256, a.HeaderSize())

	c := chunk.EnclosingAligned(memory.Pointer(0x100000), testChunkSize)
	assert.Equal(t, memory.Pointer(0x100000).Add(chunk.HeaderSize), a.CardTableStart(c))
	assert.Equal(t, memory.Pointer(0x100000).Add(chunk.HeaderSize+128), a.FirstObjectTableStart(c))
}

func TestAlignedChunkLayout_NotPowerOfTwo(t *testing.T) {
	assert.Panics(t, func() {
		NewAlignedChunkRememberedSet(3 << 10)
	})
}

func TestUnalignedChunkLayout(t *testing.T) {
	u := NewUnalignedChunkRememberedSet()
	assert.Equal(t, uintptr(8), u.CardTableSize())
	assert.Equal(t, chunk.HeaderSize+8, u.HeaderSize())
}

func TestEnableRememberedSetForObject(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	a := f.rs.Aligned()

	first := f.allocOld(t, c, 600, 1)
	second := f.allocOld(t, c, 24, 1)

	assert.True(t, layout.ReadHeader(first).HasRememberedSet())
	assert.True(t, layout.ReadHeader(second).HasRememberedSet())

	table := a.FirstObjectTableStart(c)
	assert.Equal(t, first, fot.GetFirstObject(table, c.ObjectsStart(), 0))
	// [0, 600) crosses into card 1, so the first object of card 1 is still at 0.
	assert.Equal(t, first, fot.GetFirstObject(table, c.ObjectsStart(), 1))
	assert.True(t, fot.Verify(table, c.ObjectsStart(), c.Top()))
}

func TestEnableRememberedSetForChunk_ExistingObjects(t *testing.T) {
	f := newFixture(t)
	c := f.youngChunk(t)
	a := f.rs.Aligned()

	var objs []memory.Pointer
	for _, size := range []uintptr{600, 24, 1424, 8} {
		objs = append(objs, allocYoung(t, c, size))
	}
	assert.False(t, layout.ReadHeader(objs[0]).HasRememberedSet())

	c.SetGeneration(chunk.Old)
	delete(f.heap.young, c.Base())
	f.rs.EnableRememberedSetForAlignedChunk(c)

	for _, obj := range objs {
		assert.True(t, layout.ReadHeader(obj).HasRememberedSet())
	}
	table := a.FirstObjectTableStart(c)
	assert.Equal(t, objs[2], fot.GetFirstObject(table, c.ObjectsStart(), 3))
	assert.Equal(t, objs[3], fot.GetFirstObject(table, c.ObjectsStart(), 4))
	assert.True(t, f.rs.VerifyOnlyCleanAlignedChunk(c))
}

func TestClearRememberedSet(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	a := f.rs.Aligned()

	obj := f.allocOld(t, c, 1024, 0)
	f.rs.DirtyCardForAlignedObject(obj, false)

	f.rs.ClearRememberedSetForAlignedChunk(c)

	assert.True(t, fot.IsUninitializedIndex(a.FirstObjectTableStart(c), 0))
	assert.True(t, fot.IsUninitializedIndex(a.FirstObjectTableStart(c), 1))
	assert.True(t, cardtable.IsCleanEntryAtIndex(a.CardTableStart(c), 0))
}

func TestDirtyCardForAlignedObject(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	table := f.rs.Aligned().CardTableStart(c)

	f.allocOld(t, c, 600, 0)
	second := f.allocOld(t, c, 24, 0)

	f.rs.DirtyCardForAlignedObject(second, false)

	assert.True(t, cardtable.IsCleanEntryAtIndex(table, 0))
	assert.True(t, cardtable.IsDirtyEntryAtIndexUnchecked(table, 1))
	assert.True(t, cardtable.IsCleanEntryAtIndex(table, 2))
}

func TestDirtyCardForAlignedObject_VerifyOnly(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	obj := f.allocOld(t, c, 64, 0)

	assert.Panics(t, func() {
		f.rs.DirtyCardForAlignedObject(obj, true)
	})
	assert.True(t, cardtable.IsCleanEntryAtIndex(f.rs.Aligned().CardTableStart(c), 0))

	f.rs.DirtyCardForAlignedObject(obj, false)
	assert.NotPanics(t, func() {
		f.rs.DirtyCardForAlignedObject(obj, true)
	})
}

func TestWalkDirtyObjects(t *testing.T) {
	table := []struct {
		name  string
		dirty []int
		walk  []uintptr
	}{
		{name: "none"},
		{name: "first-card", dirty: []int{0}, walk: []uintptr{0}},
		{name: "skips-crossing-object", dirty: []int{1}, walk: []uintptr{600, 624}},
		{name: "object-starting-in-later-card", dirty: []int{3}},
		{name: "last-object", dirty: []int{4}, walk: []uintptr{2048}},
		{name: "several", dirty: []int{0, 1, 4}, walk: []uintptr{0, 600, 624, 2048}},
	}
	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.oldChunk(t)

			var objs []memory.Pointer
			for _, size := range []uintptr{600, 24, 1424, 8} {
				objs = append(objs, f.allocOld(t, c, size, 0))
			}
			for _, i := range e.dirty {
				cardtable.DirtyEntryAtIndex(f.rs.Aligned().CardTableStart(c), uintptr(i))
			}

			assert.Equal(t, e.walk, collectDirty(t, f.rs, c, false))
			// without cleaning the walk is repeatable
			assert.Equal(t, e.walk, collectDirty(t, f.rs, c, false))
		})
	}
}

func TestWalkDirtyObjects_Clean(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)

	obj := f.allocOld(t, c, 2000, 0)
	f.rs.DirtyCardForAlignedObject(obj, false)

	assert.Equal(t, []uintptr{0}, collectDirty(t, f.rs, c, true))
	assert.Nil(t, collectDirty(t, f.rs, c, true))
	assert.True(t, f.rs.VerifyOnlyCleanAlignedChunk(c))
}

func TestWalkDirtyObjects_Abort(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)

	first := f.allocOld(t, c, 16, 0)
	f.allocOld(t, c, 16, 0)
	f.rs.DirtyCardForAlignedObject(first, false)

	errStop := errors.New("stop")
	calls := 0
	var err error
	safepoint.Run(func() {
		err = f.rs.WalkDirtyObjectsOfAlignedChunk(c, func(obj memory.Pointer) error {
			calls++
			return errStop
		}, false)
	})
	assert.Equal(t, errStop, err)
	assert.Equal(t, 1, calls)
}

func TestWalkDirtyObjects_AbortWhileCleaning(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	table := f.rs.Aligned().CardTableStart(c)

	first := f.allocOld(t, c, 16, 0)
	f.allocOld(t, c, 16, 0)
	f.allocOld(t, c, 600, 0)
	later := f.allocOld(t, c, 16, 0)
	f.rs.DirtyCardForAlignedObject(first, false)
	f.rs.DirtyCardForAlignedObject(later, false)

	errStop := errors.New("stop")
	var err error
	safepoint.Run(func() {
		err = f.rs.WalkDirtyObjectsOfAlignedChunk(c, func(obj memory.Pointer) error {
			return errStop
		}, true)
	})
	assert.Equal(t, errStop, err)
	assert.True(t, cardtable.IsDirtyEntryAtIndexUnchecked(table, 0))
	assert.True(t, cardtable.IsDirtyEntryAtIndexUnchecked(table, 1))

	assert.Equal(t, []uintptr{0, 16, 32, 632}, collectDirty(t, f.rs, c, true))
	assert.True(t, f.rs.VerifyOnlyCleanAlignedChunk(c))
}

func TestUnalignedChunk_AbortWhileCleaning(t *testing.T) {
	f := newFixture(t)

	c, err := f.provider.ProduceUnaligned(1 << 20)
	require.NoError(t, err)
	obj := c.Object()
	layout.Initialize(obj, 1<<20, 1, true)
	c.SetGeneration(chunk.Old)
	f.rs.EnableRememberedSetForUnalignedChunk(c)
	f.rs.DirtyCardForUnalignedObject(obj, false)

	errStop := errors.New("stop")
	safepoint.Run(func() {
		err = f.rs.WalkDirtyObjectsOfUnalignedChunk(c, func(memory.Pointer) error {
			return errStop
		}, true)
	})
	assert.Equal(t, errStop, err)
	assert.False(t, f.rs.VerifyOnlyCleanUnalignedChunk(c))
}

func TestWalkDirtyObjects_RequiresSafepoint(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	obj := f.allocOld(t, c, 16, 0)
	f.rs.DirtyCardForAlignedObject(obj, false)

	assert.Panics(t, func() {
		_ = f.rs.WalkDirtyObjectsOfAlignedChunk(c, func(memory.Pointer) error { return nil }, false)
	})
}

func TestCleanCardTable(t *testing.T) {
	f := newFixture(t)
	c := f.oldChunk(t)
	table := f.rs.Aligned().CardTableStart(c)

	objs := []memory.Pointer{
		f.allocOld(t, c, 512, 0),
		f.allocOld(t, c, 512, 0),
		f.allocOld(t, c, 512, 0),
	}
	for _, obj := range objs {
		f.rs.DirtyCardForAlignedObject(obj, false)
	}
	assert.True(t, cardtable.IsDirtyEntryAtIndexUnchecked(table, 2))

	f.rs.CleanCardTableOfAlignedChunk(c)
	assert.True(t, f.rs.VerifyOnlyCleanAlignedChunk(c))
}

func TestVerifyAlignedChunk(t *testing.T) {
	logger.SetOutput(io.Discard)

	f := newFixture(t)
	old := f.oldChunk(t)
	young := f.youngChunk(t)

	f.allocOld(t, old, 600, 0)
	holder := f.allocOld(t, old, 64, 2)
	target := allocYoung(t, young, 32)

	assert.True(t, f.rs.VerifyAlignedChunk(old))

	layout.WriteReference(holder, 1, target)
	assert.False(t, f.rs.VerifyAlignedChunk(old))

	f.rs.DirtyCardIfNecessary(holder, target)
	assert.True(t, f.rs.VerifyAlignedChunk(old))
	assert.False(t, f.rs.VerifyOnlyCleanAlignedChunk(old))
}

func TestVerifyAlignedChunk_DirtyCardBeyondTop(t *testing.T) {
	logger.SetOutput(io.Discard)

	f := newFixture(t)
	c := f.oldChunk(t)
	f.allocOld(t, c, 600, 0)

	// the card containing top may be dirty
	cardtable.DirtyEntryAtIndex(f.rs.Aligned().CardTableStart(c), 1)
	assert.True(t, f.rs.VerifyAlignedChunk(c))

	cardtable.DirtyEntryAtIndex(f.rs.Aligned().CardTableStart(c), 2)
	assert.False(t, f.rs.VerifyAlignedChunk(c))
}

func TestVerifyAlignedChunk_CorruptFirstObjectTable(t *testing.T) {
	logger.SetOutput(io.Discard)

	f := newFixture(t)
	c := f.oldChunk(t)
	f.allocOld(t, c, 2048, 0)

	f.rs.Aligned().FirstObjectTableStart(c).WriteInt8(2, -3)
	assert.False(t, f.rs.VerifyAlignedChunk(c))
}

func TestDirtyCardIfNecessary(t *testing.T) {
	table := []struct {
		name string

		nullHolder    bool
		nullReferent  bool
		complete      bool
		referentOld   bool
		holderNoRSBit bool

		dirty bool
	}{
		{name: "young-referent", dirty: true},
		{name: "null-holder", nullHolder: true},
		{name: "null-referent", nullReferent: true},
		{name: "complete-collection", complete: true},
		{name: "old-referent", referentOld: true},
		{name: "holder-without-remembered-set", holderNoRSBit: true},
	}
	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			f := newFixture(t)
			old := f.oldChunk(t)
			young := f.youngChunk(t)

			f.allocOld(t, old, 1024, 0)
			holder := f.allocOld(t, old, 32, 1)
			referent := allocYoung(t, young, 16)

			if e.referentOld {
				referent = f.allocOld(t, old, 16, 0)
			}
			if e.holderNoRSBit {
				layout.ClearRememberedSetBit(holder)
			}
			f.heap.complete = e.complete

			h, r := holder, referent
			if e.nullHolder {
				h = memory.Null
			}
			if e.nullReferent {
				r = memory.Null
			}
			f.rs.DirtyCardIfNecessary(h, r)

			dirty := cardtable.IsDirtyEntryAtIndexUnchecked(f.rs.Aligned().CardTableStart(old), 2)
			assert.Equal(t, e.dirty, dirty)
			assert.True(t, f.rs.VerifyOnlyCleanAlignedChunk(young))
		})
	}
}

func TestUnalignedChunk(t *testing.T) {
	logger.SetOutput(io.Discard)

	f := newFixture(t)
	young := f.youngChunk(t)
	target := allocYoung(t, young, 16)

	c, err := f.provider.ProduceUnaligned(1 << 20)
	require.NoError(t, err)
	obj := c.Object()
	layout.Initialize(obj, 1<<20, 4, true)
	c.SetGeneration(chunk.Old)
	f.rs.EnableRememberedSetForUnalignedChunk(c)

	assert.True(t, layout.ReadHeader(obj).HasRememberedSet())
	assert.True(t, f.rs.VerifyOnlyCleanUnalignedChunk(c))
	assert.True(t, f.rs.VerifyUnalignedChunk(c))

	layout.WriteReference(obj, 3, target)
	assert.False(t, f.rs.VerifyUnalignedChunk(c))

	f.rs.DirtyCardIfNecessary(obj, target)
	assert.True(t, f.rs.VerifyUnalignedChunk(c))
	assert.False(t, f.rs.VerifyOnlyCleanUnalignedChunk(c))
	assert.NotPanics(t, func() {
		f.rs.DirtyCardForUnalignedObject(obj, true)
	})

	var visited []memory.Pointer
	collect := func(p memory.Pointer) error {
		visited = append(visited, p)
		return nil
	}
	safepoint.Run(func() {
		require.NoError(t, f.rs.WalkDirtyObjectsOfUnalignedChunk(c, collect, true))
		require.NoError(t, f.rs.WalkDirtyObjectsOfUnalignedChunk(c, collect, true))
	})
	assert.Equal(t, []memory.Pointer{obj}, visited)
	assert.True(t, f.rs.VerifyOnlyCleanUnalignedChunk(c))

	f.rs.DirtyCardForUnalignedObject(obj, false)
	f.rs.CleanCardTableOfUnalignedChunk(c)
	assert.True(t, f.rs.VerifyOnlyCleanUnalignedChunk(c))

	f.rs.DirtyCardForUnalignedObject(obj, false)
	f.rs.ClearRememberedSetForUnalignedChunk(c)
	assert.True(t, f.rs.VerifyOnlyCleanUnalignedChunk(c))
}

func TestNoRememberedSet(t *testing.T) {
	rs := NewNoRememberedSet()
	c := chunk.EnclosingAligned(memory.Pointer(0x100000), testChunkSize)
	u := chunk.EnclosingUnaligned(memory.Pointer(0x200000), rs.UnalignedChunkHeaderSize())

	assert.Equal(t, chunk.HeaderSize, rs.AlignedChunkHeaderSize())
	assert.Equal(t, chunk.HeaderSize, rs.UnalignedChunkHeaderSize())

	assert.PanicsWithValue(t, ErrShouldNotReachHere, func() {
		rs.DirtyCardForAlignedObject(memory.Pointer(0x100100), false)
	})
	assert.PanicsWithValue(t, ErrShouldNotReachHere, func() {
		rs.DirtyCardForUnalignedObject(memory.Pointer(0x200100), true)
	})
	assert.PanicsWithValue(t, ErrShouldNotReachHere, func() {
		_ = rs.WalkDirtyObjectsOfAlignedChunk(c, nil, true)
	})
	assert.PanicsWithValue(t, ErrShouldNotReachHere, func() {
		_ = rs.WalkDirtyObjectsOfUnalignedChunk(u, nil, true)
	})
	assert.PanicsWithValue(t, ErrShouldNotReachHere, func() {
		rs.CleanCardTableOfAlignedChunk(c)
	})
	assert.PanicsWithValue(t, ErrShouldNotReachHere, func() {
		rs.CleanCardTableOfUnalignedChunk(u)
	})

	assert.NotPanics(t, func() {
		rs.EnableRememberedSetForAlignedChunk(c)
		rs.EnableRememberedSetForUnalignedChunk(u)
		rs.EnableRememberedSetForObject(c, memory.Pointer(0x100100))
		rs.ClearRememberedSetForAlignedChunk(c)
		rs.ClearRememberedSetForUnalignedChunk(u)
		rs.DirtyCardIfNecessary(memory.Pointer(0x100100), memory.Pointer(0x100200))
	})

	assert.True(t, rs.VerifyAlignedChunk(c))
	assert.True(t, rs.VerifyUnalignedChunk(u))
	assert.True(t, rs.VerifyOnlyCleanAlignedChunk(c))
	assert.True(t, rs.VerifyOnlyCleanUnalignedChunk(u))
}

func TestNew(t *testing.T) {
	h := &fakeHeap{}

	rs := New(h)
	assert.IsType(t, &CardTableBased{}, rs)
	assert.Equal(t, uintptr(DefaultAlignedChunkSize), rs.(*CardTableBased).Aligned().ChunkSize())

	rs = New(h, WithAlignedChunkSize(testChunkSize))
	assert.Equal(t, uintptr(testChunkSize), rs.(*CardTableBased).Aligned().ChunkSize())

	rs = New(h, WithRememberedSet(false))
	assert.IsType(t, NoRememberedSet{}, rs)
}
