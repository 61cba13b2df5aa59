package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapAligned(t *testing.T) {
	table := []struct {
		name  string
		size  uintptr
		align uintptr
	}{
		{name: "page", size: 4096, align: 8},
		{name: "chunk", size: 1 << 20, align: 1 << 20},
		{name: "small-chunk", size: 64 << 10, align: 64 << 10},
	}

	for _, e := range table {
		t.Run(e.name, func(t *testing.T) {
			r, err := MapAligned(e.size, e.align)
			require.NoError(t, err)
			defer func() {
				assert.NoError(t, r.Release())
			}()

			assert.True(t, IsAligned(uintptr(r.Base()), e.align))
			assert.Equal(t, e.size, r.Size())
			assert.Equal(t, r.Base().Add(e.size), r.End())
			assert.True(t, r.Contains(r.Base()))
			assert.True(t, r.Contains(r.End().Sub(1)))
			assert.False(t, r.Contains(r.End()))

			assert.Equal(t, uint64(0), r.Base().ReadWord(0))
			assert.Equal(t, byte(0), r.End().Sub(1).ReadUint8(0))
		})
	}
}

func TestMapAligned_Invalid(t *testing.T) {
	_, err := MapAligned(0, 8)
	assert.Error(t, err)

	_, err = MapAligned(4096, 24)
	assert.Error(t, err)
}

func TestPointer_ReadWrite(t *testing.T) {
	r, err := MapAligned(4096, 8)
	require.NoError(t, err)
	defer func() { _ = r.Release() }()

	p := r.Base()
	p.WriteUint8(3, 0xab)
	assert.Equal(t, byte(0xab), p.ReadUint8(3))

	p.WriteInt8(4, -64)
	assert.Equal(t, int8(-64), p.ReadInt8(4))

	p.WriteUint16(16, 0xbeef)
	assert.Equal(t, uint16(0xbeef), p.ReadUint16(16))

	p.WriteWord(24, 0x1122334455667788)
	assert.Equal(t, uint64(0x1122334455667788), p.ReadWord(24))

	p.WritePointer(32, p.Add(100))
	assert.Equal(t, p.Add(100), p.ReadPointer(32))

	p.Add(64).Fill(16, 1)
	assert.Equal(t, []byte{0, 1, 1, 1}, p.Add(63).Bytes(4))
	assert.Equal(t, byte(0), p.ReadUint8(80))

	assert.Equal(t, uintptr(100), p.Add(100).Offset(p))
}

func TestRelease_Twice(t *testing.T) {
	r, err := MapAligned(4096, 8)
	require.NoError(t, err)
	assert.NoError(t, r.Release())
	assert.NoError(t, r.Release())
	assert.Equal(t, Null, r.Base())
}

func TestAlign(t *testing.T) {
	assert.Equal(t, uintptr(16), AlignUp(9, 8))
	assert.Equal(t, uintptr(8), AlignUp(8, 8))
	assert.Equal(t, uintptr(8), AlignDown(15, 8))
	assert.True(t, IsAligned(1024, 512))
	assert.False(t, IsAligned(1000, 512))
	assert.True(t, IsPowerOfTwo(1<<20))
	assert.False(t, IsPowerOfTwo(0))
	assert.False(t, IsPowerOfTwo(48))
	assert.Equal(t, uintptr(2), CeilDiv(513, 512))
	assert.Equal(t, uintptr(1), CeilDiv(512, 512))
	assert.Equal(t, uintptr(0), CeilDiv(0, 512))
}
