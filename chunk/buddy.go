package chunk

import (
	"math"
	"unsafe"

	"github.com/QuangTung97/remset/memory"
)

const buddyNullOffset = uintptr(math.MaxUint64)

// buddy hands out power-of-two blocks of a reserved address space. Blocks
// are at least 1<<minSizeLog bytes and aligned to their size relative to
// data, so a data base aligned to the chunk size yields size-aligned chunks.
// Free blocks hold their list head in their own first bytes.
type buddy struct {
	minSizeLog   uint
	maxSizeLog   uint
	sizeMultiple uintptr
	data         memory.Pointer
	buckets      []uintptr
	bitset       []uint64
}

type buddyListHead struct {
	next        uintptr
	prev        uintptr
	bucketIndex uintptr
}

func findSizeLogList(sizeMultiple uintptr) []uint {
	var result []uint
	for pos := uint(0); sizeMultiple != 0; pos++ {
		if sizeMultiple&0x1 != 0 {
			result = append(result, pos)
		}
		sizeMultiple >>= 1
	}
	return result
}

func makeBitSet(sizeMultiple uintptr) []uint64 {
	return make([]uint64, (sizeMultiple+63)>>6)
}

func buddyInit(b *buddy, minSizeLog uint, sizeMultiple uintptr, data memory.Pointer) {
	sizeLogList := findSizeLogList(sizeMultiple)
	last := sizeLogList[len(sizeLogList)-1]

	b.minSizeLog = minSizeLog
	b.maxSizeLog = last + minSizeLog
	b.sizeMultiple = sizeMultiple
	b.data = data
	b.buckets = make([]uintptr, last+1)
	b.bitset = makeBitSet(sizeMultiple)

	for i := range b.buckets {
		b.buckets[i] = buddyNullOffset
	}

	offset := uintptr(0)
	for i := len(sizeLogList) - 1; i >= 0; i-- {
		bucket := sizeLogList[i]
		b.addListHead(bucket, offset)
		b.setBit(offset)

		offset += 1 << (bucket + minSizeLog)
	}
}

func (b *buddy) head(offset uintptr) *buddyListHead {
	return (*buddyListHead)(unsafe.Pointer(uintptr(b.data.Add(offset))))
}

func (b *buddy) bitIndex(offset uintptr) (uintptr, uint64) {
	index := offset >> b.minSizeLog
	return index >> 6, uint64(1) << (index & 0x3f)
}

func (b *buddy) setBit(offset uintptr) {
	word, mask := b.bitIndex(offset)
	b.bitset[word] |= mask
}

func (b *buddy) clearBit(offset uintptr) {
	word, mask := b.bitIndex(offset)
	b.bitset[word] &^= mask
}

func (b *buddy) isBitSet(offset uintptr) bool {
	word, mask := b.bitIndex(offset)
	return b.bitset[word]&mask != 0
}

func (b *buddy) addListHead(bucket uint, offset uintptr) {
	root := &b.buckets[bucket]
	if *root != buddyNullOffset {
		b.head(*root).prev = offset
	}

	node := b.head(offset)
	node.next = *root
	node.prev = buddyNullOffset
	node.bucketIndex = uintptr(bucket)
	*root = offset
}

func (b *buddy) removeListHead(bucket uint, offset uintptr) {
	node := b.head(offset)
	if node.next != buddyNullOffset {
		b.head(node.next).prev = node.prev
	}

	if node.prev != buddyNullOffset {
		b.head(node.prev).next = node.next
	} else {
		b.buckets[bucket] = node.next
	}
}

func (b *buddy) contentOfList(sizeLog uint) []uintptr {
	var result []uintptr
	bucket := sizeLog - b.minSizeLog

	offset := b.buckets[bucket]
	for offset != buddyNullOffset {
		node := b.head(offset)
		if node.bucketIndex == uintptr(bucket) {
			result = append(result, offset)
		}
		offset = node.next
	}
	return result
}

// allocate returns the offset of a free block of 1<<sizeLog bytes.
func (b *buddy) allocate(sizeLog uint) (uintptr, bool) {
	if sizeLog < b.minSizeLog || sizeLog > b.maxSizeLog {
		return 0, false
	}
	bucket := sizeLog - b.minSizeLog
	maxBucket := b.maxSizeLog - b.minSizeLog

	emptyBucket := bucket
	for ; emptyBucket <= maxBucket && b.buckets[emptyBucket] == buddyNullOffset; emptyBucket++ {
	}
	if emptyBucket > maxBucket {
		return 0, false
	}

	offset := b.buckets[emptyBucket]
	b.removeListHead(emptyBucket, offset)
	b.clearBit(offset)

	for i := int(emptyBucket) - 1; i >= int(bucket); i-- {
		half := offset + (1 << (uint(i) + b.minSizeLog))
		b.addListHead(uint(i), half)
		b.setBit(half)
	}
	return offset, true
}

func computeRootAndNeighborOffset(offset uintptr, sizeLog uint) (uintptr, uintptr) {
	mask := ^uintptr(0) << (sizeLog + 1)
	masked := offset & mask
	if masked == offset {
		return masked, offset + (1 << sizeLog)
	}
	return masked, masked
}

// deallocate frees a block of 1<<sizeLog bytes, merging it with free buddies.
func (b *buddy) deallocate(offset uintptr, sizeLog uint) {
	bucket := sizeLog - b.minSizeLog

	for sizeLog < b.maxSizeLog {
		root, neighbor := computeRootAndNeighborOffset(offset, sizeLog)
		if (neighbor >> b.minSizeLog) >= b.sizeMultiple {
			break
		}
		if !b.isBitSet(neighbor) {
			break
		}
		if b.head(neighbor).bucketIndex != uintptr(bucket) {
			break
		}

		b.removeListHead(bucket, neighbor)
		b.clearBit(neighbor)

		offset = root
		sizeLog++
		bucket++
	}

	b.addListHead(bucket, offset)
	b.setBit(offset)
}
