// Duplicate bitmap: a packed bit vector marking which dataset lines the
// Dedup Engine judged to be duplicates. Grounded on
// original_source/src/engine.rs's BitMask and the teacher's bloom.go
// bit-packing style, using bits.OnesCount64 for hardware popcount.
package caret

import "math/bits"

// DuplicateBitmap is a fixed-length, 64-bits-per-word packed bit vector.
type DuplicateBitmap struct {
	words []uint64
	len   int
}

// NewDuplicateBitmap allocates a bitmap of the given length, all bits clear.
func NewDuplicateBitmap(length int) *DuplicateBitmap {
	return &DuplicateBitmap{
		words: make([]uint64, (length+63)/64),
		len:   length,
	}
}

// Set marks index i as a duplicate. Out-of-range indices are ignored.
func (b *DuplicateBitmap) Set(i int) {
	if i < 0 || i >= b.len {
		return
	}
	b.words[i/64] |= 1 << uint(i%64)
}

// Get reports whether index i is marked as a duplicate.
func (b *DuplicateBitmap) Get(i int) bool {
	if i < 0 || i >= b.len {
		return false
	}
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Len returns the bitmap's addressable length.
func (b *DuplicateBitmap) Len() int {
	return b.len
}

// IsEmpty reports whether no bits are set.
func (b *DuplicateBitmap) IsEmpty() bool {
	for _, w := range b.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// CountOnes returns the number of set bits, using hardware popcount
// (POPCNT on amd64/arm64) per word.
func (b *DuplicateBitmap) CountOnes() int {
	count := 0
	for _, w := range b.words {
		count += bits.OnesCount64(w)
	}
	return count
}
