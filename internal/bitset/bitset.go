// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import (
	"math/bits"
)

// Bitset is an in-memory bitmap that is conceptually similar to []bool, but more memory efficient.
type Bitset struct {
	bits   []uint64
	length int64
}

func getOffsets(off int64) (sliceOff int64, bitOff uint64) {
	sliceOff = off / 64
	bitOff = uint64(off) % 64
	return
}

// Set sets the bit at position `off` to 1.
func (b *Bitset) Set(off int64) {
	if off < 0 || off >= b.length {
		return
	}
	sliceOff, bitOff := getOffsets(off)
	u64 := &b.bits[sliceOff]
	*u64 |= 1 << bitOff
}

// TestAndSet sets the bit at position `off` to 1, returning whether it was already set.
func (b *Bitset) TestAndSet(off int64) bool {
	if off < 0 || off >= b.length {
		return false
	}
	sliceOff, bitOff := getOffsets(off)
	u64 := &b.bits[sliceOff]
	wasSet := *u64&(1<<bitOff) != 0
	*u64 |= 1 << bitOff
	return wasSet
}

// Clear sets the bit at position `off` to 0.
func (b *Bitset) Clear(off int64) {
	if off < 0 || off >= b.length {
		return
	}
	sliceOff, bitOff := getOffsets(off)
	u64 := &b.bits[sliceOff]
	*u64 &= ^(1 << bitOff)
}

// IsSet returns true if the bit at position `off` is 1.
func (b *Bitset) IsSet(off int64) bool {
	if off < 0 || off >= b.length {
		return false
	}
	sliceOff, bitOff := getOffsets(off)
	return b.bits[sliceOff]&(1<<bitOff) != 0
}

// AndNot clears every bit in b that is set in other.  Both bitsets must
// be the same length.
func (b *Bitset) AndNot(other *Bitset) {
	for i := range b.bits {
		b.bits[i] &^= other.bits[i]
	}
}

// Count returns the number of set bits.
func (b *Bitset) Count() int64 {
	var n int
	for _, w := range b.bits {
		n += bits.OnesCount64(w)
	}
	return int64(n)
}

func (b *Bitset) Len() int64 {
	return b.length
}

// Words exposes the backing storage, e.g. for serialization.
func (b *Bitset) Words() []uint64 {
	return b.bits
}

// New returns a new in-memory bitset where you can set, clear and test for individual bits.
func New(length int64) *Bitset {
	sliceLen := (length + 63) / 64
	return &Bitset{
		bits:   make([]uint64, sliceLen),
		length: length,
	}
}

// FromWords wraps existing words; length is len(words)*64.
func FromWords(words []uint64) *Bitset {
	return &Bitset{
		bits:   words,
		length: int64(len(words)) * 64,
	}
}
