// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package bitset

import (
	"math/bits"
)

const wordsPerBlock = 8 // 512 bits

// Ranked is a read-only bitset that answers rank queries (the number of set
// bits before a position) in constant time.
type Ranked struct {
	b      *Bitset
	blocks []uint64 // cumulative popcount before each 512-bit block
}

func NewRanked(b *Bitset) *Ranked {
	words := b.bits
	blocks := make([]uint64, (len(words)+wordsPerBlock-1)/wordsPerBlock)
	var total uint64
	for i := range blocks {
		blocks[i] = total
		end := min((i+1)*wordsPerBlock, len(words))
		for _, w := range words[i*wordsPerBlock : end] {
			total += uint64(bits.OnesCount64(w))
		}
	}
	return &Ranked{b: b, blocks: blocks}
}

func (r *Ranked) IsSet(off int64) bool {
	return r.b.IsSet(off)
}

// Rank returns the number of set bits in positions [0, off).
func (r *Ranked) Rank(off int64) uint64 {
	sliceOff, bitOff := getOffsets(off)
	block := sliceOff / wordsPerBlock
	rank := r.blocks[block]
	for _, w := range r.b.bits[block*wordsPerBlock : sliceOff] {
		rank += uint64(bits.OnesCount64(w))
	}
	mask := uint64(1)<<bitOff - 1
	return rank + uint64(bits.OnesCount64(r.b.bits[sliceOff]&mask))
}
