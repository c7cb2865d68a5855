// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bbhash implements the BBHash minimal perfect hash
// (https://arxiv.org/abs/1702.03154) over murmur3.  Unlike CHD it can
// reject many keys outside the build set without consulting the data.
package bbhash

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spaolacci/murmur3"

	"github.com/bpowers/shard/internal/bitset"
	"github.com/bpowers/shard/internal/mphf"
)

const (
	ID = uint32(2)

	// gamma trades space for build speed; 2.0 gives ~3.7 bits per key.
	gamma     = 2.0
	maxLevels = 48

	blobHeaderSize = 16
)

// Algorithm is the mphf.Algorithm for BBHash.
var Algorithm mphf.Algorithm = algorithm{}

type algorithm struct{}

func (algorithm) ID() uint32   { return ID }
func (algorithm) Name() string { return "bbhash" }

func (algorithm) Build(keys [][]byte, logger *slog.Logger) ([]byte, error) {
	h, err := build(keys, logger)
	if err != nil {
		return nil, err
	}
	return h.MarshalBinary(), nil
}

func (algorithm) Load(blob []byte) (mphf.Func, error) {
	return Load(blob)
}

// Hash is a BBHash minimal perfect hash over a fixed key set.
type Hash struct {
	count     uint64
	levelLens []uint64 // in bits, each a multiple of 64
	levelOffs []uint64 // bit offset of each level in bits
	words     []uint64
	bits      *bitset.Ranked
}

func levelHash(key []byte, level int, levelLen uint64) uint64 {
	return murmur3.Sum64WithSeed(key, uint32(level)) % levelLen
}

func levelSize(remaining int) uint64 {
	size := uint64(float64(remaining)*gamma) + 63
	size -= size % 64
	return max(size, 64)
}

func build(keys [][]byte, logger *slog.Logger) (*Hash, error) {
	remaining := make([]uint32, len(keys))
	for i := range remaining {
		remaining[i] = uint32(i)
	}

	var (
		levels    []*bitset.Bitset
		levelLens []uint64
		next      []uint32
	)
	for level := 0; len(remaining) > 0; level++ {
		if level >= maxLevels {
			if err := checkDuplicates(keys, remaining); err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %d keys left after %d levels", mphf.ErrConstructionFailed, len(remaining), maxLevels)
		}

		size := levelSize(len(remaining))
		seen := bitset.New(int64(size))
		collided := bitset.New(int64(size))
		for _, i := range remaining {
			n := int64(levelHash(keys[i], level, size))
			if seen.TestAndSet(n) {
				collided.Set(n)
			}
		}
		seen.AndNot(collided)

		next = next[:0]
		for _, i := range remaining {
			if collided.IsSet(int64(levelHash(keys[i], level, size))) {
				next = append(next, i)
			}
		}
		logger.Debug("bbhash level", "level", level, "bits", size, "placed", len(remaining)-len(next), "remaining", len(next))

		levels = append(levels, seen)
		levelLens = append(levelLens, size)
		remaining, next = next, remaining
	}

	var words []uint64
	for _, l := range levels {
		words = append(words, l.Words()...)
	}

	return newHash(uint64(len(keys)), levelLens, words), nil
}

func newHash(count uint64, levelLens []uint64, words []uint64) *Hash {
	levelOffs := make([]uint64, len(levelLens))
	var off uint64
	for i, l := range levelLens {
		levelOffs[i] = off
		off += l
	}
	return &Hash{
		count:     count,
		levelLens: levelLens,
		levelOffs: levelOffs,
		words:     words,
		bits:      bitset.NewRanked(bitset.FromWords(words)),
	}
}

func checkDuplicates(keys [][]byte, values []uint32) error {
	sorted := slices.Clone(values)
	slices.SortFunc(sorted, func(a, b uint32) int {
		return bytes.Compare(keys[a], keys[b])
	})
	for i := 1; i < len(sorted); i++ {
		if bytes.Equal(keys[sorted[i-1]], keys[sorted[i]]) {
			return fmt.Errorf("%w: keys %d and %d are both %x", mphf.ErrDuplicateKey, sorted[i-1], sorted[i], keys[sorted[i]])
		}
	}
	return nil
}

// Eval returns the slot for key, or ok == false if no level claims it.
func (h *Hash) Eval(key []byte) (uint64, bool) {
	for level, size := range h.levelLens {
		pos := int64(h.levelOffs[level] + levelHash(key, level, size))
		if h.bits.IsSet(pos) {
			return h.bits.Rank(pos), true
		}
	}
	return 0, false
}

func (h *Hash) Len() uint64 {
	return h.count
}

// MarshalBinary serializes the hash as
//
//	[count u64][level count u64][level lengths in bits, u64 each][bit words, u64 each]
func (h *Hash) MarshalBinary() []byte {
	words := h.words
	buf := make([]byte, blobHeaderSize+8*len(h.levelLens)+8*len(words))
	binary.LittleEndian.PutUint64(buf[0:8], h.count)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(h.levelLens)))
	off := blobHeaderSize
	for _, l := range h.levelLens {
		binary.LittleEndian.PutUint64(buf[off:off+8], l)
		off += 8
	}
	for _, w := range words {
		binary.LittleEndian.PutUint64(buf[off:off+8], w)
		off += 8
	}
	return buf
}

// Load deserializes a hash written by MarshalBinary.
func Load(blob []byte) (*Hash, error) {
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("%w: bbhash blob too short (%d)", mphf.ErrCorrupt, len(blob))
	}
	count := binary.LittleEndian.Uint64(blob[0:8])
	nLevels := binary.LittleEndian.Uint64(blob[8:16])
	if nLevels > maxLevels {
		return nil, fmt.Errorf("%w: %d levels", mphf.ErrCorrupt, nLevels)
	}
	rest := blob[blobHeaderSize:]
	if uint64(len(rest)) < nLevels*8 {
		return nil, fmt.Errorf("%w: truncated level table", mphf.ErrCorrupt)
	}

	levelLens := make([]uint64, nLevels)
	var totalWords uint64
	for i := range levelLens {
		l := binary.LittleEndian.Uint64(rest[i*8 : i*8+8])
		if l == 0 || l%64 != 0 || l/64 > uint64(len(rest)) {
			return nil, fmt.Errorf("%w: bad level length %d", mphf.ErrCorrupt, l)
		}
		levelLens[i] = l
		totalWords += l / 64
	}
	rest = rest[nLevels*8:]
	if uint64(len(rest)) != totalWords*8 {
		return nil, fmt.Errorf("%w: expected %d bytes of bits, found %d", mphf.ErrCorrupt, totalWords*8, len(rest))
	}

	words := make([]uint64, totalWords)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(rest[i*8 : i*8+8])
	}
	h := newHash(count, levelLens, words)
	if set := uint64(bitset.FromWords(words).Count()); set != count {
		return nil, fmt.Errorf("%w: %d bits set for %d keys", mphf.ErrCorrupt, set, count)
	}
	return h, nil
}
