// Copyright 2026 The shard Authors and Caleb Spare. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package chd implements the "hash, displace, and compress" minimal perfect
// hash described in http://cmph.sourceforge.net/papers/esa09.pdf, using
// farmhash for both levels.
package chd

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math/bits"
	"slices"
	"sort"

	"github.com/dgryski/go-farm"

	"github.com/bpowers/shard/internal/bitset"
	"github.com/bpowers/shard/internal/mphf"
)

const (
	ID = uint32(1)

	blobHeaderSize = 16
	maxUint32      = ^uint32(0)
)

// Algorithm is the mphf.Algorithm for CHD.
var Algorithm mphf.Algorithm = algorithm{}

type algorithm struct{}

func (algorithm) ID() uint32   { return ID }
func (algorithm) Name() string { return "chd" }

func (algorithm) Build(keys [][]byte, logger *slog.Logger) ([]byte, error) {
	t, err := build(keys, logger)
	if err != nil {
		return nil, err
	}
	return t.MarshalBinary(), nil
}

func (algorithm) Load(blob []byte) (mphf.Func, error) {
	return Load(blob)
}

// nextPow2 returns the next highest power of two above a given number.
func nextPow2(n int64) int64 {
	return 1 << (64 - bits.LeadingZeros64(uint64(n)))
}

// fastRange maps a 64-bit hash uniformly onto [0, n).
func fastRange(h, n uint64) uint64 {
	hi, _ := bits.Mul64(h, n)
	return hi
}

type bucket struct {
	n      int64
	values []uint32
}

// bySize is used to sort our buckets from most full to least full
type bySize []bucket

func (s bySize) Len() int           { return len(s) }
func (s bySize) Less(i, j int) bool { return len(s[i].values) > len(s[j].values) }
func (s bySize) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

// Table is a CHD minimal perfect hash over a fixed key set.
type Table struct {
	count      uint64
	level0     []uint32 // power of 2 size
	level0Mask uint64   // len(level0) - 1
}

func build(keys [][]byte, logger *slog.Logger) (*Table, error) {
	entryLen := int64(len(keys))
	if entryLen > int64(maxUint32) {
		return nil, fmt.Errorf("%w: too many keys (%d)", mphf.ErrConstructionFailed, entryLen)
	}

	var (
		level0Len     = nextPow2(entryLen / 4)
		level0Mask    = uint64(level0Len - 1)
		level0        = make([]uint32, level0Len)
		sparseBuckets = make([][]uint32, level0Len)
		count         = uint64(entryLen)
	)

	logger.Debug("building sparse buckets", "keys", entryLen, "buckets", level0Len)
	for i, key := range keys {
		n := farm.Hash64WithSeed(key, 0) & level0Mask
		sparseBuckets[n] = append(sparseBuckets[n], uint32(i))
	}

	var buckets []bucket
	for n, vals := range sparseBuckets {
		if len(vals) > 0 {
			buckets = append(buckets, bucket{n: int64(n), values: vals})
		}
	}
	sparseBuckets = nil
	sort.Sort(bySize(buckets))

	logger.Debug("placing buckets", "buckets", len(buckets))
	occ := bitset.New(entryLen)
	var tmpOcc []uint64
	for j, b := range buckets {
		if j > 0 && j%1000000 == 0 {
			logger.Debug("placing buckets", "at", j)
		}
		// identical keys share a bucket and would never find a seed
		if err := checkDuplicates(keys, b.values); err != nil {
			return nil, err
		}
		seed := uint64(1)
	trySeed:
		if seed >= uint64(maxUint32) {
			return nil, fmt.Errorf("%w: couldn't find 32-bit seed for bucket %d", mphf.ErrConstructionFailed, b.n)
		}
		tmpOcc = tmpOcc[:0]
		for _, i := range b.values {
			n := fastRange(farm.Hash64WithSeed(keys[i], seed), count)
			if occ.IsSet(int64(n)) {
				for _, n := range tmpOcc {
					occ.Clear(int64(n))
				}
				seed++
				goto trySeed
			}
			tmpOcc = append(tmpOcc, n)
			occ.Set(int64(n))
		}
		level0[b.n] = uint32(seed)
	}

	return &Table{
		count:      count,
		level0:     level0,
		level0Mask: level0Mask,
	}, nil
}

func checkDuplicates(keys [][]byte, values []uint32) error {
	if len(values) < 2 {
		return nil
	}
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

// Eval returns the slot for b.  Every key, known or not, maps to some slot.
func (t *Table) Eval(b []byte) (uint64, bool) {
	if t.count == 0 {
		return 0, false
	}
	// first we hash the key with a fixed seed, giving us the offset
	// of a seed that perfectly hashes into our second-level table
	seed := uint64(t.level0[farm.Hash64WithSeed(b, 0)&t.level0Mask])
	return fastRange(farm.Hash64WithSeed(b, seed), t.count), true
}

func (t *Table) Len() uint64 {
	return t.count
}

// MarshalBinary serializes the table as
//
//	[count u64][level0 length u64][level0 seeds, u32 each]
func (t *Table) MarshalBinary() []byte {
	buf := make([]byte, blobHeaderSize+4*len(t.level0))
	binary.LittleEndian.PutUint64(buf[0:8], t.count)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(t.level0)))
	rest := buf[blobHeaderSize:]
	for i, seed := range t.level0 {
		binary.LittleEndian.PutUint32(rest[i*4:i*4+4], seed)
	}
	return buf
}

// Load deserializes a table written by MarshalBinary.
func Load(blob []byte) (*Table, error) {
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("%w: chd blob too short (%d)", mphf.ErrCorrupt, len(blob))
	}
	count := binary.LittleEndian.Uint64(blob[0:8])
	level0Len := binary.LittleEndian.Uint64(blob[8:16])
	if level0Len == 0 || level0Len&(level0Len-1) != 0 {
		return nil, fmt.Errorf("%w: level0 length %d not a power of 2", mphf.ErrCorrupt, level0Len)
	}
	rest := blob[blobHeaderSize:]
	if uint64(len(rest))/4 != level0Len || uint64(len(rest))%4 != 0 {
		return nil, fmt.Errorf("%w: bad len for level0: %d (expected %d)", mphf.ErrCorrupt, len(rest), level0Len*4)
	}
	level0 := make([]uint32, level0Len)
	for i := range level0 {
		level0[i] = binary.LittleEndian.Uint32(rest[i*4 : i*4+4])
	}
	return &Table{
		count:      count,
		level0:     level0,
		level0Mask: level0Len - 1,
	}, nil
}
