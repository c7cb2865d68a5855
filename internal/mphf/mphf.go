// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mphf defines the contract shard files rely on from a minimal
// perfect hash function: for a fixed set of N distinct keys, a
// deterministic bijection onto [0, N) that serializes to a compact blob.
package mphf

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/bpowers/shard/internal/bitset"
)

var (
	ErrDuplicateKey       = errors.New("duplicate key or hash collision")
	ErrConstructionFailed = errors.New("minimal perfect hash construction failed")
	ErrCorrupt            = errors.New("serialized minimal perfect hash is corrupt")
)

// Func is a loaded minimal perfect hash function.
type Func interface {
	// Eval returns the slot for key.  For keys outside the build set the
	// result is either an arbitrary slot in [0, Len()) or ok == false if
	// the function can tell the key is unknown.
	Eval(key []byte) (slot uint64, ok bool)
	// Len is the number of keys the function was built over.
	Len() uint64
}

// Algorithm builds and loads one kind of minimal perfect hash function.
type Algorithm interface {
	// ID is recorded in shard file headers to select the loader.
	ID() uint32
	Name() string
	Build(keys [][]byte, logger *slog.Logger) ([]byte, error)
	Load(blob []byte) (Func, error)
}

// Slots evaluates f for every key and returns the slot of each, failing
// with ErrDuplicateKey if the mapping is not a bijection onto [0, len(keys)).
// This is the authoritative duplicate check for a build.
func Slots(f Func, keys [][]byte) ([]uint64, error) {
	n := uint64(len(keys))
	if f.Len() != n {
		return nil, fmt.Errorf("%w: function built over %d keys, asked to place %d", ErrConstructionFailed, f.Len(), n)
	}
	occ := bitset.New(int64(n))
	slots := make([]uint64, n)
	for i, key := range keys {
		slot, ok := f.Eval(key)
		if !ok || slot >= n {
			return nil, fmt.Errorf("%w: key %d (%x) not placed", ErrConstructionFailed, i, key)
		}
		if occ.TestAndSet(int64(slot)) {
			return nil, fmt.Errorf("%w: key %d (%x) maps to occupied slot %d", ErrDuplicateKey, i, key, slot)
		}
		slots[i] = slot
	}
	return slots, nil
}
