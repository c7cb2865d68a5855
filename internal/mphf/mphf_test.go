// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package mphf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tableFunc maps keys to slots via a fixed table.
type tableFunc map[string]uint64

func (f tableFunc) Eval(key []byte) (uint64, bool) {
	slot, ok := f[string(key)]
	return slot, ok
}

func (f tableFunc) Len() uint64 {
	return uint64(len(f))
}

func keys(strs ...string) [][]byte {
	out := make([][]byte, len(strs))
	for i, s := range strs {
		out[i] = []byte(s)
	}
	return out
}

func TestSlots(t *testing.T) {
	f := tableFunc{"a": 2, "b": 0, "c": 1}
	slots, err := Slots(f, keys("a", "b", "c"))
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 0, 1}, slots)
}

func TestSlots_collision(t *testing.T) {
	f := tableFunc{"a": 1, "b": 0, "c": 1}
	_, err := Slots(f, keys("a", "b", "c"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestSlots_outOfRange(t *testing.T) {
	f := tableFunc{"a": 0, "b": 7}
	_, err := Slots(f, keys("a", "b"))
	assert.ErrorIs(t, err, ErrConstructionFailed)

	_, err = Slots(f, keys("a", "b", "c"))
	assert.ErrorIs(t, err, ErrConstructionFailed)
}
