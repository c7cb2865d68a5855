// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout_Offsets(t *testing.T) {
	l, err := New(3, 16, 40, 10008)
	require.NoError(t, err)

	assert.Equal(t, uint64(HeaderSize), l.MPHFOffset())
	assert.Equal(t, uint64(HeaderSize+40), l.KeyTableOffset())
	assert.Equal(t, uint64(HeaderSize+40+3*16), l.OffsetTableOffset())
	assert.Equal(t, uint64(HeaderSize+40+3*16+3*EntrySize), l.ObjectRegionOffset())
	assert.Equal(t, l.ObjectRegionOffset()+10008, l.FileSize())

	start, end := l.KeySlotRange(2)
	assert.Equal(t, l.KeyTableOffset()+32, start)
	assert.Equal(t, start+16, end)

	start, end = l.OffsetEntryRange(1)
	assert.Equal(t, l.OffsetTableOffset()+EntrySize, start)
	assert.Equal(t, start+EntrySize, end)

	assert.Panics(t, func() { l.KeySlotRange(3) })
	assert.Panics(t, func() { l.OffsetEntryRange(3) })
}

func TestLayout_Overflow(t *testing.T) {
	_, err := New(math.MaxUint64/2, 16, 0, 0)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = New(1, 16, 0, math.MaxUint64-10)
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = New(0, 16, 0, math.MaxInt64)
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestLayout_ObjectRange(t *testing.T) {
	l, err := New(2, 8, 0, 100)
	require.NoError(t, err)

	start, end, ok := l.ObjectRange(NewEntry(10, 90))
	require.True(t, ok)
	assert.Equal(t, l.ObjectRegionOffset()+10, start)
	assert.Equal(t, l.ObjectRegionOffset()+100, end)

	_, _, ok = l.ObjectRange(NewEntry(10, 91))
	assert.False(t, ok)
	_, _, ok = l.ObjectRange(NewEntry(101, 0))
	assert.False(t, ok)
	_, _, ok = l.ObjectRange(NewEntry(math.MaxUint64-1, 5))
	assert.False(t, ok)
}

func TestEntry_Tombstone(t *testing.T) {
	e := NewEntry(1234, 5678)
	assert.False(t, e.Deleted())

	var buf [EntrySize]byte
	e.Tombstoned().MarshalTo(buf[:])
	decoded := DecodeEntry(buf[:])
	assert.True(t, decoded.Deleted())
	assert.Equal(t, uint64(1234), decoded.Offset)
	assert.Equal(t, uint64(5678), decoded.Size())

	e.MarshalTo(buf[:])
	assert.Equal(t, e, DecodeEntry(buf[:]))
}
