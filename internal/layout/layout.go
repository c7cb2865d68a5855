// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
)

const (
	EntrySize = 16

	tombstoneBit = uint64(1) << 63

	// MaxObjectSize is the largest object we can record, as the top
	// bit of the size field is reserved for tombstones.
	MaxObjectSize = tombstoneBit - 1
)

var ErrOverflow = errors.New("region sizes overflow")

// Layout holds the sizes that determine where each region of a shard
// file starts.
type Layout struct {
	Count       uint64
	KeyLen      uint64
	MPHFLen     uint64
	ObjectBytes uint64

	keyTableOff    uint64
	offsetTableOff uint64
	objectsOff     uint64
	fileSize       uint64
}

// New computes the region offsets, failing if any of them can't be
// represented as an int64 file offset.
func New(count uint64, keyLen int, mphfLen, objectBytes uint64) (*Layout, error) {
	l := &Layout{
		Count:       count,
		KeyLen:      uint64(keyLen),
		MPHFLen:     mphfLen,
		ObjectBytes: objectBytes,
	}

	var carry, overflow uint64
	add := func(a, b uint64) uint64 {
		sum, c := bits.Add64(a, b, 0)
		carry |= c
		return sum
	}
	mul := func(a, b uint64) uint64 {
		hi, lo := bits.Mul64(a, b)
		overflow |= hi
		return lo
	}

	l.keyTableOff = add(HeaderSize, mphfLen)
	l.offsetTableOff = add(l.keyTableOff, mul(count, l.KeyLen))
	l.objectsOff = add(l.offsetTableOff, mul(count, EntrySize))
	l.fileSize = add(l.objectsOff, objectBytes)

	if carry != 0 || overflow != 0 || l.fileSize > math.MaxInt64 {
		return nil, fmt.Errorf("%w: count %d, keyLen %d, mphfLen %d, objectBytes %d",
			ErrOverflow, count, keyLen, mphfLen, objectBytes)
	}

	return l, nil
}

// FromHeader is New with the sizes recorded in h.
func FromHeader(h *Header) (*Layout, error) {
	return New(h.Count, int(h.KeyLen), h.MPHFLen, h.ObjectBytes)
}

func (l *Layout) MPHFOffset() uint64         { return HeaderSize }
func (l *Layout) KeyTableOffset() uint64     { return l.keyTableOff }
func (l *Layout) OffsetTableOffset() uint64  { return l.offsetTableOff }
func (l *Layout) ObjectRegionOffset() uint64 { return l.objectsOff }
func (l *Layout) FileSize() uint64           { return l.fileSize }

func (l *Layout) checkSlot(slot uint64) {
	if slot >= l.Count {
		panic(fmt.Sprintf("slot %d out of range (count %d)", slot, l.Count))
	}
}

// KeySlotRange returns the absolute byte range of the key stored at slot.
// slot must be < Count.
func (l *Layout) KeySlotRange(slot uint64) (start, end uint64) {
	l.checkSlot(slot)
	start = l.keyTableOff + slot*l.KeyLen
	return start, start + l.KeyLen
}

// OffsetEntryRange returns the absolute byte range of the offset table
// entry for slot. slot must be < Count.
func (l *Layout) OffsetEntryRange(slot uint64) (start, end uint64) {
	l.checkSlot(slot)
	start = l.offsetTableOff + slot*EntrySize
	return start, start + EntrySize
}

// ObjectRange converts an entry into an absolute byte range, checking it
// lies within the object region.
func (l *Layout) ObjectRange(e Entry) (start, end uint64, ok bool) {
	size := e.Size()
	if e.Offset > l.ObjectBytes || size > l.ObjectBytes-e.Offset {
		return 0, 0, false
	}
	start = l.objectsOff + e.Offset
	return start, start + size, true
}

// Entry is one record of the offset table.
type Entry struct {
	Offset uint64
	size   uint64 // raw, including the tombstone bit
}

func NewEntry(offset, size uint64) Entry {
	return Entry{Offset: offset, size: size &^ tombstoneBit}
}

// Size is the length of the object in bytes, which is preserved across deletes.
func (e Entry) Size() uint64 {
	return e.size &^ tombstoneBit
}

func (e Entry) Deleted() bool {
	return e.size&tombstoneBit != 0
}

// Tombstoned returns a copy of e marked as deleted.
func (e Entry) Tombstoned() Entry {
	return Entry{Offset: e.Offset, size: e.size | tombstoneBit}
}

func (e Entry) MarshalTo(buf []byte) {
	_ = buf[EntrySize-1]
	binary.LittleEndian.PutUint64(buf[0:8], e.Offset)
	binary.LittleEndian.PutUint64(buf[8:16], e.size)
}

func DecodeEntry(buf []byte) Entry {
	_ = buf[EntrySize-1]
	return Entry{
		Offset: binary.LittleEndian.Uint64(buf[0:8]),
		size:   binary.LittleEndian.Uint64(buf[8:16]),
	}
}
