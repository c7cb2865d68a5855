// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package ondisk accesses the key and offset tables of a shard file
// directly through pread/pwrite, without mapping or loading them.
package ondisk

import (
	"fmt"
	"io"

	"github.com/bpowers/shard/internal/layout"
)

// File is usually an *os.File, but specified as an interface for easier testing.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// KeySlice is a read-only view of the key table.
type KeySlice struct {
	f File
	l *layout.Layout
}

func NewKeySlice(f File, l *layout.Layout) *KeySlice {
	return &KeySlice{f: f, l: l}
}

// Get reads the key at slot into buf, which must be at least KeyLen bytes.
func (s *KeySlice) Get(slot uint64, buf []byte) ([]byte, error) {
	if slot >= s.l.Count {
		return nil, fmt.Errorf("slot (%d) out of range (len %d)", slot, s.l.Count)
	}
	start, end := s.l.KeySlotRange(slot)
	buf = buf[:end-start]
	if _, err := s.f.ReadAt(buf, int64(start)); err != nil {
		return nil, err
	}
	return buf, nil
}

// EntrySlice is a read-write view of the offset table.
type EntrySlice struct {
	f File
	l *layout.Layout
}

func NewEntrySlice(f File, l *layout.Layout) *EntrySlice {
	return &EntrySlice{f: f, l: l}
}

func (s *EntrySlice) Get(slot uint64) (layout.Entry, error) {
	if slot >= s.l.Count {
		return layout.Entry{}, fmt.Errorf("slot (%d) out of range (len %d)", slot, s.l.Count)
	}
	var buf [layout.EntrySize]byte
	start, _ := s.l.OffsetEntryRange(slot)
	if _, err := s.f.ReadAt(buf[:], int64(start)); err != nil {
		return layout.Entry{}, err
	}
	return layout.DecodeEntry(buf[:]), nil
}

func (s *EntrySlice) Set(slot uint64, e layout.Entry) error {
	if slot >= s.l.Count {
		return fmt.Errorf("slot (%d) out of range (len %d)", slot, s.l.Count)
	}
	var buf [layout.EntrySize]byte
	e.MarshalTo(buf[:])
	start, _ := s.l.OffsetEntryRange(slot)
	_, err := s.f.WriteAt(buf[:], int64(start))
	return err
}
