// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/edsrzf/mmap-go"

	"github.com/bpowers/shard/internal/fsutil"
	"github.com/bpowers/shard/internal/layout"
	"github.com/bpowers/shard/internal/mphf"
	"github.com/bpowers/shard/internal/unsafestring"
)

// Shard is an open, finalized shard file.  Lookups are safe for
// concurrent use; Close must not race with them.
type Shard struct {
	path   string
	header layout.Header
	layout *layout.Layout
	fn     mphf.Func
	src    source
	logger *slog.Logger
	closed atomic.Bool
}

// source abstracts over how the tables and objects are read.
type source interface {
	// key returns the key stored at slot.  The result must not be modified.
	key(slot uint64) ([]byte, error)
	entry(slot uint64) (layout.Entry, error)
	// object returns a copy of the bytes in [start, end).
	object(start, end uint64) ([]byte, error)
	close() error
}

// metadata is everything validated from the fixed-size start of a file.
type metadata struct {
	header layout.Header
	layout *layout.Layout
	fn     mphf.Func
}

// readMetadata validates the header, completeness marker, file size and
// checksum of f, and loads its hash function.
func readMetadata(f io.ReaderAt, size int64) (*metadata, error) {
	m, err := readHeader(f, size)
	if err != nil {
		return nil, err
	}
	if err := m.loadHash(f); err != nil {
		return nil, err
	}
	return m, nil
}

// readHeader validates the header, completeness marker and file size of f
// without reading the hash function.
func readHeader(f io.ReaderAt, size int64) (*metadata, error) {
	if size < layout.HeaderSize {
		return nil, corruptf("file is %d bytes, shorter than the %d byte header", size, layout.HeaderSize)
	}

	var buf [layout.HeaderSize]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return nil, fmt.Errorf("ReadAt(header): %w", err)
	}
	m := &metadata{}
	if err := m.header.UnmarshalBytes(buf[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptShard, err)
	}
	if !m.header.Complete() {
		return nil, fmt.Errorf("%w: %w", ErrIncompleteShard, layout.ErrIncomplete)
	}
	if m.header.KeyLen == 0 || m.header.KeyLen > layout.MaxKeyLen {
		return nil, corruptf("key length %d", m.header.KeyLen)
	}

	l, err := layout.FromHeader(&m.header)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptShard, err)
	}
	if uint64(size) != l.FileSize() {
		return nil, corruptf("file is %d bytes, header describes %d", size, l.FileSize())
	}
	m.layout = l

	return m, nil
}

// loadHash reads the hash function, checks it against the header
// checksum and loads it.
func (m *metadata) loadHash(f io.ReaderAt) error {
	l := m.layout
	blob := make([]byte, m.header.MPHFLen)
	if _, err := f.ReadAt(blob, int64(l.MPHFOffset())); err != nil {
		return fmt.Errorf("ReadAt(mphf): %w", err)
	}
	if err := m.header.VerifyChecksum(blob); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptShard, err)
	}

	alg, err := HashAlgorithm(m.header.HashAlgorithm).algorithm()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptShard, err)
	}
	fn, err := alg.Load(blob)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptShard, err)
	}
	if fn.Len() != m.header.Count {
		return corruptf("%s function covers %d keys, header says %d", alg.Name(), fn.Len(), m.header.Count)
	}
	m.fn = fn

	return nil
}

// Open opens the finalized shard file at path for reading.
func Open(path string, opts ...Option) (*Shard, error) {
	options := newOptions(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	// both sources are done with f by the time they're constructed
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	m, err := readMetadata(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var src source
	switch options.readMode {
	case ReadModeMmap:
		src, err = newMmapSource(f, m.layout, options.logger)
	case ReadModeFile:
		src, err = newFileSource(path, m.layout)
	default:
		err = fmt.Errorf("unknown read mode %d", options.readMode)
	}
	if err != nil {
		return nil, err
	}

	options.logger.Debug("opened shard", "path", path, "count", m.header.Count,
		"hash", HashAlgorithm(m.header.HashAlgorithm), "bytes", m.layout.FileSize())

	return &Shard{
		path:   path,
		header: m.header,
		layout: m.layout,
		fn:     m.fn,
		src:    src,
		logger: options.logger,
	}, nil
}

// Lookup returns a copy of the object stored under key.  Keys that were
// never written or have been deleted return ErrKeyNotFound.
func (s *Shard) Lookup(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	slot, e, err := s.find(key)
	if err != nil {
		return nil, err
	}
	start, end, ok := s.layout.ObjectRange(e)
	if !ok {
		return nil, corruptf("slot %d: object [%d, +%d) outside object region of %d bytes",
			slot, e.Offset, e.Size(), s.layout.ObjectBytes)
	}
	return s.src.object(start, end)
}

// LookupString is Lookup for a key held in a string.
func (s *Shard) LookupString(key string) ([]byte, error) {
	return s.Lookup(unsafestring.ToBytes(key))
}

// Contains reports whether a live object is stored under key.
func (s *Shard) Contains(key []byte) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	_, _, err := s.find(key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// find returns the slot and offset table entry of a live key.
func (s *Shard) find(key []byte) (uint64, layout.Entry, error) {
	if uint64(len(key)) != s.layout.KeyLen {
		return 0, layout.Entry{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), s.layout.KeyLen)
	}
	slot, ok := s.fn.Eval(key)
	if !ok {
		return 0, layout.Entry{}, ErrKeyNotFound
	}
	if slot >= s.layout.Count {
		return 0, layout.Entry{}, corruptf("hash function returned slot %d of %d", slot, s.layout.Count)
	}
	stored, err := s.src.key(slot)
	if err != nil {
		return 0, layout.Entry{}, err
	}
	if !bytes.Equal(stored, key) {
		return 0, layout.Entry{}, ErrKeyNotFound
	}
	e, err := s.src.entry(slot)
	if err != nil {
		return 0, layout.Entry{}, err
	}
	if e.Deleted() {
		return 0, layout.Entry{}, ErrKeyNotFound
	}
	return slot, e, nil
}

// Range calls fn for each live record in slot order, stopping at the
// first error fn returns.  key is only valid for the duration of the call.
func (s *Shard) Range(fn func(key, object []byte) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	for slot := uint64(0); slot < s.layout.Count; slot++ {
		e, err := s.src.entry(slot)
		if err != nil {
			return err
		}
		if e.Deleted() {
			continue
		}
		start, end, ok := s.layout.ObjectRange(e)
		if !ok {
			return corruptf("slot %d: object [%d, +%d) outside object region", slot, e.Offset, e.Size())
		}
		key, err := s.src.key(slot)
		if err != nil {
			return err
		}
		obj, err := s.src.object(start, end)
		if err != nil {
			return err
		}
		if err := fn(key, obj); err != nil {
			return err
		}
	}
	return nil
}

// Len is the number of slots in the shard, including deleted records.
func (s *Shard) Len() uint64 {
	return s.layout.Count
}

// KeyLen is the fixed length of every key in the shard.
func (s *Shard) KeyLen() int {
	return int(s.layout.KeyLen)
}

// Size is the length of the shard file in bytes.
func (s *Shard) Size() int64 {
	return int64(s.layout.FileSize())
}

// ObjectBytes is the total size of the object region.
func (s *Shard) ObjectBytes() uint64 {
	return s.layout.ObjectBytes
}

// HashAlgorithm is the minimal perfect hash function the shard was built with.
func (s *Shard) HashAlgorithm() HashAlgorithm {
	return HashAlgorithm(s.header.HashAlgorithm)
}

// Close releases the shard's resources.  Calling Close more than once is
// fine; every other method returns ErrClosed afterward.
func (s *Shard) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.src.close()
}

type mmapSource struct {
	l    *layout.Layout
	mm   mmap.MMap
	data []byte
}

func newMmapSource(f *os.File, l *layout.Layout, logger *slog.Logger) (*mmapSource, error) {
	mm, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap.Map: %w", err)
	}
	if uint64(len(mm)) != l.FileSize() {
		_ = mm.Unmap()
		return nil, corruptf("mapped %d bytes, header describes %d", len(mm), l.FileSize())
	}
	if err := fsutil.AdviseRandom(mm); err != nil {
		logger.Debug("madvise failed", "error", err)
	}
	return &mmapSource{l: l, mm: mm, data: []byte(mm)}, nil
}

func (s *mmapSource) key(slot uint64) ([]byte, error) {
	start, end := s.l.KeySlotRange(slot)
	return s.data[start:end:end], nil
}

func (s *mmapSource) entry(slot uint64) (layout.Entry, error) {
	start, end := s.l.OffsetEntryRange(slot)
	return layout.DecodeEntry(s.data[start:end]), nil
}

func (s *mmapSource) object(start, end uint64) ([]byte, error) {
	return bytes.Clone(s.data[start:end]), nil
}

func (s *mmapSource) close() error {
	return s.mm.Unmap()
}

// fileSource keeps the key and offset tables on the heap and reads objects
// from the file on demand.
type fileSource struct {
	l       *layout.Layout
	f       *os.File
	keys    []byte
	entries []byte
}

func newFileSource(path string, l *layout.Layout) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	s := &fileSource{
		l:       l,
		f:       f,
		keys:    make([]byte, l.Count*l.KeyLen),
		entries: make([]byte, l.Count*layout.EntrySize),
	}
	if _, err := f.ReadAt(s.keys, int64(l.KeyTableOffset())); err != nil {
		return nil, errors.Join(fmt.Errorf("ReadAt(key table): %w", err), f.Close())
	}
	if _, err := f.ReadAt(s.entries, int64(l.OffsetTableOffset())); err != nil {
		return nil, errors.Join(fmt.Errorf("ReadAt(offset table): %w", err), f.Close())
	}
	return s, nil
}

func (s *fileSource) key(slot uint64) ([]byte, error) {
	start, end := s.l.KeySlotRange(slot)
	base := s.l.KeyTableOffset()
	return s.keys[start-base : end-base : end-base], nil
}

func (s *fileSource) entry(slot uint64) (layout.Entry, error) {
	start, end := s.l.OffsetEntryRange(slot)
	base := s.l.OffsetTableOffset()
	return layout.DecodeEntry(s.entries[start-base : end-base]), nil
}

func (s *fileSource) object(start, end uint64) ([]byte, error) {
	buf := make([]byte, end-start)
	if _, err := s.f.ReadAt(buf, int64(start)); err != nil {
		return nil, fmt.Errorf("ReadAt(object): %w", err)
	}
	return buf, nil
}

func (s *fileSource) close() error {
	return s.f.Close()
}
