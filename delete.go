// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/bpowers/shard/internal/ondisk"
	"github.com/bpowers/shard/internal/zero"
)

// Delete removes key from the finalized shard at path, in place.  The
// object's bytes are overwritten with zeros and synced before its record
// is marked deleted, so a successful return means the content is gone
// from the file.  The file's length, key table and offsets are unchanged.
//
// Delete must not run concurrently with readers of the same file; callers
// are expected to close or quiesce any open Shard first.  A crash midway
// can leave an object zeroed but not yet marked deleted.
func Delete(path string, key []byte, opts ...Option) (err error) {
	options := newOptions(opts)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("os.OpenFile(%s): %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = ioError("f.Close", closeErr)
		}
	}()

	stat, err := f.Stat()
	if err != nil {
		return fmt.Errorf("f.Stat: %w", err)
	}
	m, err := readHeader(f, stat.Size())
	if err != nil {
		return fmt.Errorf("delete from %s: %w", path, err)
	}
	l := m.layout

	if uint64(len(key)) != l.KeyLen {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), l.KeyLen)
	}
	if err := m.loadHash(f); err != nil {
		return fmt.Errorf("delete from %s: %w", path, err)
	}
	slot, ok := m.fn.Eval(key)
	if !ok {
		return ErrKeyNotFound
	}
	if slot >= l.Count {
		return corruptf("hash function returned slot %d of %d", slot, l.Count)
	}

	stored, err := ondisk.NewKeySlice(f, l).Get(slot, make([]byte, l.KeyLen))
	if err != nil {
		return fmt.Errorf("reading key for slot %d: %w", slot, err)
	}
	if !bytes.Equal(stored, key) {
		return ErrKeyNotFound
	}

	entries := ondisk.NewEntrySlice(f, l)
	e, err := entries.Get(slot)
	if err != nil {
		return fmt.Errorf("reading entry for slot %d: %w", slot, err)
	}
	if e.Deleted() {
		return ErrKeyNotFound
	}
	start, end, ok := l.ObjectRange(e)
	if !ok {
		return corruptf("slot %d: object [%d, +%d) outside object region", slot, e.Offset, e.Size())
	}

	if size := end - start; size > 0 {
		chunk := make([]byte, min(uint64(options.chunkSize), size))
		if err := zero.Range(f, int64(start), int64(size), chunk); err != nil {
			return ioError("zero object", err)
		}
		if err := f.Sync(); err != nil {
			return ioError("f.Sync", err)
		}
	}

	if err := entries.Set(slot, e.Tombstoned()); err != nil {
		return ioError("write tombstone", err)
	}
	if err := f.Sync(); err != nil {
		return ioError("f.Sync", err)
	}

	options.logger.Info("deleted object", "path", path, "slot", slot, "bytes", e.Size())
	return nil
}

// DeleteAll deletes each key in turn, continuing past keys that aren't
// present.  It returns the number of objects deleted, along with any errors
// other than ErrKeyNotFound.
func DeleteAll(path string, keys [][]byte, opts ...Option) (int, error) {
	var deleted int
	var errs []error
	for _, key := range keys {
		err := Delete(path, key, opts...)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, ErrKeyNotFound):
		default:
			errs = append(errs, fmt.Errorf("key %x: %w", key, err))
		}
	}
	return deleted, errors.Join(errs...)
}
