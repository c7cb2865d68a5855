// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/bpowers/shard/internal/fsutil"
	"github.com/bpowers/shard/internal/layout"
	"github.com/bpowers/shard/internal/mphf"
	"github.com/bpowers/shard/internal/spool"
)

const (
	writeBufferSize = 4 * 1024 * 1024
	// MaxCount bounds the number of objects in one shard; slots are
	// indexed with uint32 while building.
	MaxCount = math.MaxUint32
)

type creatorState int

const (
	statePreparing creatorState = iota
	stateFinalized
	stateAborted
)

// record locates one written object in the spool.
type record struct {
	spoolOff uint64
	size     uint64
}

// Creator builds a shard file from a known number of key/object pairs.
// Objects are spooled to disk as they are written; keys are held in
// memory until Finalize.  A Creator is not safe for concurrent use, and
// only one Creator may target a given path at a time.
type Creator struct {
	resultPath string
	count      uint64
	keyLen     int
	alg        mphf.Algorithm
	opts       options
	logger     *slog.Logger

	keyArena []byte // keys, concatenated in write order
	records  []record

	outFile   *os.File
	spoolFile *os.File
	spool     *spool.Writer

	state creatorState
}

// NewCreator creates a Creator that will write exactly count objects,
// each under a key of keyLen bytes, to a new shard file at path.  Nothing
// appears at path until Finalize succeeds.
func NewCreator(path string, count uint64, keyLen int, opts ...Option) (*Creator, error) {
	options := newOptions(opts)

	if keyLen <= 0 || keyLen > layout.MaxKeyLen {
		return nil, fmt.Errorf("%w: key length %d not in [1, %d]", ErrInvalidKeyLength, keyLen, layout.MaxKeyLen)
	}
	if count > MaxCount {
		return nil, fmt.Errorf("count %d exceeds the maximum of %d", count, uint64(MaxCount))
	}
	// make sure the tables alone are representable before taking any writes
	if _, err := layout.New(count, keyLen, 0, 0); err != nil {
		return nil, fmt.Errorf("count %d: %w", count, err)
	}
	alg, err := options.hash.algorithm()
	if err != nil {
		return nil, err
	}

	// we want to write to a new file and do an atomic rename when we're done on disk
	resultPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("filepath.Abs: %w", err)
	}
	dir := filepath.Dir(resultPath)
	outFile, err := os.CreateTemp(dir, "shard-creator.*.tmp")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir %q containing the shard): %w", dir, err)
	}

	spoolDir := options.spoolDir
	if spoolDir == "" {
		spoolDir = dir
	}
	spoolFile, err := os.CreateTemp(spoolDir, "shard-creator.*.spool")
	if err != nil {
		_ = outFile.Close()
		_ = os.Remove(outFile.Name())
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for spool dir %q): %w", spoolDir, err)
	}

	c := &Creator{
		resultPath: resultPath,
		count:      count,
		keyLen:     keyLen,
		alg:        alg,
		opts:       options,
		logger:     options.logger,
		outFile:    outFile,
		spoolFile:  spoolFile,
		spool:      spool.NewWriter(spoolFile),
	}

	// an unsealed header: anything reading the temp file sees an
	// incomplete shard.  This also exposes errors writing to the
	// backing file early.
	if _, err := layout.NewHeader(count, keyLen, alg.ID()).WriteTo(outFile); err != nil {
		return nil, errors.Join(ioError("header.WriteTo", err), c.cleanup())
	}

	c.logger.Debug("creating shard", "path", resultPath, "count", count, "keyLen", keyLen, "hash", alg.Name())
	return c, nil
}

// Write adds a key/object pair.  Errors about the call itself
// (ErrInvalidKeyLength, ErrTooManyWrites, ErrDuplicateKey for a key equal
// to the previous one) leave the Creator usable; I/O errors abort it.
// Duplicates that aren't adjacent are detected by Finalize.
func (c *Creator) Write(key, object []byte) error {
	switch c.state {
	case stateFinalized:
		return ErrAlreadyFinalized
	case stateAborted:
		return ErrCreatorAborted
	}

	if len(key) != c.keyLen {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeyLength, len(key), c.keyLen)
	}
	n := uint64(len(c.records))
	if n >= c.count {
		return fmt.Errorf("%w: shard was created for %d", ErrTooManyWrites, c.count)
	}
	if n > 0 && bytes.Equal(c.keyArena[len(c.keyArena)-c.keyLen:], key) {
		return fmt.Errorf("%w: %x written twice in a row", ErrDuplicateKey, key)
	}
	if uint64(len(object)) > layout.MaxObjectSize-c.spool.Len() {
		return fmt.Errorf("%w: objects exceed the maximum object region size", ErrStorageExhausted)
	}

	off, err := c.spool.Append(object)
	if err != nil {
		return c.fail(ioError("spool.Append", err))
	}
	// copy the key, because it could point into e.g. a bufio buffer
	c.keyArena = append(c.keyArena, key...)
	c.records = append(c.records, record{spoolOff: off, size: uint64(len(object))})

	return nil
}

// Written returns the number of objects written so far.
func (c *Creator) Written() uint64 {
	return uint64(len(c.records))
}

// Finalize builds the hash function and writes the shard file.  On
// success the file is complete at the path given to NewCreator; on any
// failure the Creator is aborted and nothing is left at that path.
func (c *Creator) Finalize() error {
	switch c.state {
	case stateFinalized:
		return ErrAlreadyFinalized
	case stateAborted:
		return ErrCreatorAborted
	}

	if n := uint64(len(c.records)); n != c.count {
		return c.fail(fmt.Errorf("%w: %d of %d objects written", ErrIncompleteShard, n, c.count))
	}

	if err := c.finalize(); err != nil {
		return c.fail(err)
	}

	c.state = stateFinalized
	return nil
}

// Abort discards everything written so far.  It is safe to defer Abort
// right after NewCreator: once the Creator is finalized or aborted it does
// nothing.
func (c *Creator) Abort() error {
	if c.state != statePreparing {
		return nil
	}
	c.state = stateAborted
	return c.cleanup()
}

func (c *Creator) fail(err error) error {
	if cleanupErr := c.Abort(); cleanupErr != nil {
		c.logger.Warn("cleaning up after failed build", "path", c.resultPath, "error", cleanupErr)
	}
	return err
}

func (c *Creator) cleanup() error {
	var errs []error
	for _, f := range []*os.File{c.outFile, c.spoolFile} {
		if f == nil {
			continue
		}
		_ = f.Close()
		if err := os.Remove(f.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	c.outFile = nil
	c.spoolFile = nil
	c.keyArena = nil
	c.records = nil
	return errors.Join(errs...)
}

func (c *Creator) keys() [][]byte {
	keys := make([][]byte, len(c.records))
	for i := range keys {
		keys[i] = c.keyArena[i*c.keyLen : (i+1)*c.keyLen : (i+1)*c.keyLen]
	}
	return keys
}

func (c *Creator) finalize() error {
	if err := c.spool.Finish(); err != nil {
		return ioError("spool.Finish", err)
	}

	keys := c.keys()

	c.logger.Info("building hash function", "path", c.resultPath, "count", c.count, "hash", c.alg.Name())
	blob, err := c.alg.Build(keys, c.logger)
	if err != nil {
		if !errors.Is(err, ErrDuplicateKey) && !errors.Is(err, ErrHashConstructionFailed) {
			err = fmt.Errorf("%w: %w", ErrHashConstructionFailed, err)
		}
		return fmt.Errorf("building %s: %w", c.alg.Name(), err)
	}
	fn, err := c.alg.Load(blob)
	if err != nil {
		return fmt.Errorf("%w: loading freshly built %s: %w", ErrHashConstructionFailed, c.alg.Name(), err)
	}
	slots, err := mphf.Slots(fn, keys)
	if err != nil {
		return err
	}

	// bySlot[slot] is the index (in write order) of the record in that slot
	bySlot := make([]uint32, c.count)
	for i, slot := range slots {
		bySlot[slot] = uint32(i)
	}

	var objectBytes uint64
	for _, r := range c.records {
		objectBytes += r.size
	}
	l, err := layout.New(c.count, c.keyLen, uint64(len(blob)), objectBytes)
	if err != nil {
		return err
	}
	header := layout.NewHeader(c.count, c.keyLen, c.alg.ID())
	header.MPHFLen = uint64(len(blob))
	header.ObjectBytes = objectBytes

	f := c.outFile
	if err := fsutil.Preallocate(f, int64(l.FileSize())); err != nil {
		return ioError("preallocate", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("f.Seek: %w", err)
	}

	c.logger.Debug("writing shard", "path", c.resultPath, "bytes", l.FileSize())
	if err := c.writeBody(f, header, blob, bySlot); err != nil {
		return err
	}

	if err := f.Sync(); err != nil {
		return ioError("f.Sync", err)
	}
	if err := header.Seal(blob, f); err != nil {
		return ioError("header.Seal", err)
	}
	if err := f.Sync(); err != nil {
		return ioError("f.Sync", err)
	}
	if err := f.Close(); err != nil {
		return ioError("f.Close", err)
	}
	if err := os.Chmod(f.Name(), c.opts.fileMode); err != nil {
		return fmt.Errorf("os.Chmod(%o): %w", c.opts.fileMode, err)
	}
	if err := os.Rename(f.Name(), c.resultPath); err != nil {
		return fmt.Errorf("os.Rename: %w", err)
	}
	c.outFile = nil

	_ = c.spoolFile.Close()
	if err := os.Remove(c.spoolFile.Name()); err != nil {
		c.logger.Warn("removing spool file", "path", c.spoolFile.Name(), "error", err)
	}
	c.spoolFile = nil
	c.keyArena = nil
	c.records = nil

	c.logger.Info("finalized shard", "path", c.resultPath, "count", c.count, "bytes", l.FileSize())
	return nil
}

// writeBody writes everything but the seal, in file order.
func (c *Creator) writeBody(f *os.File, header *layout.Header, blob []byte, bySlot []uint32) error {
	bw := bufio.NewWriterSize(f, writeBufferSize)

	if _, err := header.WriteTo(bw); err != nil {
		return ioError("header.WriteTo", err)
	}
	if _, err := bw.Write(blob); err != nil {
		return ioError("write mphf", err)
	}

	for _, i := range bySlot {
		start := int(i) * c.keyLen
		if _, err := bw.Write(c.keyArena[start : start+c.keyLen]); err != nil {
			return ioError("write key table", err)
		}
	}

	var off uint64
	var entryBuf [layout.EntrySize]byte
	for _, i := range bySlot {
		size := c.records[i].size
		layout.NewEntry(off, size).MarshalTo(entryBuf[:])
		if _, err := bw.Write(entryBuf[:]); err != nil {
			return ioError("write offset table", err)
		}
		off += size
	}

	chunk := make([]byte, c.opts.chunkSize)
	for _, i := range bySlot {
		r := c.records[i]
		if err := c.spool.CopyTo(bw, r.spoolOff, r.size, chunk); err != nil {
			return ioError("copy objects", err)
		}
	}

	if err := bw.Flush(); err != nil {
		return ioError("bufio.Flush", err)
	}
	return nil
}
