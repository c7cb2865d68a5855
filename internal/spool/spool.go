// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package spool appends objects to a scratch file as they arrive during a
// build, so that peak memory doesn't depend on the total size of the
// objects, and copies them back out in whatever order the final file needs.
package spool

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
)

const (
	defaultBufferSize = 4 * 1024 * 1024
)

var ErrFinished = errors.New("spool already finished")

// File is usually an *os.File, but specified as an interface for easier testing.
type File interface {
	io.Writer
	io.ReaderAt
}

// Writer appends objects to a File.  It is not safe for concurrent use.
type Writer struct {
	f        File
	w        *bufio.Writer
	off      uint64
	count    uint64
	finished atomic.Bool
}

func NewWriter(f File) *Writer {
	return &Writer{
		f: f,
		w: bufio.NewWriterSize(f, defaultBufferSize),
	}
}

// Append writes object to the end of the spool, returning its offset.
func (w *Writer) Append(object []byte) (off uint64, err error) {
	if w.finished.Load() {
		return 0, ErrFinished
	}
	off = w.off
	n, err := w.w.Write(object)
	if err != nil {
		return 0, fmt.Errorf("bufio.Write: %w", err)
	} else if n != len(object) {
		return 0, fmt.Errorf("bufio.Write: short write of %d (wanted %d)", n, len(object))
	}
	w.off += uint64(n)
	w.count++
	return off, nil
}

// Len is the number of bytes appended so far.
func (w *Writer) Len() uint64 {
	return w.off
}

// Count is the number of objects appended so far.
func (w *Writer) Count() uint64 {
	return w.count
}

// Finish flushes buffered objects to the File.  After Finish, objects can
// be read back with CopyTo, and no more can be appended.
func (w *Writer) Finish() error {
	if alreadyFinished := w.finished.Swap(true); alreadyFinished {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("bufio.Flush: %w", err)
	}
	return nil
}

// CopyTo copies size bytes starting at off in the spool to dst, using buf
// as scratch space.
func (w *Writer) CopyTo(dst io.Writer, off, size uint64, buf []byte) error {
	if !w.finished.Load() {
		return errors.New("CopyTo called before Finish")
	}
	if off+size < off || off+size > w.off {
		return fmt.Errorf("range [%d, %d) outside spool of length %d", off, off+size, w.off)
	}
	n, err := io.CopyBuffer(onlyWriter{dst}, io.NewSectionReader(w.f, int64(off), int64(size)), buf)
	if err != nil {
		return err
	} else if uint64(n) != size {
		return fmt.Errorf("short copy of %d (wanted %d)", n, size)
	}
	return nil
}

// onlyWriter hides any ReadFrom method on the destination, so that
// io.CopyBuffer always goes through buf.
type onlyWriter struct {
	io.Writer
}
