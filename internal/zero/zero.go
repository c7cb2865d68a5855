// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package zero provides functions to zero memory and file ranges.
package zero

import (
	"fmt"
	"io"
)

func Bytes(b []byte) {
	for i := 0; i < len(b); i++ {
		b[i] = 0
	}
}

// Range overwrites n bytes of w starting at off with zeros, writing at most
// len(chunk) bytes at a time.  chunk is zeroed first, so callers can pass
// a reused buffer.
func Range(w io.WriterAt, off, n int64, chunk []byte) error {
	if len(chunk) == 0 {
		return fmt.Errorf("zero.Range: empty chunk buffer")
	}
	Bytes(chunk)
	for n > 0 {
		buf := chunk
		if int64(len(buf)) > n {
			buf = buf[:n]
		}
		written, err := w.WriteAt(buf, off)
		if err != nil {
			return fmt.Errorf("WriteAt(%d, len: %d): %w", off, len(buf), err)
		} else if written != len(buf) {
			return fmt.Errorf("short write of %d at %d (wanted %d)", written, off, len(buf))
		}
		off += int64(written)
		n -= int64(written)
	}
	return nil
}
