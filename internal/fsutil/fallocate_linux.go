// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build linux

package fsutil

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Preallocate reserves disk blocks for size bytes of f and sets its length,
// so that running out of space is reported here instead of halfway
// through writing.
func Preallocate(f *os.File, size int64) error {
	if size == 0 {
		return f.Truncate(0)
	}
	err := unix.Fallocate(int(f.Fd()), 0, 0, size)
	if err != nil {
		if IsStorageExhausted(err) {
			return err
		}
		// e.g. EOPNOTSUPP on filesystems without fallocate
		if !errors.Is(err, unix.EOPNOTSUPP) && !errors.Is(err, unix.ENOSYS) {
			return err
		}
	}
	// Fallocate allocates blocks but doesn't shrink an existing file
	return unix.Ftruncate(int(f.Fd()), size)
}
