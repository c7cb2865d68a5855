// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !linux

package fsutil

import "os"

// Preallocate sets the length of f to size.  Without fallocate this may
// not reserve disk blocks, so running out of space can still surface later.
func Preallocate(f *os.File, size int64) error {
	return f.Truncate(size)
}
