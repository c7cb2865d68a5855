// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build unix

package fsutil

import (
	"golang.org/x/sys/unix"
)

// AdviseRandom hints that m will be accessed in random order, which is the
// case for point lookups.  Best effort: errors are returned for logging only.
func AdviseRandom(m []byte) error {
	if len(m) == 0 {
		return nil
	}
	return unix.Madvise(m, unix.MADV_RANDOM)
}
