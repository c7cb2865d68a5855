// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build unix

package fsutil

import (
	"errors"

	"golang.org/x/sys/unix"
)

// IsStorageExhausted reports whether err means the write couldn't complete
// for lack of space: a full disk, an exhausted quota, or a file size limit.
func IsStorageExhausted(err error) bool {
	return errors.Is(err, unix.ENOSPC) || errors.Is(err, unix.EDQUOT) || errors.Is(err, unix.EFBIG)
}
