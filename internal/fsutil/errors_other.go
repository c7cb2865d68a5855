// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package fsutil

import (
	"errors"
	"syscall"
)

// IsStorageExhausted reports whether err means the write couldn't complete
// for lack of space.
func IsStorageExhausted(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EFBIG)
}
