// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"errors"
	"fmt"

	"github.com/bpowers/shard/internal/fsutil"
	"github.com/bpowers/shard/internal/mphf"
)

// Errors returned by this package are, or wrap, one of the following.  Use
// errors.Is to test for them.
var (
	// ErrInvalidKeyLength means a key doesn't match the shard's fixed key length.
	ErrInvalidKeyLength = errors.New("key has the wrong length for this shard")
	// ErrTooManyWrites means Write was called more times than the count
	// passed to NewCreator.
	ErrTooManyWrites = errors.New("too many objects written")
	// ErrIncompleteShard means Finalize was called before every object was
	// written, or a file was opened that no successful Finalize produced.
	ErrIncompleteShard = errors.New("incomplete shard")
	// ErrDuplicateKey means two keys in a build were equal, or the hash
	// function mapped two keys to the same slot.
	ErrDuplicateKey = mphf.ErrDuplicateKey
	// ErrHashConstructionFailed means no minimal perfect hash function could
	// be built for the key set.
	ErrHashConstructionFailed = mphf.ErrConstructionFailed
	// ErrStorageExhausted means a write failed because the file system was
	// full, a quota was exceeded, or the file grew past a size limit.
	ErrStorageExhausted = errors.New("storage exhausted")
	// ErrCorruptShard means a shard file is structurally inconsistent.
	ErrCorruptShard = errors.New("corrupt shard")
	// ErrKeyNotFound means the key isn't in the shard, or has been deleted.
	ErrKeyNotFound = errors.New("key not found")
	// ErrAlreadyFinalized means Write or Finalize was called after a
	// successful Finalize.
	ErrAlreadyFinalized = errors.New("shard already finalized")
	// ErrCreatorAborted means the Creator was aborted, either explicitly or
	// because of an earlier fatal error.
	ErrCreatorAborted = errors.New("shard creator aborted")
	// ErrClosed means the Shard has been closed.
	ErrClosed = errors.New("shard closed")
)

// ioError wraps err with op, marking it as ErrStorageExhausted when it
// means we ran out of space.
func ioError(op string, err error) error {
	if fsutil.IsStorageExhausted(err) {
		return fmt.Errorf("%w: %s: %w", ErrStorageExhausted, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptShard, fmt.Sprintf(format, args...))
}
