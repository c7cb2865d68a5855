// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"encoding/binary"

	"github.com/zeebo/blake3"
	"github.com/zeebo/xxh3"
)

const (
	// ContentKey128Len is the length of keys from ContentKey128.
	ContentKey128Len = 16
	// ContentKey256Len is the length of keys from ContentKey256.
	ContentKey256Len = 32
)

// ContentKey128 derives a 16-byte key from an object's contents with
// XXH3-128.  It is fast but not collision resistant against an adversary;
// a colliding pair fails Finalize with ErrDuplicateKey.
func ContentKey128(object []byte) []byte {
	h := xxh3.Hash128(object)
	key := make([]byte, ContentKey128Len)
	binary.LittleEndian.PutUint64(key[0:8], h.Lo)
	binary.LittleEndian.PutUint64(key[8:16], h.Hi)
	return key
}

// ContentKey256 derives a 32-byte key from an object's contents with
// BLAKE3.
func ContentKey256(object []byte) []byte {
	sum := blake3.Sum256(object)
	return sum[:]
}
