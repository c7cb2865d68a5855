// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package shard stores a fixed set of fixed-length keys and their
// variable-length objects in a single immutable file, indexed by a
// minimal perfect hash function for constant-time lookups.
//
// A shard is built once with a Creator, whose count and key length are
// known up front:
//
//	c, err := shard.NewCreator(path, uint64(len(objects)), shard.ContentKey128Len)
//	if err != nil {
//		return err
//	}
//	defer c.Abort()
//	for _, obj := range objects {
//		if err := c.Write(shard.ContentKey128(obj), obj); err != nil {
//			return err
//		}
//	}
//	return c.Finalize()
//
// Nothing exists at path until Finalize succeeds, and a file whose
// Finalize never completed is rejected by Open with ErrIncompleteShard.
//
// Once finalized, a shard is read with Open and Lookup.  The only mutation
// is Delete, which zeroes an object's bytes in place and marks its record
// deleted without changing the file's length or layout.
package shard
