// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package layout describes the on-disk format of a shard file and the
// arithmetic for locating each region.  Nothing in this package does I/O.
//
// A shard file looks like:
//
//	┌───────────────────┐
//	│ file header       │ 128 bytes
//	├───────────────────┤
//	│ minimal perfect   │ MPHFLen bytes
//	│ hash function     │
//	├───────────────────┤
//	│ key table         │ N * KeyLen bytes
//	├───────────────────┤
//	│ offset table      │ N * 16 bytes
//	├───────────────────┤
//	│ object region     │ ObjectBytes bytes
//	│                   │
//	│                   │
//	└───────────────────┘
//
// The key table, offset table and object region are all in slot order:
// slot i holds the record whose key the MPHF maps to i.  Each offset table
// entry is a pair of little-endian uint64s:
//
//	 0    1    2    3    4    5    6    7
//	+----+----+----+----+----+----+----+----+
//	| offset into the object region         |
//	+----+----+----+----+----+----+----+----+
//	| size (bit 63 set: record deleted)     |
//	+----+----+----+----+----+----+----+----+
//
// The header ends with a checksum and a completeness marker.  Both are
// written only after everything else has been synced to disk, so a file
// left behind by a crashed or failed build never looks complete.
package layout
