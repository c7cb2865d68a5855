// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package fsutil wraps the platform-specific file system calls shard files
// need: space reservation, access-pattern hints, and recognizing errors
// that mean the disk (or a quota or file size limit) is full.
package fsutil
