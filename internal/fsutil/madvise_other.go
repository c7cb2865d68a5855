// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package fsutil

func AdviseRandom(m []byte) error {
	return nil
}
