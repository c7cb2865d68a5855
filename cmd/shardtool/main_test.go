// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/shard"
)

const testPairs = `0011223344556677:first
8899aabbccddeeff:second:with:colons
0123456789abcdef:
`

func TestScanPairs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pairs.txt")
	require.NoError(t, os.WriteFile(path, []byte(testPairs), 0o644))

	var keys, values []string
	require.NoError(t, scanPairs(path, func(key, value []byte) error {
		keys = append(keys, string(key))
		values = append(values, string(value))
		return nil
	}))
	require.Equal(t, []string{"\x00\x11\x22\x33\x44\x55\x66\x77", "\x88\x99\xaa\xbb\xcc\xdd\xee\xff", "\x01\x23\x45\x67\x89\xab\xcd\xef"}, keys)
	require.Equal(t, []string{"first", "second:with:colons", ""}, values)

	require.NoError(t, os.WriteFile(path, []byte("no separator\n"), 0o644))
	require.Error(t, scanPairs(path, func(key, value []byte) error { return nil }))

	require.NoError(t, os.WriteFile(path, []byte("zz:bad hex\n"), 0o644))
	require.Error(t, scanPairs(path, func(key, value []byte) error { return nil }))
}

func TestBuildAndDump(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "pairs.txt")
	out := filepath.Join(dir, "out.shard")
	require.NoError(t, os.WriteFile(in, []byte(testPairs), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	require.NoError(t, runBuild(ctx, logger, []string{"--hash", "bbhash", in, out}))
	require.NoError(t, runVerify(ctx, logger, []string{out}))

	s, err := shard.Open(out)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.Equal(t, shard.HashBBHash, s.HashAlgorithm())

	var dumped bytes.Buffer
	require.NoError(t, s.Range(func(key, object []byte) error {
		return dumpPair(&dumped, key, object)
	}))
	require.ElementsMatch(t,
		bytes.Split(bytes.TrimSpace([]byte(testPairs)), []byte("\n")),
		bytes.Split(bytes.TrimSpace(dumped.Bytes()), []byte("\n")))
}
