// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// requireNoLeftovers checks that dir holds exactly the named files.
func requireNoLeftovers(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var actual []string
	for _, e := range entries {
		actual = append(actual, e.Name())
	}
	require.ElementsMatch(t, names, actual)
}

func TestNewCreator_invalidKeyLength(t *testing.T) {
	dir := t.TempDir()
	for _, keyLen := range []int{-1, 0, 65536} {
		_, err := NewCreator(filepath.Join(dir, "x.shard"), 1, keyLen)
		require.ErrorIs(t, err, ErrInvalidKeyLength)
	}
	requireNoLeftovers(t, dir)
}

func TestNewCreator_unknownHash(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCreator(filepath.Join(dir, "x.shard"), 1, 4, WithHashAlgorithm(HashAlgorithm(99)))
	require.Error(t, err)
	requireNoLeftovers(t, dir)
}

func TestNewCreator_missingDir(t *testing.T) {
	_, err := NewCreator(filepath.Join(t.TempDir(), "no", "such", "x.shard"), 1, 4)
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewCreator_spoolDir(t *testing.T) {
	dir := t.TempDir()
	spoolDir := t.TempDir()
	c, err := NewCreator(filepath.Join(dir, "x.shard"), 1, 4, WithSpoolDir(spoolDir))
	require.NoError(t, err)

	entries, err := os.ReadDir(spoolDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, strings.HasSuffix(entries[0].Name(), ".spool"))

	require.NoError(t, c.Write([]byte("abcd"), []byte("object")))
	require.NoError(t, c.Finalize())
	requireNoLeftovers(t, spoolDir)
	requireNoLeftovers(t, dir, "x.shard")
}

func TestWrite_wrongKeyLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.shard")
	c, err := NewCreator(path, 1, 4)
	require.NoError(t, err)
	defer func() { _ = c.Abort() }()

	require.ErrorIs(t, c.Write([]byte("abc"), nil), ErrInvalidKeyLength)
	require.ErrorIs(t, c.Write([]byte("abcde"), nil), ErrInvalidKeyLength)
	require.Zero(t, c.Written())

	// the creator is still usable
	require.NoError(t, c.Write([]byte("abcd"), []byte("ok")))
	require.NoError(t, c.Finalize())
}

func TestWrite_capacity(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.shard")
	c, err := NewCreator(path, 2, 4)
	require.NoError(t, err)

	require.NoError(t, c.Write([]byte("aaaa"), []byte("1")))
	require.NoError(t, c.Write([]byte("bbbb"), []byte("2")))
	require.ErrorIs(t, c.Write([]byte("cccc"), []byte("3")), ErrTooManyWrites)
	require.Equal(t, uint64(2), c.Written())

	require.NoError(t, c.Finalize())
	requireNoLeftovers(t, dir, "x.shard")
}

func TestFinalize_incomplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.shard")
	c, err := NewCreator(path, 3, 4)
	require.NoError(t, err)

	require.NoError(t, c.Write([]byte("aaaa"), []byte("1")))
	require.ErrorIs(t, c.Finalize(), ErrIncompleteShard)

	// a failed finalize aborts
	require.ErrorIs(t, c.Write([]byte("bbbb"), []byte("2")), ErrCreatorAborted)
	require.ErrorIs(t, c.Finalize(), ErrCreatorAborted)
	requireNoLeftovers(t, dir)
}

func TestWrite_adjacentDuplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.shard")
	c, err := NewCreator(path, 2, 4)
	require.NoError(t, err)
	defer func() { _ = c.Abort() }()

	require.NoError(t, c.Write([]byte("aaaa"), []byte("1")))
	require.ErrorIs(t, c.Write([]byte("aaaa"), []byte("1 again")), ErrDuplicateKey)
	require.NoError(t, c.Write([]byte("bbbb"), []byte("2")))
	require.NoError(t, c.Finalize())
}

func TestFinalize_duplicate(t *testing.T) {
	for _, hash := range allHashes {
		t.Run(hash.String(), func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "x.shard")

			const n = 1000
			c, err := NewCreator(path, n, 8, WithHashAlgorithm(hash))
			require.NoError(t, err)
			for i := 0; i < n-1; i++ {
				require.NoError(t, c.Write(testKey(i, 8), []byte(fmt.Sprint(i))))
			}
			require.NoError(t, c.Write(testKey(n/2, 8), []byte("again")))

			require.ErrorIs(t, c.Finalize(), ErrDuplicateKey)
			_, err = os.Stat(path)
			require.ErrorIs(t, err, os.ErrNotExist)
			requireNoLeftovers(t, dir)
		})
	}
}

func TestAbort(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.shard")
	c, err := NewCreator(path, 2, 4)
	require.NoError(t, err)
	require.NoError(t, c.Write([]byte("aaaa"), []byte("1")))

	require.NoError(t, c.Abort())
	require.NoError(t, c.Abort())
	require.ErrorIs(t, c.Write([]byte("bbbb"), []byte("2")), ErrCreatorAborted)
	require.ErrorIs(t, c.Finalize(), ErrCreatorAborted)
	requireNoLeftovers(t, dir)
}

func TestFinalize_twice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.shard")
	c, err := NewCreator(path, 1, 4)
	require.NoError(t, err)
	require.NoError(t, c.Write([]byte("aaaa"), []byte("1")))
	require.NoError(t, c.Finalize())

	require.ErrorIs(t, c.Finalize(), ErrAlreadyFinalized)
	require.ErrorIs(t, c.Write([]byte("bbbb"), []byte("2")), ErrAlreadyFinalized)
	// abort after finalize leaves the file alone
	require.NoError(t, c.Abort())
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestCreator_tempFileIsIncomplete(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCreator(filepath.Join(dir, "x.shard"), 2, 4)
	require.NoError(t, err)
	defer func() { _ = c.Abort() }()
	require.NoError(t, c.Write([]byte("aaaa"), []byte("1")))

	tmps, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Len(t, tmps, 1)

	_, err = Open(tmps[0])
	require.ErrorIs(t, err, ErrIncompleteShard)
}

func TestFinalize_fileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.shard")
	buildShard(t, path, 4, []pair{{key: []byte("aaaa"), object: nil}}, WithFileMode(0o600))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestFinalize_replacesExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.shard")
	buildShard(t, path, 4, []pair{{key: []byte("aaaa"), object: []byte("old")}})
	buildShard(t, path, 4, []pair{{key: []byte("aaaa"), object: []byte("new")}})

	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	obj, err := s.Lookup([]byte("aaaa"))
	require.NoError(t, err)
	require.Equal(t, "new", string(obj))
}

func TestCreator_logging(t *testing.T) {
	var buf safeBuffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	path := filepath.Join(t.TempDir(), "x.shard")
	buildShard(t, path, 4, []pair{{key: []byte("aaaa"), object: []byte("1")}}, WithLogger(logger))

	out := buf.String()
	assert.Contains(t, out, "building hash function")
	assert.Contains(t, out, "finalized shard")
}
