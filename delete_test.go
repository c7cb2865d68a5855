// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bpowers/shard/internal/layout"
)

// rawEntry reads the offset table entry for key straight from the file.
func rawEntry(t *testing.T, path string, key []byte) (slot uint64, sizeField uint64, object []byte) {
	t.Helper()
	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	slot, ok := s.fn.Eval(key)
	require.True(t, ok)
	e, err := s.src.entry(slot)
	require.NoError(t, err)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	start, _ := s.layout.OffsetEntryRange(slot)
	sizeField = binary.LittleEndian.Uint64(contents[start+8 : start+16])

	objStart := s.layout.ObjectRegionOffset() + e.Offset
	return slot, sizeField, contents[objStart : objStart+e.Size()]
}

func TestDelete(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pairs := randomPairs(rng, 300, 16, 200)
	pairs[42].object = []byte("this object is going away")

	for _, hash := range allHashes {
		t.Run(hash.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "objects.shard")
			buildShard(t, path, 16, pairs, WithHashAlgorithm(hash))
			before, err := os.Stat(path)
			require.NoError(t, err)

			victim := pairs[42]
			require.NoError(t, Delete(path, victim.key))

			after, err := os.Stat(path)
			require.NoError(t, err)
			require.Equal(t, before.Size(), after.Size())

			_, sizeField, object := rawEntry(t, path, victim.key)
			require.NotZero(t, sizeField&(1<<63), "tombstone bit")
			require.Equal(t, uint64(len(victim.object)), sizeField&^(1<<63), "size preserved")
			require.Equal(t, make([]byte, len(victim.object)), object)

			for _, mode := range allReadModes {
				s, err := Open(path, WithReadMode(mode))
				require.NoError(t, err)

				_, err = s.Lookup(victim.key)
				require.ErrorIs(t, err, ErrKeyNotFound)
				ok, err := s.Contains(victim.key)
				require.NoError(t, err)
				require.False(t, ok)

				for i, p := range pairs {
					if i == 42 {
						continue
					}
					obj, err := s.Lookup(p.key)
					require.NoError(t, err)
					require.Equal(t, p.object, obj)
				}
				require.NoError(t, s.Verify(t.Context()))
				require.NoError(t, s.Close())
			}

			require.ErrorIs(t, Delete(path, victim.key), ErrKeyNotFound)
		})
	}
}

func TestDelete_unknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.shard")
	pairs := []pair{
		{key: []byte("aaaa"), object: []byte("one")},
		{key: []byte("bbbb"), object: []byte("two")},
	}
	buildShard(t, path, 4, pairs)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.ErrorIs(t, Delete(path, []byte("zzzz")), ErrKeyNotFound)
	require.ErrorIs(t, Delete(path, []byte("zz")), ErrInvalidKeyLength)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestDelete_largeObject(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	big := make([]byte, 100*1024+3)
	_, _ = rng.Read(big)
	pairs := []pair{
		{key: []byte("aaaa"), object: []byte("before")},
		{key: []byte("bbbb"), object: big},
		{key: []byte("cccc"), object: []byte("after")},
	}

	path := filepath.Join(t.TempDir(), "objects.shard")
	buildShard(t, path, 4, pairs)
	require.NoError(t, Delete(path, []byte("bbbb"), WithChunkSize(4096)))

	_, sizeField, object := rawEntry(t, path, []byte("bbbb"))
	require.Equal(t, uint64(len(big)), sizeField&^(1<<63))
	require.Equal(t, make([]byte, len(big)), object)

	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	for _, p := range []pair{pairs[0], pairs[2]} {
		obj, err := s.Lookup(p.key)
		require.NoError(t, err)
		require.Equal(t, p.object, obj)
	}
}

func TestDelete_emptyObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.shard")
	buildShard(t, path, 4, []pair{
		{key: []byte("aaaa"), object: nil},
		{key: []byte("bbbb"), object: []byte("x")},
	})
	require.NoError(t, Delete(path, []byte("aaaa")))
	require.ErrorIs(t, Delete(path, []byte("aaaa")), ErrKeyNotFound)
	require.NoError(t, Verify(t.Context(), path))
}

func TestDelete_incompleteFile(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCreator(filepath.Join(dir, "x.shard"), 1, 4)
	require.NoError(t, err)
	defer func() { _ = c.Abort() }()

	tmps, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	require.Len(t, tmps, 1)
	require.ErrorIs(t, Delete(tmps[0], []byte("aaaa")), ErrIncompleteShard)
}

func TestDeleteAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.shard")
	buildShard(t, path, 4, []pair{
		{key: []byte("aaaa"), object: []byte("1")},
		{key: []byte("bbbb"), object: []byte("2")},
		{key: []byte("cccc"), object: []byte("3")},
	})

	n, err := DeleteAll(path, [][]byte{[]byte("aaaa"), []byte("zzzz"), []byte("cccc")})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = DeleteAll(path, [][]byte{[]byte("aaaa"), []byte("bad")})
	require.ErrorIs(t, err, ErrInvalidKeyLength)
	require.Zero(t, n)

	s, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	obj, err := s.Lookup([]byte("bbbb"))
	require.NoError(t, err)
	require.Equal(t, "2", string(obj))
}

func TestDelete_wrongKeyLengthSkipsHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "objects.shard")
	buildShard(t, path, 4, []pair{
		{key: []byte("aaaa"), object: []byte("one")},
		{key: []byte("bbbb"), object: []byte("two")},
	})

	// damage the first byte of the serialized hash function
	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	contents[layout.HeaderSize] ^= 0xff
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	// the key length is rejected from the header alone
	require.ErrorIs(t, Delete(path, []byte("aa")), ErrInvalidKeyLength)
	require.ErrorIs(t, Delete(path, []byte("aaaa")), ErrCorruptShard)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, contents, after)
}
