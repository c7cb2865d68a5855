// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bpowers/shard/internal/mphf"
	"github.com/bpowers/shard/internal/mphf/bbhash"
	"github.com/bpowers/shard/internal/mphf/chd"
)

const (
	defaultChunkSize = 1024 * 1024
	defaultFileMode  = os.FileMode(0644)
)

// HashAlgorithm selects the minimal perfect hash function a Creator builds.
// Readers pick the right one from the file header.
type HashAlgorithm uint32

const (
	// HashCHD is "hash, displace, and compress".  It is the default.
	HashCHD = HashAlgorithm(chd.ID)
	// HashBBHash is BBHash.  It is larger than CHD, but rejects most
	// unknown keys without touching the key table.
	HashBBHash = HashAlgorithm(bbhash.ID)
)

var algorithms = map[HashAlgorithm]mphf.Algorithm{
	HashCHD:    chd.Algorithm,
	HashBBHash: bbhash.Algorithm,
}

func (a HashAlgorithm) algorithm() (mphf.Algorithm, error) {
	alg, ok := algorithms[a]
	if !ok {
		return nil, fmt.Errorf("unknown hash algorithm %d", uint32(a))
	}
	return alg, nil
}

func (a HashAlgorithm) String() string {
	if alg, ok := algorithms[a]; ok {
		return alg.Name()
	}
	return fmt.Sprintf("HashAlgorithm(%d)", uint32(a))
}

// ParseHashAlgorithm returns the HashAlgorithm named s ("chd" or "bbhash").
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	for a, alg := range algorithms {
		if strings.EqualFold(s, alg.Name()) {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown hash algorithm %q", s)
}

// ReadMode selects how an opened Shard reads the file.
type ReadMode int

const (
	// ReadModeMmap maps the whole file read-only.  It is the default.
	ReadModeMmap ReadMode = iota
	// ReadModeFile loads the key and offset tables onto the heap and reads
	// objects with pread.  Useful where mmap is unavailable or undesirable,
	// e.g. on network file systems.
	ReadModeFile
)

// Option configures NewCreator, Open and Delete.  Options that don't apply
// to an operation are ignored by it.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	hash      HashAlgorithm
	chunkSize int
	fileMode  os.FileMode
	spoolDir  string
	readMode  ReadMode
}

func newOptions(opts []Option) options {
	o := options{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		hash:      HashCHD,
		chunkSize: defaultChunkSize,
		fileMode:  defaultFileMode,
		readMode:  ReadModeMmap,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets an optional logger for progress updates.  If not
// provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHashAlgorithm selects the minimal perfect hash function to build.
func WithHashAlgorithm(a HashAlgorithm) Option {
	return func(o *options) {
		o.hash = a
	}
}

// WithChunkSize bounds the buffer used when copying objects during
// Finalize and when zeroing objects during Delete.
func WithChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithFileMode sets the permissions of the finished shard file.  Delete
// needs the file to be writable.
func WithFileMode(mode os.FileMode) Option {
	return func(o *options) {
		o.fileMode = mode
	}
}

// WithSpoolDir sets where a Creator spools objects before Finalize.  It
// defaults to the directory of the output file.
func WithSpoolDir(dir string) Option {
	return func(o *options) {
		o.spoolDir = dir
	}
}

// WithReadMode selects how Open reads the file.
func WithReadMode(mode ReadMode) Option {
	return func(o *options) {
		o.readMode = mode
	}
}
