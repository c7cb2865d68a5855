// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// shardtool builds, inspects and edits shard files.
//
//	shardtool gen [-n count] [--key-len n] > pairs.txt
//	shardtool build [--hash chd|bbhash] [--key-len n] pairs.txt out.shard
//	shardtool get out.shard HEXKEY
//	shardtool delete out.shard HEXKEY...
//	shardtool verify out.shard
//	shardtool info out.shard
//	shardtool dump out.shard
//
// Pair files hold one "HEXKEY:VALUE" line per object.
package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/hmac"
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"github.com/bpowers/shard"
)

const (
	prefix    = "pref_"
	suffixLen = 16
	hmacKey   = "d259c7f656caf7f1"
)

type command struct {
	usage string
	run   func(ctx context.Context, logger *slog.Logger, args []string) error
}

var commands = map[string]command{
	"gen":    {"gen [-n count] [--key-len n]", runGen},
	"build":  {"build [--hash chd|bbhash] [--key-len n] [--chunk-size n] PAIRS OUT", runBuild},
	"get":    {"get [--read-mode mmap|file] SHARD HEXKEY", runGet},
	"delete": {"delete SHARD HEXKEY...", runDelete},
	"verify": {"verify SHARD", runVerify},
	"info":   {"info SHARD", runInfo},
	"dump":   {"dump SHARD", runDump},
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: shardtool [-v] COMMAND [flags] ARGS\n\ncommands:\n")
	for _, name := range []string{"gen", "build", "get", "delete", "verify", "info", "dump"} {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "shardtool: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var verbose bool
	flags := pflag.NewFlagSet("shardtool", pflag.ContinueOnError)
	flags.BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	flags.SetInterspersed(false)
	flags.Usage = usage
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	args := flags.Args()
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return cmd.run(ctx, logger, args[1:])
}

// parse parses a subcommand's flags, requiring at least minArgs positional
// arguments.
func parse(flags *pflag.FlagSet, args []string, minArgs int) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	rest := flags.Args()
	if len(rest) < minArgs {
		return nil, fmt.Errorf("%s: expected at least %d arguments, got %d", flags.Name(), minArgs, len(rest))
	}
	return rest, nil
}

func newRand() *rand.Rand {
	var seedBytes [8]byte
	_, _ = crand.Read(seedBytes[:])
	seed := int64(binary.LittleEndian.Uint64(seedBytes[:]))
	return rand.New(rand.NewSource(seed))
}

// runGen writes random pairs whose keys are an HMAC of their value.
func runGen(_ context.Context, _ *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("gen", pflag.ContinueOnError)
	n := flags.IntP("count", "n", 1000000, "number of pairs")
	keyLen := flags.Int("key-len", 16, "key length in bytes (at most 32)")
	if _, err := parse(flags, args, 0); err != nil {
		return err
	}
	if *keyLen <= 0 || *keyLen > sha256.Size {
		return fmt.Errorf("--key-len must be in [1, %d]", sha256.Size)
	}

	rng := newRand()
	h := hmac.New(sha256.New, []byte(hmacKey))
	w := bufio.NewWriter(os.Stdout)

	for i := 0; i < *n; i++ {
		var buf [suffixLen / 2]byte
		if _, err := rng.Read(buf[:]); err != nil {
			return err
		}
		value := fmt.Sprintf("%s%x", prefix, buf)
		h.Reset()
		h.Write([]byte(value))
		key := hex.EncodeToString(h.Sum(nil)[:*keyLen])

		if _, err := fmt.Fprintf(w, "%s:%s\n", key, value); err != nil {
			return err
		}
	}
	return w.Flush()
}

// scanPairs calls fn for each line of the pair file at path.
func scanPairs(path string, fn func(key, value []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	s := bufio.NewScanner(bufio.NewReaderSize(f, 16*1024))
	s.Buffer(make([]byte, 64*1024), 64*1024*1024)
	var keyBuf []byte
	for line := 1; s.Scan(); line++ {
		k, v, ok := bytes.Cut(s.Bytes(), []byte{':'})
		if !ok {
			return fmt.Errorf("%s:%d: expected HEXKEY:VALUE", path, line)
		}
		keyBuf = keyBuf[:0]
		keyBuf, err = hex.AppendDecode(keyBuf, k)
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(keyBuf, v); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
	}
	return s.Err()
}

func runBuild(ctx context.Context, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("build", pflag.ContinueOnError)
	hashName := flags.String("hash", "chd", "minimal perfect hash function: chd or bbhash")
	keyLen := flags.Int("key-len", 0, "key length in bytes (default: length of the first key)")
	chunkSize := flags.Int("chunk-size", 0, "object copy buffer size in bytes")
	spoolDir := flags.String("spool-dir", "", "directory for the temporary object spool")
	rest, err := parse(flags, args, 2)
	if err != nil {
		return err
	}
	in, out := rest[0], rest[1]

	hash, err := shard.ParseHashAlgorithm(*hashName)
	if err != nil {
		return err
	}

	// first pass: count, and learn the key length
	var count uint64
	err = scanPairs(in, func(key, _ []byte) error {
		if *keyLen == 0 {
			*keyLen = len(key)
		}
		count++
		return ctx.Err()
	})
	if err != nil {
		return err
	}
	if *keyLen == 0 {
		return fmt.Errorf("%s: no pairs and no --key-len", in)
	}

	c, err := shard.NewCreator(out, count, *keyLen,
		shard.WithLogger(logger),
		shard.WithHashAlgorithm(hash),
		shard.WithChunkSize(*chunkSize),
		shard.WithSpoolDir(*spoolDir))
	if err != nil {
		return err
	}
	defer func() { _ = c.Abort() }()

	err = scanPairs(in, func(key, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return c.Write(key, value)
	})
	if err != nil {
		return err
	}
	return c.Finalize()
}

func readMode(name string) (shard.ReadMode, error) {
	switch name {
	case "mmap":
		return shard.ReadModeMmap, nil
	case "file":
		return shard.ReadModeFile, nil
	}
	return 0, fmt.Errorf("unknown read mode %q", name)
}

func runGet(_ context.Context, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("get", pflag.ContinueOnError)
	modeName := flags.String("read-mode", "mmap", "how to read the shard: mmap or file")
	rest, err := parse(flags, args, 2)
	if err != nil {
		return err
	}
	mode, err := readMode(*modeName)
	if err != nil {
		return err
	}
	key, err := hex.DecodeString(rest[1])
	if err != nil {
		return fmt.Errorf("key: %w", err)
	}

	s, err := shard.Open(rest[0], shard.WithLogger(logger), shard.WithReadMode(mode))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	obj, err := s.Lookup(key)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(obj)
	return err
}

func runDelete(_ context.Context, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("delete", pflag.ContinueOnError)
	rest, err := parse(flags, args, 2)
	if err != nil {
		return err
	}
	keys := make([][]byte, 0, len(rest)-1)
	for _, arg := range rest[1:] {
		key, err := hex.DecodeString(arg)
		if err != nil {
			return fmt.Errorf("key %q: %w", arg, err)
		}
		keys = append(keys, key)
	}

	n, err := shard.DeleteAll(rest[0], keys, shard.WithLogger(logger))
	fmt.Fprintf(os.Stderr, "deleted %d of %d\n", n, len(keys))
	return err
}

func runVerify(ctx context.Context, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
	rest, err := parse(flags, args, 1)
	if err != nil {
		return err
	}
	return shard.Verify(ctx, rest[0], shard.WithLogger(logger))
}

func runInfo(_ context.Context, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("info", pflag.ContinueOnError)
	rest, err := parse(flags, args, 1)
	if err != nil {
		return err
	}
	s, err := shard.Open(rest[0], shard.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var live uint64
	if err := s.Range(func(_, _ []byte) error {
		live++
		return nil
	}); err != nil {
		return err
	}

	fmt.Printf("path:         %s\n", rest[0])
	fmt.Printf("hash:         %s\n", s.HashAlgorithm())
	fmt.Printf("key length:   %d\n", s.KeyLen())
	fmt.Printf("records:      %d (%d deleted)\n", s.Len(), s.Len()-live)
	fmt.Printf("object bytes: %d\n", s.ObjectBytes())
	fmt.Printf("file size:    %d\n", s.Size())
	return nil
}

func runDump(_ context.Context, logger *slog.Logger, args []string) error {
	flags := pflag.NewFlagSet("dump", pflag.ContinueOnError)
	rest, err := parse(flags, args, 1)
	if err != nil {
		return err
	}
	s, err := shard.Open(rest[0], shard.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	w := bufio.NewWriter(os.Stdout)
	err = s.Range(func(key, object []byte) error {
		return dumpPair(w, key, object)
	})
	if err != nil {
		return err
	}
	return w.Flush()
}

func dumpPair(w io.Writer, key, object []byte) error {
	_, err := fmt.Fprintf(w, "%x:%s\n", key, object)
	return err
}
