// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package shard

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/bpowers/shard/internal/layout"
)

const verifyBatch = 64 * 1024

// Verify checks the shard's structure beyond what Open validates: every
// key hashes to its own slot, objects are packed back to back in slot
// order and exactly fill the object region, and deleted objects have been
// zeroed.  It reads the whole file, spreading the work across GOMAXPROCS
// goroutines.
func (s *Shard) Verify(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}

	l := s.layout
	if l.Count == 0 {
		if l.ObjectBytes != 0 {
			return corruptf("empty shard declares %d object bytes", l.ObjectBytes)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for lo := uint64(0); lo < l.Count; lo += verifyBatch {
		hi := min(lo+verifyBatch, l.Count)
		g.Go(func() error {
			return s.verifySlots(ctx, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	last, err := s.src.entry(l.Count - 1)
	if err != nil {
		return err
	}
	if end := last.Offset + last.Size(); end != l.ObjectBytes {
		return corruptf("objects end at %d, header declares %d bytes", end, l.ObjectBytes)
	}

	s.logger.Debug("verified shard", "path", s.path, "count", l.Count)
	return nil
}

func (s *Shard) verifySlots(ctx context.Context, lo, hi uint64) error {
	var prev layout.Entry
	if lo > 0 {
		var err error
		if prev, err = s.src.entry(lo - 1); err != nil {
			return err
		}
	}

	for slot := lo; slot < hi; slot++ {
		if slot%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		key, err := s.src.key(slot)
		if err != nil {
			return err
		}
		if got, ok := s.fn.Eval(key); !ok || got != slot {
			return corruptf("key %x stored in slot %d hashes to %d", key, slot, got)
		}

		e, err := s.src.entry(slot)
		if err != nil {
			return err
		}
		want := uint64(0)
		if slot > 0 {
			want = prev.Offset + prev.Size()
		}
		if e.Offset != want {
			return corruptf("slot %d: object at %d, expected %d", slot, e.Offset, want)
		}
		start, end, ok := s.layout.ObjectRange(e)
		if !ok {
			return corruptf("slot %d: object [%d, +%d) outside object region", slot, e.Offset, e.Size())
		}
		if e.Deleted() {
			if err := s.verifyZeroed(slot, start, end); err != nil {
				return err
			}
		}
		prev = e
	}
	return nil
}

func (s *Shard) verifyZeroed(slot, start, end uint64) error {
	obj, err := s.src.object(start, end)
	if err != nil {
		return err
	}
	for i, b := range obj {
		if b != 0 {
			return corruptf("deleted object in slot %d has a nonzero byte at %d", slot, i)
		}
	}
	return nil
}

// Verify opens the shard at path and verifies it.
func Verify(ctx context.Context, path string, opts ...Option) error {
	s, err := Open(path, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return s.Verify(ctx)
}
