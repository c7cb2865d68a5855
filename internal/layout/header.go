// Copyright 2026 The shard Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

const (
	HeaderSize = 128

	Magic         = uint32(0x53485244) // "SHRD"
	FormatVersion = uint32(1)

	// CompleteMarker is "SHRDDONE" in little-endian.
	CompleteMarker = uint64(0x454e4f4444524853)

	MaxKeyLen = (1 << 16) - 1

	checksumOff = 112
	markerOff   = 120
)

var (
	ErrBadMagic   = errors.New("bad magic number -- not a shard file or corrupted")
	ErrBadVersion = errors.New("unsupported shard format version")
	ErrTooShort   = errors.New("header too short")
	ErrIncomplete = errors.New("completeness marker missing")
	ErrChecksum   = errors.New("header checksum mismatch")
)

// Header is the fixed-size record at the start of every shard file.
type Header struct {
	Magic         uint32
	FormatVersion uint32
	Count         uint64
	KeyLen        uint32
	HashAlgorithm uint32
	MPHFLen       uint64
	ObjectBytes   uint64
	Checksum      uint64
	Marker        uint64
}

func NewHeader(count uint64, keyLen int, hashAlgorithm uint32) *Header {
	return &Header{
		Magic:         Magic,
		FormatVersion: FormatVersion,
		Count:         count,
		KeyLen:        uint32(keyLen),
		HashAlgorithm: hashAlgorithm,
	}
}

// Complete reports whether the completeness marker is present.
func (h *Header) Complete() bool {
	return h.Marker == CompleteMarker
}

func (h *Header) MarshalTo(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("buf too short: %d < %d", len(buf), HeaderSize)
	}
	buf = buf[:HeaderSize]
	clear(buf)

	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.FormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint32(buf[16:20], h.KeyLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.HashAlgorithm)
	binary.LittleEndian.PutUint64(buf[24:32], h.MPHFLen)
	binary.LittleEndian.PutUint64(buf[32:40], h.ObjectBytes)
	// 40:112 reserved
	binary.LittleEndian.PutUint64(buf[checksumOff:checksumOff+8], h.Checksum)
	binary.LittleEndian.PutUint64(buf[markerOff:markerOff+8], h.Marker)

	return nil
}

func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var buf [HeaderSize]byte
	if err := h.MarshalTo(buf[:]); err != nil {
		return 0, err
	}
	n, err := w.Write(buf[:])
	if err != nil {
		return int64(n), fmt.Errorf("write: %w", err)
	}
	return int64(n), nil
}

// UnmarshalBytes decodes and sanity checks a header.  It does not require
// the completeness marker; callers decide how to treat incomplete files.
func (h *Header) UnmarshalBytes(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("%w: %d < %d", ErrTooShort, len(buf), HeaderSize)
	}
	buf = buf[:HeaderSize]

	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	if h.Magic != Magic {
		return fmt.Errorf("%w (%x)", ErrBadMagic, h.Magic)
	}
	h.FormatVersion = binary.LittleEndian.Uint32(buf[4:8])
	if h.FormatVersion != FormatVersion {
		return fmt.Errorf("%w: can only read v%d, found v%d", ErrBadVersion, FormatVersion, h.FormatVersion)
	}
	h.Count = binary.LittleEndian.Uint64(buf[8:16])
	h.KeyLen = binary.LittleEndian.Uint32(buf[16:20])
	h.HashAlgorithm = binary.LittleEndian.Uint32(buf[20:24])
	h.MPHFLen = binary.LittleEndian.Uint64(buf[24:32])
	h.ObjectBytes = binary.LittleEndian.Uint64(buf[32:40])
	h.Checksum = binary.LittleEndian.Uint64(buf[checksumOff : checksumOff+8])
	h.Marker = binary.LittleEndian.Uint64(buf[markerOff : markerOff+8])

	return nil
}

// ComputeChecksum hashes every header field that precedes the checksum,
// followed by the serialized MPHF.
func (h *Header) ComputeChecksum(mphf []byte) uint64 {
	var buf [HeaderSize]byte
	_ = h.MarshalTo(buf[:])

	d := xxhash.New()
	_, _ = d.Write(buf[:checksumOff])
	_, _ = d.Write(mphf)
	return d.Sum64()
}

// VerifyChecksum checks the stored checksum against the header fields and mphf.
func (h *Header) VerifyChecksum(mphf []byte) error {
	if actual := h.ComputeChecksum(mphf); actual != h.Checksum {
		return fmt.Errorf("%w (%x != %x)", ErrChecksum, h.Checksum, actual)
	}
	return nil
}

// Seal computes the checksum and writes it, followed by the completeness
// marker, into the header at the start of w.  It must be the last write of a
// successful build.
func (h *Header) Seal(mphf []byte, w io.WriterAt) error {
	h.Checksum = h.ComputeChecksum(mphf)
	h.Marker = CompleteMarker

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], h.Checksum)
	binary.LittleEndian.PutUint64(buf[8:16], h.Marker)
	if _, err := w.WriteAt(buf[:], checksumOff); err != nil {
		return fmt.Errorf("WriteAt: %w", err)
	}
	return nil
}
