// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package checksum

import (
	"encoding/hex"
	"fmt"
	"io"

	"github.com/zeebo/blake3"
)

// Size is the digest length in bytes.
const Size = 32

// Sum is a BLAKE3-256 digest.
type Sum [Size]byte

// Of returns the digest of data.
func Of(data []byte) Sum {
	return Sum(blake3.Sum256(data))
}

// Parse decodes a 64-character hex digest.
func Parse(text string) (Sum, error) {
	var sum Sum
	if len(text) != hex.EncodedLen(Size) {
		return sum, fmt.Errorf("checksum %q is %d characters, want %d", text, len(text), hex.EncodedLen(Size))
	}
	if _, err := hex.Decode(sum[:], []byte(text)); err != nil {
		return sum, fmt.Errorf("parsing checksum %q: %w", text, err)
	}
	return sum, nil
}

func (s Sum) String() string {
	return hex.EncodeToString(s[:])
}

// IsZero reports whether s is the zero digest (never produced by
// hashing, used as "unset").
func (s Sum) IsZero() bool {
	return s == Sum{}
}

func (s Sum) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Sum) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Hasher accumulates a digest over everything written to it.
type Hasher struct {
	state   *blake3.Hasher
	written int64
}

// NewHasher returns an empty Hasher.
func NewHasher() *Hasher {
	return &Hasher{state: blake3.New()}
}

func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.state.Write(p)
	h.written += int64(n)
	return n, err
}

// Sum returns the digest of the bytes written so far.
func (h *Hasher) Sum() Sum {
	var sum Sum
	copy(sum[:], h.state.Sum(nil))
	return sum
}

// Written returns the number of bytes hashed so far.
func (h *Hasher) Written() int64 {
	return h.written
}

// Reader hashes r to completion and returns the digest and length.
func Reader(r io.Reader) (Sum, int64, error) {
	hasher := NewHasher()
	if _, err := io.Copy(hasher, r); err != nil {
		return Sum{}, hasher.Written(), err
	}
	return hasher.Sum(), hasher.Written(), nil
}
