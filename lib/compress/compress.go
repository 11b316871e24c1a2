// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress provides the streaming codecs blob files are
// stored with. Each stored blob records the Tag it was written with,
// so changing the configured codec only affects new blobs.
package compress

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies a codec. Values are persisted in folder metadata and
// must not be renumbered.
type Tag uint8

const (
	// None stores content as-is.
	None Tag = 0

	// LZ4 uses the LZ4 frame format: fastest, modest ratio.
	LZ4 Tag = 1

	// Zstd uses zstd at the default level. This is the default for
	// new blobs.
	Zstd Tag = 2

	// Gzip uses gzip at the default level, for folders that must be
	// readable by external tooling.
	Gzip Tag = 3
)

func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Gzip:
		return "gzip"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(tag))
	}
}

// ParseTag parses the textual name of a codec.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "":
		return Zstd, nil
	case "gzip":
		return Gzip, nil
	default:
		return 0, fmt.Errorf("unknown compression %q (want none, lz4, zstd or gzip)", name)
	}
}

func (tag Tag) MarshalText() ([]byte, error) {
	return []byte(tag.String()), nil
}

func (tag *Tag) UnmarshalText(text []byte) error {
	parsed, err := ParseTag(string(text))
	if err != nil {
		return err
	}
	*tag = parsed
	return nil
}

// NewWriter returns a writer compressing into w. Close must be called
// to flush the final frame; it does not close w.
func NewWriter(w io.Writer, tag Tag) (io.WriteCloser, error) {
	switch tag {
	case None:
		return nopWriteCloser{w}, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Zstd:
		encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd writer: %w", err)
		}
		return encoder, nil
	case Gzip:
		writer, err := gzip.NewWriterLevel(w, gzip.DefaultCompression)
		if err != nil {
			return nil, fmt.Errorf("gzip writer: %w", err)
		}
		return writer, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}

// NewReader returns a reader decompressing r. Closing it releases
// decoder resources but does not close r.
func NewReader(r io.Reader, tag Tag) (io.ReadCloser, error) {
	switch tag {
	case None:
		return io.NopCloser(r), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Zstd:
		decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case Gzip:
		reader, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return reader, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag %d", uint8(tag))
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
