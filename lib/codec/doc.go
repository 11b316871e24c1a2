// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration used for everything
// Mission Control persists: storage folder metadata, payload
// descriptions, the launch configuration, and asset rows in the index
// database.
//
// Encoding uses Core Deterministic CBOR (RFC 8949 section 4.2) so that
// the same value always produces the same bytes. Decoding maps
// untyped maps to map[string]any instead of map[any]any, and untyped
// integers to int64 whatever their sign.
//
// WriteFile and ReadFile wrap the codec with the write-to-temporary,
// fsync, rename sequence so a crash never leaves a half-written state
// file behind.
package codec
