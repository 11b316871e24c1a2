// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases for Mission Control's
// indexes (today the asset index) with one set of pragmas and one
// connection discipline.
//
// Connections come from zombiezen's sqlitex.Pool. A connection belongs
// to the goroutine that took it until it is put back. [Pool.Read] and
// [Pool.Write] cover the common case of borrowing a connection for one
// function call; Write wraps the call in an IMMEDIATE transaction that
// commits when the function returns nil and rolls back otherwise.
//
// Every connection runs in WAL mode with synchronous=NORMAL: readers
// never block the writer, and a committed transaction survives a
// process crash. Surviving power loss is not required because every
// index can be rebuilt from an asset upload.
package sqlitepool
