// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package versioned implements the change tracking behind the
// long-poll API.
//
// An [Object] is a value with a version that increases with every
// change. [Object.WaitForVersion] returns as soon as the version is
// greater than the one the caller already has, so a client that
// re-polls with the version it last received sees every change at
// most once and never busy-loops.
//
// A [Collection] tracks a keyed set of values the same way, but hands
// out deltas: the values changed since a version and the keys removed
// since then, so clients of large collections only transfer what
// changed.
//
// A [Catalog] names objects (or collections) and waits on several at
// once under one deadline, returning whichever are ready first.
//
// Versions start at 1 for objects and 0 for collections and never go
// back while the process runs. Waiting allocates no per-waiter state:
// every change closes and replaces a broadcast channel, so a waiter
// whose context ends leaves nothing behind.
package versioned
