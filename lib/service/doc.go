// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides shared infrastructure for the mission
// control daemon and its clients.
//
// Binaries compose these utilities in their own main() function rather
// than subclassing a framework. The package provides building blocks,
// not a runtime:
//
//   - Logging: [NewLogger] builds the standard JSON logger on stderr.
//   - HTTP server: [HTTPServer] binds, serves and drains on
//     cancellation, with write timeouts sized for long-poll requests.
//     [LogRequests] logs each completed request; [WriteJSON] and
//     [WriteError] produce the JSON bodies every endpoint answers with.
//   - Single-flight work: [Flight] runs an idempotent operation once
//     for every caller that asks while it is in progress, and can
//     repeat it on a clock ticker.
//   - Poll loop: [RunPollLoop] drives a client-side long-poll with
//     exponential backoff on transient errors.
package service
