// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the few time operations Mission Control
// depends on: reading the current time, one-shot deadlines, and
// periodic tickers.
//
// Long-poll deadlines and the persistence loop take a Clock so tests
// can drive them with Fake instead of waiting on wall time:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go catalog.Wait(ctx, requests) // registers a deadline
//	fake.WaitForTimers(1)
//	fake.Advance(3 * time.Minute)  // deadline fires
package clock
