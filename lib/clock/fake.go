// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*alarm
	changed *sync.Cond
}

// alarm is one registered deadline. period is non-zero for tickers.
type alarm struct {
	at      time.Time
	period  time.Duration
	deliver chan time.Time
	stopped bool
}

// Fake returns a FakeClock reading start.
func Fake(start time.Time) *FakeClock {
	fake := &FakeClock{now: start}
	fake.changed = sync.NewCond(&fake.mu)
	return fake
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	deliver := make(chan time.Time, 1)
	if d <= 0 {
		deliver <- c.now
		return deliver
	}
	c.register(&alarm{at: c.now.Add(d), deliver: deliver})
	return deliver
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &alarm{at: c.now.Add(d), period: d, deliver: make(chan time.Time, 1)}
	c.register(entry)
	return &Ticker{
		C: entry.deliver,
		stop: func() {
			c.mu.Lock()
			entry.stopped = true
			c.mu.Unlock()
		},
	}
}

// register must be called with c.mu held.
func (c *FakeClock) register(entry *alarm) {
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
}

// Advance moves time forward by d and fires every alarm whose deadline
// is reached, earliest first. A ticker spanning several periods fires
// once per period, subject to its one-slot buffer.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	for {
		var due, later []*alarm
		for _, entry := range c.pending {
			switch {
			case entry.stopped:
			case entry.at.After(c.now):
				later = append(later, entry)
			default:
				due = append(due, entry)
			}
		}
		if len(due) == 0 {
			c.pending = later
			return
		}
		sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
		for _, entry := range due {
			select {
			case entry.deliver <- c.now:
			default:
			}
			if entry.period > 0 {
				entry.at = entry.at.Add(entry.period)
				later = append(later, entry)
			}
		}
		c.pending = later
	}
}

// WaitForTimers blocks until at least n alarms are pending. Use it to
// make sure a goroutine has registered its deadline before advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.active() < n {
		c.changed.Wait()
	}
}

// PendingCount reports the number of pending alarms.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active()
}

func (c *FakeClock) active() int {
	count := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			count++
		}
	}
	return count
}
