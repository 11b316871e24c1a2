// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFiresOnlyAtDeadline(t *testing.T) {
	fake := Fake(epoch)
	fired := fake.After(3 * time.Second)

	fake.Advance(2 * time.Second)
	select {
	case <-fired:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case at := <-fired:
		if want := epoch.Add(3 * time.Second); !at.Equal(want) {
			t.Errorf("fired at %v, want %v", at, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if count := fake.PendingCount(); count != 0 {
		t.Errorf("PendingCount = %d after firing, want 0", count)
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	fake := Fake(epoch)
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should deliver immediately")
	}
}

func TestFakeTickerRepeatsAndStops(t *testing.T) {
	fake := Fake(epoch)
	ticker := fake.NewTicker(time.Minute)

	for range 3 {
		fake.Advance(time.Minute)
		select {
		case <-ticker.C:
		default:
			t.Fatal("ticker did not fire")
		}
	}

	ticker.Stop()
	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-fake.After(time.Second)
		close(done)
	}()

	fake.WaitForTimers(1)
	fake.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("goroutine waiting on After never woke")
	}
}

func TestFakeNow(t *testing.T) {
	fake := Fake(epoch)
	fake.Advance(90 * time.Second)
	if got, want := fake.Now(), epoch.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("Now = %v, want %v", got, want)
	}
}
