// Copyright 2026 The Marshal Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := Fake(start)

	ch := fake.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(1 * time.Second)
	select {
	case fired := <-ch:
		want := start.Add(5 * time.Second)
		if !fired.Equal(want) {
			t.Errorf("fired at %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterImmediateForNonPositive(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeTickerFiresPerInterval(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := Fake(start)

	ticker := fake.NewTicker(time.Minute)
	defer ticker.Stop()

	// Three intervals elapse, but the channel has capacity 1 and no
	// consumer between ticks, so only one tick is retained. This
	// matches time.Ticker's drop behavior.
	fake.Advance(3 * time.Minute)

	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after three intervals")
	}
}

func TestFakeTickerStop(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	ticker := fake.NewTicker(time.Minute)
	ticker.Stop()
	fake.Advance(5 * time.Minute)

	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	fake := Fake(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	fired := make(chan time.Time, 1)
	go func() {
		fired <- <-fake.After(5 * time.Second)
	}()

	// WaitForTimers removes the race between the goroutine registering
	// its waiter and the advance below.
	fake.WaitForTimers(1)
	fake.Advance(5 * time.Second)

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not fire after WaitForTimers and Advance")
	}
}

func TestFakeAdvanceOrdersWaitersByDeadline(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	fake := Fake(start)

	late := fake.After(10 * time.Second)
	early := fake.After(2 * time.Second)

	fake.Advance(15 * time.Second)

	earlyAt := <-early
	lateAt := <-late
	if !earlyAt.Before(lateAt) {
		t.Errorf("early fired at %v, late at %v; want early first", earlyAt, lateAt)
	}
	if got := fake.Now(); !got.Equal(start.Add(15 * time.Second)) {
		t.Errorf("Now = %v, want %v", got, start.Add(15*time.Second))
	}
}
