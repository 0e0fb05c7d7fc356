// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(epoch)
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(epoch.Add(90 * time.Second)) {
		t.Errorf("Now = %v, want %v", got, epoch.Add(90*time.Second))
	}
}

func TestFakeAfterFiresOnlyAtDeadline(t *testing.T) {
	c := Fake(epoch)
	channel := c.After(5 * time.Second)

	c.Advance(4 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(5 * time.Second)) {
			t.Errorf("fired at %v", fired)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
	if c.PendingCount() != 0 {
		t.Errorf("PendingCount = %d after one-shot fired", c.PendingCount())
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should be ready immediately")
	}
}

func TestFakeTickerRepeatsAndStops(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)

	for i := 1; i <= 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	ticker.Stop()
	c.Advance(time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired after Stop")
	default:
	}
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	c.Advance(5 * time.Second)

	received := 0
	for {
		select {
		case <-ticker.C:
			received++
			continue
		default:
		}
		break
	}
	if received != 1 {
		t.Errorf("received %d ticks from a full buffer, want 1", received)
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Minute)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("goroutine waiting on After never woke")
	}
}

func TestFakeTimersPendingCount(t *testing.T) {
	c := Fake(epoch)
	late := c.After(3 * time.Second)
	early := c.After(time.Second)
	ticker := c.NewTicker(2 * time.Second)
	if got := c.PendingCount(); got != 3 {
		t.Fatalf("PendingCount = %d, want 3", got)
	}

	c.Advance(2 * time.Second)
	select {
	case <-early:
	default:
		t.Fatal("1s timer did not fire at 2s")
	}
	select {
	case <-late:
		t.Fatal("3s timer fired at 2s")
	default:
	}
	// The ticker rescheduled itself; the 1s timer is gone.
	if got := c.PendingCount(); got != 2 {
		t.Fatalf("PendingCount = %d after advance, want 2", got)
	}

	ticker.Stop()
	ticker.Stop()
	if got := c.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d after Stop, want 1", got)
	}
}
