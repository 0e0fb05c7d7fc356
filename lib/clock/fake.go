// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// FakeClock is a Clock that only moves when Advance is called. It is
// safe for concurrent use.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers timerQueue

	// registered is closed and replaced whenever a timer is added.
	registered chan struct{}
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial, registered: make(chan struct{})}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&fakeTimer{deadline: c.now.Add(d), channel: channel})
	return channel
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	channel := make(chan time.Time, 1)
	timer := &fakeTimer{interval: d, channel: channel}

	c.mu.Lock()
	timer.deadline = c.now.Add(d)
	c.addLocked(timer)
	c.mu.Unlock()

	return &Ticker{C: channel, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.index >= 0 {
			heap.Remove(&c.timers, timer.index)
		}
	}}
}

func (c *FakeClock) addLocked(timer *fakeTimer) {
	heap.Push(&c.timers, timer)
	close(c.registered)
	c.registered = make(chan struct{})
}

// Advance moves the clock forward by d, firing due timers in deadline
// order. A ticker whose reader is behind loses the extra ticks, as
// with time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for len(c.timers) > 0 && !c.timers[0].deadline.After(c.now) {
		timer := c.timers[0]
		select {
		case timer.channel <- c.now:
		default:
		}
		if timer.interval > 0 {
			timer.deadline = timer.deadline.Add(timer.interval)
			heap.Fix(&c.timers, 0)
		} else {
			heap.Pop(&c.timers)
		}
	}
}

// WaitForTimers blocks until at least n timers are pending. Tests call
// it before Advance so a goroutine's ticker exists before time moves.
func (c *FakeClock) WaitForTimers(n int) {
	for {
		c.mu.Lock()
		pending, registered := len(c.timers), c.registered
		c.mu.Unlock()
		if pending >= n {
			return
		}
		<-registered
	}
}

// PendingCount returns the number of timers that have not fired or
// been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type fakeTimer struct {
	deadline time.Time
	interval time.Duration // non-zero for tickers
	channel  chan time.Time
	index    int // position in the queue, -1 once removed
}

// timerQueue is a min-heap of timers by deadline.
type timerQueue []*fakeTimer

func (q timerQueue) Len() int           { return len(q) }
func (q timerQueue) Less(i, j int) bool { return q[i].deadline.Before(q[j].deadline) }

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	timer := x.(*fakeTimer)
	timer.index = len(*q)
	*q = append(*q, timer)
}

func (q *timerQueue) Pop() any {
	old := *q
	last := len(old) - 1
	timer := old[last]
	old[last] = nil
	timer.index = -1
	*q = old[:last]
	return timer
}
