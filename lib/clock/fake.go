// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock stopped at initial. Time only moves when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{current: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock. It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	pending []*waiter
	changed *sync.Cond
}

// waiter is a registered After channel or ticker.
type waiter struct {
	deadline time.Time
	channel  chan time.Time
	// interval is non-zero for tickers, which are rescheduled after
	// each fire instead of removed.
	interval time.Duration
	stopped  bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a one-shot waiter that fires when the clock reaches
// now+d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.pending = append(c.pending, &waiter{deadline: c.current.Add(d), channel: channel})
	c.changed.Broadcast()
	return channel
}

// NewTicker registers a periodic waiter.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	w := &waiter{deadline: c.current.Add(d), channel: channel, interval: d}
	c.pending = append(c.pending, w)
	c.changed.Broadcast()

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.stopped = true
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			w.interval = d
			w.deadline = c.current.Add(d)
			if w.stopped {
				w.stopped = false
				c.pending = append(c.pending, w)
				c.changed.Broadcast()
			}
		},
	}
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline is at or before the new time, in deadline order. Sends
// never block; a full ticker channel drops the tick.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	expired := c.expireLocked(target)
	c.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].deadline.Before(expired[j].deadline)
	})
	for _, w := range expired {
		select {
		case w.channel <- target:
		default:
		}
	}
}

// expireLocked removes expired one-shot waiters, reschedules tickers
// past target, and returns the waiters to fire. Must be called with
// c.mu held.
func (c *FakeClock) expireLocked(target time.Time) []*waiter {
	var fire, keep []*waiter
	for _, w := range c.pending {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			keep = append(keep, w)
			continue
		}
		fire = append(fire, w)
		if w.interval > 0 {
			for !w.deadline.After(target) {
				w.deadline = w.deadline.Add(w.interval)
			}
			keep = append(keep, w)
		}
	}
	c.pending = keep
	return fire
}

// WaitForTimers blocks until at least n waiters are pending. Call it
// before Advance to avoid racing the goroutine that registers the
// timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of active waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, w := range c.pending {
		if !w.stopped {
			count++
		}
	}
	return count
}
