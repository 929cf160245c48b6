// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock that stands still until Advance is called.
// Safe for concurrent use.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order, without the clock's lock held. A callback may schedule new
// timers but must not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*pendingTimer
	changed *sync.Cond
}

type pendingTimer struct {
	deadline time.Time
	interval time.Duration // non-zero for tickers
	fn       func()        // AfterFunc
	ch       chan time.Time
	done     bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot channel timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.addLocked(&pendingTimer{deadline: c.now.Add(d), ch: ch})
	return ch
}

// AfterFunc registers f to run when the clock passes now+d. A
// non-positive d runs f before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &pendingTimer{deadline: c.now.Add(d), fn: f}
	c.addLocked(timer)
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		return true
	}}
}

// NewTicker registers a periodic channel timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	timer := &pendingTimer{deadline: c.now.Add(d), interval: d, ch: ch}
	c.addLocked(timer)
	return &Ticker{C: ch, stop: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		timer.done = true
	}}
}

// Advance moves the clock forward by d and fires everything whose
// deadline is now due. Tickers spanning several intervals fire once
// per interval; ticks that find the channel full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.takeDue(target)
		if len(due) == 0 {
			return
		}
		for _, timer := range due {
			if timer.fn != nil {
				timer.fn()
				continue
			}
			select {
			case timer.ch <- target:
			default:
			}
		}
	}
}

// WaitForTimers blocks until at least n timers are pending. Use it to
// make sure a goroutine has registered its timer before advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.countLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of live timers and tickers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countLocked()
}

func (c *FakeClock) addLocked(timer *pendingTimer) {
	c.pending = append(c.pending, timer)
	c.changed.Broadcast()
}

func (c *FakeClock) countLocked() int {
	count := 0
	for _, timer := range c.pending {
		if !timer.done {
			count++
		}
	}
	return count
}

// takeDue removes due one-shot timers, reschedules due tickers, and
// returns what should fire, sorted by deadline.
func (c *FakeClock) takeDue(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*pendingTimer
	for _, timer := range c.pending {
		if timer.done {
			continue
		}
		if timer.deadline.After(target) {
			keep = append(keep, timer)
			continue
		}
		due = append(due, timer)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].deadline.Before(due[j].deadline)
	})

	for _, timer := range due {
		if timer.interval > 0 {
			timer.deadline = timer.deadline.Add(timer.interval)
			keep = append(keep, timer)
		} else {
			timer.done = true
		}
	}
	c.pending = keep
	return due
}
