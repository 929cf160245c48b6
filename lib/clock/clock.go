// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package the agent uses. Real()
// forwards to the time package; Fake() only moves when told to.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once d has elapsed. A
	// non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer can
	// cancel a call that has not happened yet.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks every d on the returned Ticker's C.
	// Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. Returns false if the call already
// ran or the timer was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. The channel has capacity 1 and
// drops ticks the consumer has not picked up, like time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop ends the tick stream. C is not closed.
func (t *Ticker) Stop() { t.stop() }
