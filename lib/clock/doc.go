// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the scan
// engine and the catalog refresher.
//
// The scan protocol depends on three durations: the freshness window
// that separates live scan requests from stale ones, the cool-down
// after a fixed-session scan completes, and the delay before startup
// reconciliation. Code that needs any of them holds a Clock instead of
// calling the time package, so tests can drive them with Fake and
// Advance rather than sleeping:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := scan.New(scan.Config{Clock: c, ...})
//	c.WaitForTimers(1)
//	c.Advance(500 * time.Millisecond)
package clock
