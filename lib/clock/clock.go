// Copyright 2026 The Volttron Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Production code takes a Clock instead of calling time.Now, time.After,
// time.AfterFunc, time.NewTicker, or time.Sleep directly. Real() wires
// the standard library; Fake() gives tests a clock that only moves when
// Advance is called, so backoff schedules measured in minutes run in
// microseconds.
package clock

import "time"

// Clock is the time interface injected into every component that
// schedules, sleeps, or timestamps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once duration d has
	// elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc runs f once d has elapsed: in a new goroutine for the
	// real clock, synchronously inside Advance for the fake. The
	// returned Timer can cancel the pending call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers ticks on its C channel every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Timer is a pending one-shot event created by AfterFunc.
type Timer struct {
	stop func() bool
}

// Stop cancels the pending call. Returns false when the timer already
// fired or was already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks a slow consumer misses are dropped, matching time.Ticker.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop ends tick delivery. C is not closed.
func (t *Ticker) Stop() { t.stop() }
