// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time operations for testability. Production
// code injects Real(); tests inject a *Fake with deterministic time
// control. The engine's staleness tiers, presence throttling, and
// reconnect backoff all read time through this interface, so tests can
// advance time without sleeping.
package clock

import "time"

// Clock is the subset of the time package the engine depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. Equivalent to time.After.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f in its own
	// goroutine. Returns a Timer whose Stop cancels the pending call.
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled call created by AfterFunc.
type Timer interface {
	// Stop prevents the timer from firing. Returns true if the call
	// stops the timer, false if it has already fired or been stopped.
	Stop() bool
}
