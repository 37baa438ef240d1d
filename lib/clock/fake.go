// Copyright 2026 The Tandem Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a Clock under test control. Time only moves when Advance is
// called. Timers and After channels scheduled to fire at or before the
// new time fire synchronously inside Advance, in deadline order, so a
// test observes all effects of an advance before its next assertion.
//
// Fake is safe for concurrent use: engine goroutines may schedule
// timers while the test goroutine advances time.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

// NewFake returns a Fake positioned at a fixed, arbitrary instant.
func NewFake() *Fake {
	return &Fake{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that fires when the fake time passes the
// deadline. The channel is buffered so Advance never blocks on an
// abandoned waiter.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	channel := make(chan time.Time, 1)
	f.schedule(d, nil, channel)
	return channel
}

// AfterFunc schedules f to run when the fake time passes the deadline.
// Unlike the real clock, the function runs synchronously inside
// Advance.
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	return f.schedule(d, fn, nil)
}

// Advance moves the fake time forward by d, firing every timer whose
// deadline falls within the window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		timer := f.nextDueLocked(target)
		if timer == nil {
			break
		}
		// Time steps to each deadline in turn so a firing callback
		// that reads Now sees its own deadline, not the target.
		f.now = timer.deadline
		timer.fired = true
		f.mu.Unlock()
		if timer.fn != nil {
			timer.fn()
		}
		if timer.channel != nil {
			timer.channel <- timer.deadline
		}
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

// PendingTimers returns the number of scheduled, unfired timers.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, timer := range f.pending {
		if !timer.fired && !timer.stopped {
			count++
		}
	}
	return count
}

func (f *Fake) schedule(d time.Duration, fn func(), channel chan time.Time) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	timer := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		fn:       fn,
		channel:  channel,
	}
	f.pending = append(f.pending, timer)
	sort.SliceStable(f.pending, func(i, j int) bool {
		return f.pending[i].deadline.Before(f.pending[j].deadline)
	})
	return timer
}

// nextDueLocked returns the earliest unfired, unstopped timer with a
// deadline at or before target, or nil.
func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	for _, timer := range f.pending {
		if timer.fired || timer.stopped {
			continue
		}
		if !timer.deadline.After(target) {
			return timer
		}
	}
	return nil
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	channel  chan time.Time
	fired    bool
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
