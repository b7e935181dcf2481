// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for Date values and call deadlines.
// Production code injects Real(); tests inject Fake().
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d
	// has elapsed. If d <= 0 the channel is ready immediately.
	After(d time.Duration) <-chan time.Time

	// NewTimer returns a Timer that fires once after d. Callers that
	// may abandon the wait must Stop the timer.
	NewTimer(d time.Duration) *Timer
}

// Timer is a single-shot timer. Read the fire time from C.
type Timer struct {
	// C receives the fire time. Buffered with capacity 1.
	C <-chan time.Time

	stop func() bool
}

// Stop prevents the Timer from firing. It reports whether the call
// stopped the timer; false means it already fired or was stopped.
func (t *Timer) Stop() bool { return t.stop() }
