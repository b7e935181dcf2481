// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Code that stamps dates or enforces deadlines takes a Clock instead
// of calling time.Now or time.After directly. Real() is the standard
// library; Fake() stands still until the test calls Advance:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go waitWithDeadline(fake)
//	fake.WaitForTimers(1)        // the goroutine has armed its timer
//	fake.Advance(5 * time.Second) // fire it deterministically
//
// WaitForTimers removes the race between a goroutine registering a
// timer and the test advancing time past it.
package clock
