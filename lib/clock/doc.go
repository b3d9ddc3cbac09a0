// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock lets polling code run against a fake time source in
// tests.
//
// Code that sleeps between polls takes a [Clock] instead of calling
// time.After. [Real] forwards to the time package. [Fake] returns a
// [FakeClock] that stands still until [FakeClock.Advance]:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go poll(ctx, c)
//	c.WaitForTimers(1)
//	c.Advance(10 * time.Second)
//
// WaitForTimers closes the window between the poller registering its
// timer and the test moving time past it.
package clock
