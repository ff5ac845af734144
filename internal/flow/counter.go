/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package flow counts flow-sensor pulses and derives run totals and the
// real-time rate from them.
package flow

import (
	"sync/atomic"
	"time"
)

// DebounceInterval is the minimum spacing between accepted pulses.
const DebounceInterval = 50 * time.Millisecond

// Window is the real-time rate sampling window.
const Window = 30 * time.Second

// Counter is a monotonically increasing pulse count, safe for concurrent use.
type Counter struct {
	n atomic.Uint64
}

// Inc adds one pulse.
func (c *Counter) Inc() { c.n.Add(1) }

// Load returns the current count.
func (c *Counter) Load() uint64 { return c.n.Load() }

// Debouncer drops pulses that arrive too close to the last accepted one.
// Accept may be called from any goroutine.
type Debouncer struct {
	interval time.Duration
	last     atomic.Int64 // unix nanos of the last accepted pulse, 0 = none
}

// NewDebouncer returns a debouncer with the given interval.
func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Accept reports whether a pulse at t should be counted.
func (d *Debouncer) Accept(t time.Time) bool {
	at := t.UnixNano()
	for {
		last := d.last.Load()
		if last != 0 && at-last < int64(d.interval) {
			return false
		}
		if d.last.CompareAndSwap(last, at) {
			return true
		}
	}
}
