/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package flow

import (
	"sync/atomic"
	"time"
)

// Tracker owns the pulse counter and the two snapshots the control loop
// reads: one taken when a program starts and one at each window boundary.
//
// OnPulse is the only method safe to call outside the control loop.
type Tracker struct {
	counter  Counter
	debounce *Debouncer
	enabled  atomic.Bool

	windowStart  uint64
	rate         uint64
	runStart     uint64
	runStartTime time.Time
}

// NewTracker returns a tracker with the standard 50ms debounce.
func NewTracker() *Tracker {
	return &Tracker{debounce: NewDebouncer(DebounceInterval)}
}

// SetEnabled switches pulse counting on or off. Counting is only active
// while the sensor type is a flow sensor.
func (t *Tracker) SetEnabled(on bool) { t.enabled.Store(on) }

// Enabled reports whether pulses are counted.
func (t *Tracker) Enabled() bool { return t.enabled.Load() }

// OnPulse records a falling edge observed at ts.
func (t *Tracker) OnPulse(ts time.Time) {
	if !t.enabled.Load() {
		return
	}
	if !t.debounce.Accept(ts) {
		return
	}
	t.counter.Inc()
}

// Count returns the raw pulse count.
func (t *Tracker) Count() uint64 { return t.counter.Load() }

// IsWindowBoundary reports whether now closes a sampling window.
func IsWindowBoundary(now time.Time) bool {
	return now.Unix()%int64(Window/time.Second) == 0
}

// Sample closes the current window if now is a boundary and returns the
// pulses counted during it.
func (t *Tracker) Sample(now time.Time) (uint64, bool) {
	if !IsWindowBoundary(now) {
		return 0, false
	}
	cur := t.counter.Load()
	var delta uint64
	if cur > t.windowStart {
		delta = cur - t.windowStart
	}
	t.windowStart = cur
	t.rate = delta
	return delta, true
}

// Rate returns the pulses counted in the last closed window.
func (t *Tracker) Rate() uint64 { return t.rate }

// MarkRunStart snapshots the count at the start of a program run.
func (t *Tracker) MarkRunStart(now time.Time) {
	t.runStart = t.counter.Load()
	t.runStartTime = now
}

// RunCount returns pulses since the last MarkRunStart and when it was taken.
func (t *Tracker) RunCount() (uint64, time.Time) {
	cur := t.counter.Load()
	if cur <= t.runStart {
		return 0, t.runStartTime
	}
	return cur - t.runStart, t.runStartTime
}

// Volume converts pulses to volume using the pulse rate option, expressed
// in hundredths of a unit per pulse.
func Volume(pulses uint64, pulseRate int) float64 {
	return float64(pulses) * float64(pulseRate) / 100
}
