/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runqueue is the fixed-capacity store of pending and running
// station runs. It is owned by the control loop and is not safe for
// concurrent use.
package runqueue

import (
	"errors"

	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/station"
)

// ErrCapacityExceeded is returned by Enqueue when the queue is full.
var ErrCapacityExceeded = errors.New("run queue capacity exceeded")

// Handle is the stable identity of a queued request. Handles are never
// reused within the lifetime of a Queue.
type Handle uint64

// OptionalHandle is a Handle that may be absent.
type OptionalHandle struct {
	h  Handle
	ok bool
}

// SomeHandle wraps h.
func SomeHandle(h Handle) OptionalHandle { return OptionalHandle{h: h, ok: true} }

// Get returns the handle and whether it is present.
func (o OptionalHandle) Get() (Handle, bool) { return o.h, o.ok }

// Is reports whether o holds h.
func (o OptionalHandle) Is(h Handle) bool { return o.ok && o.h == h }

// Request is one station run. Start is absolute unix seconds, 0 while
// unscheduled. Duration is seconds, 0 once marked for removal.
type Request struct {
	Station  station.ID
	Program  program.ID
	Start    int64
	Duration int64
}

// Scheduled reports whether a start time has been assigned.
func (r Request) Scheduled() bool { return r.Start > 0 }

// End returns Start+Duration.
func (r Request) End() int64 { return r.Start + r.Duration }

// Active reports whether now lies inside [Start, Start+Duration).
func (r Request) Active(now int64) bool {
	return r.Scheduled() && now >= r.Start && now < r.End()
}

// Entry pairs a request with its handle.
type Entry struct {
	Handle Handle
	Request
}

// Queue holds at most a fixed number of live requests in insertion order.
type Queue struct {
	capacity int
	entries  []Entry
	next     Handle
	index    [station.MaxStations]OptionalHandle
}

// New returns an empty queue holding at most capacity requests.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{capacity: capacity, entries: make([]Entry, 0, capacity), next: 1}
}

// Cap returns the capacity.
func (q *Queue) Cap() int { return q.capacity }

// Len returns the number of live requests.
func (q *Queue) Len() int { return len(q.entries) }

// Empty reports whether nothing is queued.
func (q *Queue) Empty() bool { return len(q.entries) == 0 }

// Enqueue appends r. It fails without side effects when the queue is full
// or the station is out of range.
func (q *Queue) Enqueue(r Request) (Handle, error) {
	if len(q.entries) >= q.capacity {
		return 0, ErrCapacityExceeded
	}
	if !r.Station.Valid() {
		return 0, errors.New("run queue: station out of range")
	}
	h := q.next
	q.next++
	q.entries = append(q.entries, Entry{Handle: h, Request: r})
	q.reindex(r.Station)
	return h, nil
}

// Dequeue removes h, compacts storage and recomputes the station's
// selected request. It reports whether h was present.
func (q *Queue) Dequeue(h Handle) bool {
	i := q.find(h)
	if i < 0 {
		return false
	}
	sid := q.entries[i].Station
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	q.reindex(sid)
	return true
}

// MarkForRemoval zeroes the duration of h. The request stays queued until
// the next termination pass.
func (q *Queue) MarkForRemoval(h Handle) bool {
	i := q.find(h)
	if i < 0 {
		return false
	}
	q.entries[i].Duration = 0
	return true
}

// MarkAllForRemoval zeroes every duration.
func (q *Queue) MarkAllForRemoval() {
	for i := range q.entries {
		q.entries[i].Duration = 0
	}
}

// SetStart assigns the start time of h and refreshes the station index.
func (q *Queue) SetStart(h Handle, start int64) bool {
	i := q.find(h)
	if i < 0 {
		return false
	}
	q.entries[i].Start = start
	q.reindex(q.entries[i].Station)
	return true
}

// Get returns the request for h.
func (q *Queue) Get(h Handle) (Request, bool) {
	i := q.find(h)
	if i < 0 {
		return Request{}, false
	}
	return q.entries[i].Request, true
}

// Entries returns a copy of the live requests in insertion order.
func (q *Queue) Entries() []Entry {
	out := make([]Entry, len(q.entries))
	copy(out, q.entries)
	return out
}

// ForStation returns the live requests for sid in insertion order.
func (q *Queue) ForStation(sid station.ID) []Entry {
	var out []Entry
	for _, e := range q.entries {
		if e.Station == sid {
			out = append(out, e)
		}
	}
	return out
}

// Selected returns the request that drives the station's bit: the live
// request with the greatest start time. Earlier insertion wins ties.
func (q *Queue) Selected(sid station.ID) OptionalHandle {
	if !sid.Valid() {
		return OptionalHandle{}
	}
	return q.index[sid]
}

// SelectedRequest resolves Selected to its request.
func (q *Queue) SelectedRequest(sid station.ID) (Entry, bool) {
	h, ok := q.Selected(sid).Get()
	if !ok {
		return Entry{}, false
	}
	i := q.find(h)
	if i < 0 {
		return Entry{}, false
	}
	return q.entries[i], true
}

// Reset drops every request. Nothing is logged.
func (q *Queue) Reset() {
	q.entries = q.entries[:0]
	q.index = [station.MaxStations]OptionalHandle{}
}

func (q *Queue) find(h Handle) int {
	for i := range q.entries {
		if q.entries[i].Handle == h {
			return i
		}
	}
	return -1
}

func (q *Queue) reindex(sid station.ID) {
	if !sid.Valid() {
		return
	}
	var best OptionalHandle
	var bestStart int64
	for _, e := range q.entries {
		if e.Station != sid {
			continue
		}
		if !best.ok || e.Start > bestStart {
			best = SomeHandle(e.Handle)
			bestStart = e.Start
		}
	}
	q.index[sid] = best
}
