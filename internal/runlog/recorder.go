/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package runlog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder accepts records from the control loop without blocking it. It
// keeps the most recent records in memory and hands every record to a
// sink on a background goroutine.
type Recorder struct {
	sink    Writer
	logger  zerolog.Logger
	pending chan Record
	enabled atomic.Bool

	mu     sync.RWMutex
	recent []Record
	head   int
	count  int

	done chan struct{}
}

// NewRecorder returns a recorder writing to sink (which may be nil) and
// remembering the last keep records.
func NewRecorder(sink Writer, keep int, logger zerolog.Logger) *Recorder {
	if keep <= 0 {
		keep = 200
	}
	r := &Recorder{
		sink:    sink,
		logger:  logger.With().Str("component", "runlog").Logger(),
		pending: make(chan Record, 64),
		recent:  make([]Record, keep),
		done:    make(chan struct{}),
	}
	r.enabled.Store(true)
	return r
}

// SetEnabled toggles logging. Disabled records are dropped.
func (r *Recorder) SetEnabled(on bool) { r.enabled.Store(on) }

// Write queues rec. It never blocks; a full backlog drops the record.
func (r *Recorder) Write(_ context.Context, rec Record) error {
	if !r.enabled.Load() {
		return nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	r.remember(rec)
	select {
	case r.pending <- rec:
	default:
		r.logger.Warn().Str("kind", string(rec.Kind)).Msg("run log backlog full; record not persisted")
	}
	return nil
}

// Run drains queued records into the sink until ctx is done.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return
		case rec := <-r.pending:
			r.persist(rec)
		}
	}
}

// Done is closed when Run has returned.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) flush() {
	for {
		select {
		case rec := <-r.pending:
			r.persist(rec)
		default:
			return
		}
	}
}

func (r *Recorder) persist(rec Record) {
	if r.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.sink.Write(ctx, rec); err != nil {
		r.logger.Error().Err(err).Str("kind", string(rec.Kind)).Msg("persist run log record")
	}
}

func (r *Recorder) remember(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent[r.head] = rec
	r.head = (r.head + 1) % len(r.recent)
	if r.count < len(r.recent) {
		r.count++
	}
}

// Recent returns up to n of the newest records, oldest first. n <= 0
// returns everything held.
func (r *Recorder) Recent(n int) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Record, n)
	start := (r.head - n + len(r.recent)) % len(r.recent)
	for i := 0; i < n; i++ {
		out[i] = r.recent[(start+i)%len(r.recent)]
	}
	return out
}
