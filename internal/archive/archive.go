/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package archive copies expiring run log records to object storage
// before they are pruned from the database.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/telemetry"
)

// ObjectStore abstracts object storage operations.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte) error
}

// Source lists and deletes expired records.
type Source interface {
	Before(ctx context.Context, cutoff time.Time) ([]runlog.Record, error)
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// Archiver uploads records older than a cutoff, then prunes them. A
// failed upload leaves the database untouched.
type Archiver struct {
	src    Source
	store  ObjectStore
	logger zerolog.Logger
}

// New creates an archiver. store may be nil, in which case records are
// pruned without a copy.
func New(src Source, store ObjectStore, logger zerolog.Logger) *Archiver {
	return &Archiver{src: src, store: store, logger: logger.With().Str("component", "archive").Logger()}
}

// Key names the object for a batch ending at cutoff.
func Key(cutoff time.Time) string {
	c := cutoff.UTC()
	return fmt.Sprintf("runlog/%04d/%02d/%s.ndjson", c.Year(), c.Month(), c.Format("20060102T150405Z"))
}

// Encode writes one JSON record per line.
func Encode(recs []runlog.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Run archives and prunes records that ended before cutoff. It returns
// the number of rows removed.
func (a *Archiver) Run(ctx context.Context, cutoff time.Time) (pruned int64, err error) {
	ctx, span := telemetry.StartSpan(ctx, "runlog.archive",
		attribute.String("archive.cutoff", cutoff.UTC().Format(time.RFC3339)),
		attribute.Bool("archive.upload", a.store != nil),
	)
	defer func() {
		span.SetAttributes(attribute.Int64("archive.pruned", pruned))
		telemetry.EndSpan(span, err)
	}()

	if a.store != nil {
		recs, err := a.src.Before(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		if len(recs) == 0 {
			return 0, nil
		}
		data, err := Encode(recs)
		if err != nil {
			return 0, fmt.Errorf("encode run log archive: %w", err)
		}
		key := Key(cutoff)
		span.SetAttributes(attribute.String("archive.key", key), attribute.Int("archive.records", len(recs)))
		if err := a.store.Put(ctx, key, data); err != nil {
			return 0, fmt.Errorf("upload %s: %w", key, err)
		}
		a.logger.Info().Str("key", key).Int("records", len(recs)).Msg("run log archived")
	}
	return a.src.Prune(ctx, cutoff)
}
