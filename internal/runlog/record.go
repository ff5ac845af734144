/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package runlog records completed station runs and sensor events.
package runlog

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a log record.
type Kind string

const (
	KindStation    Kind = "station"
	KindRainSense  Kind = "rain_sense"
	KindRainDelay  Kind = "rain_delay"
	KindWaterLevel Kind = "water_level"
	KindFlowSense  Kind = "flow_sense"
)

// Record is one log line. Station and Program are only meaningful for
// KindStation. Duration is the run or event length in seconds. Value holds
// the water percentage for KindWaterLevel and the pulse count for
// KindFlowSense.
type Record struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	Station  int       `json:"station"`
	Program  int       `json:"program"`
	Duration int64     `json:"duration"`
	Value    float64   `json:"value"`
	EndTime  time.Time `json:"end_time"`
}

// LastRun describes the most recently terminated station run.
type LastRun struct {
	Station  int       `json:"station"`
	Program  int       `json:"program"`
	Duration int64     `json:"duration"`
	EndTime  time.Time `json:"end_time"`
}

// Record converts the last run into a station log record.
func (l LastRun) Record() Record {
	return Record{
		ID:       uuid.New(),
		Kind:     KindStation,
		Station:  l.Station,
		Program:  l.Program,
		Duration: l.Duration,
		EndTime:  l.EndTime,
	}
}

// Writer persists records.
type Writer interface {
	Write(ctx context.Context, rec Record) error
}

// Reader lists persisted records.
type Reader interface {
	Since(ctx context.Context, since time.Time, kinds ...Kind) ([]Record, error)
}
