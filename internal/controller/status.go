/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"time"

	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/station"
)

// Status is the live controller state. A copy from the previous tick is
// kept for edge detection.
type Status struct {
	Enabled      bool
	RainDelayed  bool
	RainSensed   bool
	ProgramBusy  bool
	SafeReboot   bool
	NetworkFails int
	Master1      station.OptionalID
	Master2      station.OptionalID
}

// QueueItem is the read-only view of a queued run.
type QueueItem struct {
	Station   int   `json:"station"`
	Program   int   `json:"program"`
	Start     int64 `json:"start"`
	Duration  int64 `json:"duration"`
	Remaining int64 `json:"remaining"`
	Selected  bool  `json:"selected"`
}

// Snapshot is published after every tick for readers outside the loop.
// It must not be mutated.
type Snapshot struct {
	Time            time.Time      `json:"time"`
	Enabled         bool           `json:"enabled"`
	RainDelayed     bool           `json:"rain_delayed"`
	RainDelayUntil  int64          `json:"rain_delay_until"`
	RainSensed      bool           `json:"rain_sensed"`
	ProgramBusy     bool           `json:"program_busy"`
	SafeReboot      bool           `json:"safe_reboot"`
	NetworkFails    int            `json:"network_fails"`
	Master1         int            `json:"master1"`
	Master2         int            `json:"master2"`
	Stations        int            `json:"stations"`
	On              []int          `json:"on"`
	Boards          []int          `json:"boards"`
	Queue           []QueueItem    `json:"queue"`
	LastRun         runlog.LastRun `json:"last_run"`
	WaterPercentage int            `json:"water_percentage"`
	SensorType      string         `json:"sensor_type"`
	FlowPulses      uint64         `json:"flow_pulses_window"`
	FlowRate        float64        `json:"flow_rate"`
}

// StationOn reports whether sid was on at the snapshot.
func (s *Snapshot) StationOn(sid int) bool {
	for _, id := range s.On {
		if id == sid {
			return true
		}
	}
	return false
}
