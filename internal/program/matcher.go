/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package program

import (
	"time"

	"github.com/friendsincode/openhome/internal/station"
)

// Scaling thresholds for weather adjusted durations: below MinPercentage a
// scaled run shorter than MinScaledSeconds is skipped entirely.
const (
	MinPercentage    = 20
	MinScaledSeconds = 10
)

// EffectiveDuration applies the water percentage to base. A zero result
// means the run is suppressed.
func EffectiveDuration(base uint32, useWeather bool, percentage int) uint32 {
	if !useWeather {
		return base
	}
	if percentage < 0 {
		percentage = 0
	}
	d := uint32(uint64(base) * uint64(percentage) / 100)
	if percentage < MinPercentage && d < MinScaledSeconds {
		return 0
	}
	return d
}

// Candidate is a run the matcher wants queued. Start time is assigned later.
type Candidate struct {
	Station  station.ID
	Program  ID
	Duration uint32
}

// Context carries the controller settings the matcher depends on.
type Context struct {
	Stations        int // number of stations installed
	WaterPercentage int
	Master1         station.OptionalID
	Master2         station.OptionalID
	Attributes      *station.Attributes
}

// IsMaster reports whether sid is one of the configured masters.
func (c Context) IsMaster(sid station.ID) bool {
	return c.Master1.Is(sid) || c.Master2.Is(sid)
}

// Matcher evaluates programs at most once per calendar minute.
type Matcher struct {
	lastMinute int64
	evaluated  bool
}

// Due reports whether now falls in a minute not yet evaluated, and marks it.
func (m *Matcher) Due(now time.Time) bool {
	minute := now.Unix() / 60
	if m.evaluated && minute == m.lastMinute {
		return false
	}
	m.lastMinute = minute
	m.evaluated = true
	return true
}

// Match returns the runs started by programs at now, in program order then
// station order. Masters and disabled stations are skipped, and so are runs
// whose weather scaled duration is zero.
func Match(programs []Program, now time.Time, c Context) []Candidate {
	var out []Candidate
	n := c.Stations
	if n <= 0 || n > station.MaxStations {
		n = station.MaxStations
	}
	for i := range programs {
		p := &programs[i]
		if !p.Matches(now) {
			continue
		}
		for sid := station.ID(0); int(sid) < n; sid++ {
			if c.IsMaster(sid) {
				continue
			}
			base := p.Duration(sid)
			if base == 0 {
				continue
			}
			if c.Attributes != nil && c.Attributes.Has(sid, station.Disabled) {
				continue
			}
			d := EffectiveDuration(base, p.UseWeather, c.WaterPercentage)
			if d == 0 {
				continue
			}
			out = append(out, Candidate{Station: sid, Program: p.ID, Duration: d})
		}
	}
	return out
}
