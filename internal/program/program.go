/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package program describes watering programs and decides, minute by
// minute, which of them start.
package program

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/friendsincode/openhome/internal/station"
)

// ID identifies the origin of a run request. Stored programs use 1..98.
type ID uint8

const (
	// ManualStation marks a single station started by hand.
	ManualStation ID = 99
	// ManualProgram marks requests from a manual program start or test run.
	ManualProgram ID = 254
)

// IsScheduled reports whether id denotes an ordinary program run, the only
// kind interrupted by rain or a disabled controller.
func (id ID) IsScheduled() bool { return id > 0 && id < ManualStation }

func (id ID) String() string {
	switch id {
	case ManualStation:
		return "manual"
	case ManualProgram:
		return "manual-program"
	}
	return fmt.Sprintf("P%d", int(id))
}

// Program is a stored watering program. The scheduling core only reads it.
type Program struct {
	ID          ID
	Name        string
	Enabled     bool
	UseWeather  bool
	Days        DayRule
	Restriction Restriction
	Starts      StartTimes

	// Recurrence, when set, replaces Days and Starts: the program starts at
	// every occurrence of the rule.
	Recurrence *Recurrence

	// Durations holds the watering time in seconds for each station.
	// Zero means the station is not part of the program.
	Durations [station.MaxStations]uint32
}

// Duration returns the configured seconds for sid.
func (p *Program) Duration(sid station.ID) uint32 {
	if !sid.Valid() {
		return 0
	}
	return p.Durations[sid]
}

// Matches reports whether the program starts during the minute of t.
// t must already be in the controller's local timezone.
func (p *Program) Matches(t time.Time) bool {
	if !p.Enabled {
		return false
	}
	if !p.Restriction.Allows(t) {
		return false
	}
	if p.Recurrence != nil {
		return p.Recurrence.Matches(t)
	}
	if p.Days == nil || !p.Days.MatchesDay(t) {
		return false
	}
	return p.Starts.Contains(t.Hour()*60 + t.Minute())
}

// StartTimes lists the minutes of day a program starts at. Repeat adds
// Count further starts every Interval minutes after each listed start.
type StartTimes struct {
	Minutes  []int
	Repeat   int
	Interval int
}

// Contains reports whether minute (0..1439) is a start.
func (s StartTimes) Contains(minute int) bool {
	for _, m := range s.Minutes {
		if m == minute {
			return true
		}
		if s.Repeat > 0 && s.Interval > 0 && minute > m {
			d := minute - m
			if d%s.Interval == 0 && d/s.Interval <= s.Repeat {
				return true
			}
		}
	}
	return false
}

// Recurrence is an RFC 5545 rule anchored at a start time.
type Recurrence struct {
	rule *rrule.RRule
	text string
}

// ParseRecurrence parses an RRULE string anchored at dtstart. The
// occurrence time of day comes from dtstart unless the rule sets BYHOUR
// and BYMINUTE.
func ParseRecurrence(text string, dtstart time.Time) (*Recurrence, error) {
	r, err := rrule.StrToRRule(text)
	if err != nil {
		return nil, fmt.Errorf("parse rrule %q: %w", text, err)
	}
	r.DTStart(dtstart.Truncate(time.Minute))
	return &Recurrence{rule: r, text: text}, nil
}

// Matches reports whether an occurrence falls within the minute of t.
func (r *Recurrence) Matches(t time.Time) bool {
	start := t.Truncate(time.Minute)
	occ := r.rule.Between(start, start.Add(time.Minute-time.Nanosecond), true)
	return len(occ) > 0
}

func (r *Recurrence) String() string { return r.text }
