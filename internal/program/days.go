/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package program

import (
	"fmt"
	"strings"
	"time"
)

// DayRule decides which calendar days a program may run on.
type DayRule interface {
	MatchesDay(t time.Time) bool
}

// Weekly runs on a fixed set of weekdays.
type Weekly struct {
	days [7]bool // indexed by time.Weekday
}

// NewWeekly builds a weekly rule from the given weekdays.
func NewWeekly(days ...time.Weekday) Weekly {
	var w Weekly
	for _, d := range days {
		w.days[d] = true
	}
	return w
}

// ParseWeekly accepts comma separated short day names, e.g. "mon,wed,fri".
func ParseWeekly(s string) (Weekly, error) {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
		"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
		"sat": time.Saturday,
	}
	var w Weekly
	for _, part := range strings.Split(s, ",") {
		key := strings.ToLower(strings.TrimSpace(part))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := names[key]
		if !ok {
			return Weekly{}, fmt.Errorf("unknown weekday %q", part)
		}
		w.days[d] = true
	}
	return w, nil
}

func (w Weekly) MatchesDay(t time.Time) bool { return w.days[t.Weekday()] }

// Interval runs every Every days, on days where the day number since the
// unix epoch modulo Every equals Remainder.
type Interval struct {
	Every     int
	Remainder int
}

func (iv Interval) MatchesDay(t time.Time) bool {
	if iv.Every <= 0 {
		return false
	}
	return epochDay(t)%iv.Every == iv.Remainder%iv.Every
}

// IntervalStartingOn returns an interval rule whose first run is on day.
func IntervalStartingOn(every int, day time.Time) Interval {
	if every <= 0 {
		return Interval{}
	}
	return Interval{Every: every, Remainder: epochDay(day) % every}
}

// epochDay counts local calendar days since 1970-01-01.
func epochDay(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

// Restriction limits a program to odd or even days of the month.
type Restriction uint8

const (
	NoRestriction Restriction = iota
	OddDays
	EvenDays
)

// ParseRestriction maps "", "odd" and "even".
func ParseRestriction(s string) (Restriction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoRestriction, nil
	case "odd":
		return OddDays, nil
	case "even":
		return EvenDays, nil
	}
	return 0, fmt.Errorf("unknown day restriction %q", s)
}

// Allows reports whether t's day passes the restriction. Odd days skip the
// 31st and February 29th so consecutive waterings never happen.
func (r Restriction) Allows(t time.Time) bool {
	d := t.Day()
	switch r {
	case OddDays:
		if d == 31 || (t.Month() == time.February && d == 29) {
			return false
		}
		return d%2 == 1
	case EvenDays:
		return d%2 == 0
	}
	return true
}

func (r Restriction) String() string {
	switch r {
	case OddDays:
		return "odd"
	case EvenDays:
		return "even"
	}
	return "none"
}
