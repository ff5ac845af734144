/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/station"
)

// ProgramFromModel converts a stored program. Day selection precedence is
// RRule, then IntervalDays, then Weekdays.
func ProgramFromModel(m models.Program) (program.Program, error) {
	if m.ID < 1 || m.ID >= int(program.ManualStation) {
		return program.Program{}, fmt.Errorf("program id %d out of range 1..%d", m.ID, int(program.ManualStation)-1)
	}
	p := program.Program{
		ID:         program.ID(m.ID),
		Name:       m.Name,
		Enabled:    m.Enabled,
		UseWeather: m.UseWeather,
		Starts: program.StartTimes{
			Minutes:  append([]int(nil), m.StartMinutes...),
			Repeat:   m.RepeatCount,
			Interval: m.RepeatInterval,
		},
	}
	for _, sm := range m.StartMinutes {
		if sm < 0 || sm >= 24*60 {
			return program.Program{}, fmt.Errorf("program %d: start minute %d out of range", m.ID, sm)
		}
	}

	r, err := program.ParseRestriction(m.Restriction)
	if err != nil {
		return program.Program{}, fmt.Errorf("program %d: %w", m.ID, err)
	}
	p.Restriction = r

	switch {
	case strings.TrimSpace(m.RRule) != "":
		dtstart := m.CreatedAt
		if m.DTStart != nil {
			dtstart = *m.DTStart
		}
		if dtstart.IsZero() {
			dtstart = time.Now()
		}
		rec, err := program.ParseRecurrence(m.RRule, dtstart)
		if err != nil {
			return program.Program{}, fmt.Errorf("program %d: %w", m.ID, err)
		}
		p.Recurrence = rec
	case m.IntervalDays > 0:
		p.Days = program.Interval{Every: m.IntervalDays, Remainder: m.IntervalRemainder}
	case strings.TrimSpace(m.Weekdays) == "":
		p.Days = program.Weekly{}
	default:
		w, err := program.ParseWeekly(m.Weekdays)
		if err != nil {
			return program.Program{}, fmt.Errorf("program %d: %w", m.ID, err)
		}
		p.Days = w
	}

	if len(m.Durations) > station.MaxStations {
		return program.Program{}, fmt.Errorf("program %d: %d durations for %d stations", m.ID, len(m.Durations), station.MaxStations)
	}
	copy(p.Durations[:], m.Durations)
	return p, nil
}

// AttributeSet converts the stored station flags.
func AttributeSet(m models.StationConfig) station.AttributeSet {
	var s station.AttributeSet
	if m.Sequential {
		s = s.With(station.Sequential)
	}
	if m.TriggerMaster1 {
		s = s.With(station.TriggerMaster1)
	}
	if m.TriggerMaster2 {
		s = s.With(station.TriggerMaster2)
	}
	if m.IgnoreRain {
		s = s.With(station.IgnoreRain)
	}
	if m.Disabled {
		s = s.With(station.Disabled)
	}
	if t, err := station.ParseType(m.Type); err == nil && t != station.TypeStandard {
		s = s.With(station.Special)
	}
	return s
}

// SettingsFromModel converts the settings row.
func SettingsFromModel(m models.ControllerSettings) (controller.Settings, error) {
	st, err := controller.ParseSensorType(m.SensorType)
	if err != nil {
		return controller.Settings{}, err
	}
	return controller.Settings{
		Boards:                 m.Boards,
		Enabled:                m.Enabled,
		StationDelay:           m.StationDelay,
		Master1:                station.FromOneBased(m.Master1),
		Master1OnAdj:           m.Master1OnAdj,
		Master1OffAdj:          m.Master1OffAdj,
		Master2:                station.FromOneBased(m.Master2),
		Master2OnAdj:           m.Master2OnAdj,
		Master2OffAdj:          m.Master2OffAdj,
		SensorType:             st,
		RainSensorNormallyOpen: m.RainSensorNormallyOpen,
		WaterPercentage:        m.WaterPercentage,
		RemoteExtension:        m.RemoteExtension,
		LoggingEnabled:         m.LoggingEnabled,
		PulseRate:              m.PulseRate,
		RainDelayUntil:         m.RainDelayUntil,
		RemotePassword:         m.RemotePassword,
	}, nil
}

// SettingsToModel is the inverse of SettingsFromModel for the singleton row.
func SettingsToModel(s controller.Settings) models.ControllerSettings {
	return models.ControllerSettings{
		ID:                     1,
		Boards:                 s.Boards,
		Enabled:                s.Enabled,
		StationDelay:           s.StationDelay,
		Master1:                s.Master1.OneBased(),
		Master1OnAdj:           s.Master1OnAdj,
		Master1OffAdj:          s.Master1OffAdj,
		Master2:                s.Master2.OneBased(),
		Master2OnAdj:           s.Master2OnAdj,
		Master2OffAdj:          s.Master2OffAdj,
		SensorType:             s.SensorType.String(),
		RainSensorNormallyOpen: s.RainSensorNormallyOpen,
		WaterPercentage:        s.WaterPercentage,
		RemoteExtension:        s.RemoteExtension,
		LoggingEnabled:         s.LoggingEnabled,
		PulseRate:              s.PulseRate,
		RainDelayUntil:         s.RainDelayUntil,
		RemotePassword:         s.RemotePassword,
	}
}
