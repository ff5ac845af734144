/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package seed imports controller configuration from a YAML document.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/station"
)

// Store is the persistence the importer writes to.
type Store interface {
	LoadSettings(ctx context.Context) (controller.Settings, error)
	SaveSettings(ctx context.Context, s controller.Settings) error
	SaveStation(ctx context.Context, m models.StationConfig) error
	SaveProgram(ctx context.Context, m models.Program) error
}

// File is the document layout. Omitted settings keep their stored value.
type File struct {
	Settings Settings  `yaml:"settings"`
	Stations []Station `yaml:"stations"`
	Programs []Program `yaml:"programs"`
}

// Settings overrides controller options.
type Settings struct {
	Boards                 *int    `yaml:"boards"`
	Enabled                *bool   `yaml:"enabled"`
	StationDelay           *int    `yaml:"station_delay"`
	Master1                *int    `yaml:"master1"`
	Master1OnAdj           *int    `yaml:"master1_on_adj"`
	Master1OffAdj          *int    `yaml:"master1_off_adj"`
	Master2                *int    `yaml:"master2"`
	Master2OnAdj           *int    `yaml:"master2_on_adj"`
	Master2OffAdj          *int    `yaml:"master2_off_adj"`
	SensorType             *string `yaml:"sensor_type"`
	RainSensorNormallyOpen *bool   `yaml:"rain_sensor_normally_open"`
	WaterPercentage        *int    `yaml:"water_percentage"`
	RemoteExtension        *bool   `yaml:"remote_extension"`
	LoggingEnabled         *bool   `yaml:"logging_enabled"`
	PulseRate              *int    `yaml:"pulse_rate"`
	RemotePassword         *string `yaml:"remote_password"`
}

// Station is one station entry. ID is the 1-based station number.
type Station struct {
	ID             int    `yaml:"id"`
	Name           string `yaml:"name"`
	Sequential     *bool  `yaml:"sequential"`
	TriggerMaster1 *bool  `yaml:"trigger_master1"`
	TriggerMaster2 bool   `yaml:"trigger_master2"`
	IgnoreRain     bool   `yaml:"ignore_rain"`
	Disabled       bool   `yaml:"disabled"`
	Type           string `yaml:"type"`
	Data           string `yaml:"data"`
}

// Program is one program entry. Starts are "HH:MM" strings.
type Program struct {
	ID                int        `yaml:"id"`
	Name              string     `yaml:"name"`
	Enabled           *bool      `yaml:"enabled"`
	UseWeather        bool       `yaml:"use_weather"`
	Weekdays          string     `yaml:"weekdays"`
	IntervalDays      int        `yaml:"interval_days"`
	IntervalRemainder int        `yaml:"interval_remainder"`
	Restriction       string     `yaml:"restriction"`
	RRule             string     `yaml:"rrule"`
	DTStart           *time.Time `yaml:"dtstart"`
	Starts            []string   `yaml:"starts"`
	RepeatCount       int        `yaml:"repeat_count"`
	RepeatInterval    int        `yaml:"repeat_interval"`
	Durations         []uint32   `yaml:"durations"`
}

// Parse decodes a document. Unknown keys are rejected so typos surface.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	return &f, nil
}

// ParseFile reads and decodes path.
func ParseFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

// Result counts what an import wrote.
type Result struct {
	Settings bool
	Stations int
	Programs int
}

// Apply writes f to s. Settings are validated before anything is saved.
func Apply(ctx context.Context, s Store, f *File) (Result, error) {
	var res Result
	cur, err := s.LoadSettings(ctx)
	if err != nil {
		return res, err
	}
	next, changed, err := f.Settings.overlay(cur)
	if err != nil {
		return res, err
	}
	if changed {
		if err := next.Validate(); err != nil {
			return res, fmt.Errorf("settings: %w", err)
		}
		if err := s.SaveSettings(ctx, next); err != nil {
			return res, err
		}
		res.Settings = true
	}

	for _, st := range f.Stations {
		if err := s.SaveStation(ctx, st.model()); err != nil {
			return res, fmt.Errorf("station %d: %w", st.ID, err)
		}
		res.Stations++
	}
	for _, p := range f.Programs {
		m, err := p.model()
		if err != nil {
			return res, err
		}
		if err := s.SaveProgram(ctx, m); err != nil {
			return res, fmt.Errorf("program %d: %w", p.ID, err)
		}
		res.Programs++
	}
	return res, nil
}

func (o Settings) overlay(s controller.Settings) (controller.Settings, bool, error) {
	changed := false
	setInt := func(dst *int, v *int) {
		if v != nil {
			*dst = *v
			changed = true
		}
	}
	setBool := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
			changed = true
		}
	}
	setMaster := func(dst *station.OptionalID, v *int) {
		if v != nil {
			*dst = station.FromOneBased(*v)
			changed = true
		}
	}
	setInt(&s.Boards, o.Boards)
	setBool(&s.Enabled, o.Enabled)
	setInt(&s.StationDelay, o.StationDelay)
	setMaster(&s.Master1, o.Master1)
	setInt(&s.Master1OnAdj, o.Master1OnAdj)
	setInt(&s.Master1OffAdj, o.Master1OffAdj)
	setMaster(&s.Master2, o.Master2)
	setInt(&s.Master2OnAdj, o.Master2OnAdj)
	setInt(&s.Master2OffAdj, o.Master2OffAdj)
	setBool(&s.RainSensorNormallyOpen, o.RainSensorNormallyOpen)
	setInt(&s.WaterPercentage, o.WaterPercentage)
	setBool(&s.RemoteExtension, o.RemoteExtension)
	setBool(&s.LoggingEnabled, o.LoggingEnabled)
	setInt(&s.PulseRate, o.PulseRate)
	if o.SensorType != nil {
		st, err := controller.ParseSensorType(*o.SensorType)
		if err != nil {
			return s, false, err
		}
		s.SensorType = st
		changed = true
	}
	if o.RemotePassword != nil {
		s.RemotePassword = *o.RemotePassword
		changed = true
	}
	return s, changed, nil
}

func (st Station) model() models.StationConfig {
	m := models.StationConfig{
		ID:             st.ID,
		Name:           st.Name,
		Sequential:     true,
		TriggerMaster1: true,
		TriggerMaster2: st.TriggerMaster2,
		IgnoreRain:     st.IgnoreRain,
		Disabled:       st.Disabled,
		Type:           st.Type,
		SpecialData:    st.Data,
	}
	if st.Sequential != nil {
		m.Sequential = *st.Sequential
	}
	if st.TriggerMaster1 != nil {
		m.TriggerMaster1 = *st.TriggerMaster1
	}
	return m
}

func (p Program) model() (models.Program, error) {
	m := models.Program{
		ID:                p.ID,
		Name:              p.Name,
		Enabled:           true,
		UseWeather:        p.UseWeather,
		Weekdays:          p.Weekdays,
		IntervalDays:      p.IntervalDays,
		IntervalRemainder: p.IntervalRemainder,
		Restriction:       p.Restriction,
		RRule:             p.RRule,
		DTStart:           p.DTStart,
		RepeatCount:       p.RepeatCount,
		RepeatInterval:    p.RepeatInterval,
		Durations:         p.Durations,
	}
	if p.Enabled != nil {
		m.Enabled = *p.Enabled
	}
	for _, s := range p.Starts {
		minute, err := ParseClock(s)
		if err != nil {
			return m, fmt.Errorf("program %d: %w", p.ID, err)
		}
		m.StartMinutes = append(m.StartMinutes, minute)
	}
	return m, nil
}

// ParseClock converts "HH:MM" to minutes after midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("start time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("start time %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("start time %q: bad minute", s)
	}
	return h*60 + m, nil
}
