/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"fmt"
	"strings"

	"github.com/friendsincode/openhome/internal/station"
)

// SensorType selects what the sensor input is wired to.
type SensorType uint8

const (
	SensorNone SensorType = iota
	SensorRain
	SensorFlow
)

func (s SensorType) String() string {
	switch s {
	case SensorRain:
		return "rain"
	case SensorFlow:
		return "flow"
	}
	return "none"
}

// ParseSensorType maps "none", "rain" and "flow".
func ParseSensorType(s string) (SensorType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SensorNone, nil
	case "rain":
		return SensorRain, nil
	case "flow":
		return SensorFlow, nil
	}
	return 0, fmt.Errorf("unknown sensor type %q", s)
}

// Settings are the persisted controller options.
type Settings struct {
	Boards       int
	Enabled      bool
	StationDelay int // seconds, may be negative

	Master1       station.OptionalID
	Master1OnAdj  int
	Master1OffAdj int
	Master2       station.OptionalID
	Master2OnAdj  int
	Master2OffAdj int

	SensorType             SensorType
	RainSensorNormallyOpen bool
	WaterPercentage        int
	RemoteExtension        bool
	LoggingEnabled         bool
	PulseRate              int
	RainDelayUntil         int64 // unix seconds, 0 = none
	RemotePassword         string
}

// DefaultSettings matches a factory reset controller.
func DefaultSettings() Settings {
	return Settings{
		Boards:          1,
		Enabled:         true,
		WaterPercentage: 100,
		LoggingEnabled:  true,
		PulseRate:       100,
	}
}

// Stations is the number of installed stations.
func (s Settings) Stations() int {
	b := s.Boards
	if b < 1 {
		b = 1
	}
	if b > station.MaxBoards {
		b = station.MaxBoards
	}
	return b * station.PerBoard
}

// IsMaster reports whether sid is configured as a master.
func (s Settings) IsMaster(sid station.ID) bool {
	return s.Master1.Is(sid) || s.Master2.Is(sid)
}

// Validate checks ranges that would otherwise corrupt scheduling.
func (s Settings) Validate() error {
	if s.Boards < 1 || s.Boards > station.MaxBoards {
		return fmt.Errorf("boards must be between 1 and %d", station.MaxBoards)
	}
	if s.WaterPercentage < 0 || s.WaterPercentage > 250 {
		return fmt.Errorf("water percentage must be between 0 and 250")
	}
	if s.StationDelay < -3600 || s.StationDelay > 3600 {
		return fmt.Errorf("station delay must be within one hour")
	}
	for _, m := range []station.OptionalID{s.Master1, s.Master2} {
		if id, ok := m.Get(); ok && int(id) >= s.Stations() {
			return fmt.Errorf("master station %s is not installed", id)
		}
	}
	if s.Master1.Set() && s.Master2.Set() && s.Master1 == s.Master2 {
		return fmt.Errorf("master 1 and master 2 must differ")
	}
	if s.PulseRate < 0 {
		return fmt.Errorf("pulse rate must not be negative")
	}
	return nil
}
