/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// Program is a stored watering program.
type Program struct {
	ID         int    `gorm:"primaryKey;autoIncrement:false" json:"id"` // 1..98
	Name       string `gorm:"type:varchar(64)" json:"name"`
	Enabled    bool   `json:"enabled"`
	UseWeather bool   `json:"use_weather"`

	// Day selection. Weekdays ("mon,wed,fri") or IntervalDays > 0, or RRule.
	Weekdays          string     `gorm:"type:varchar(32)" json:"weekdays"`
	IntervalDays      int        `json:"interval_days"`
	IntervalRemainder int        `json:"interval_remainder"`
	Restriction       string     `gorm:"type:varchar(8);default:'none'" json:"restriction"` // none, odd, even
	RRule             string     `gorm:"type:text" json:"rrule"`
	DTStart           *time.Time `json:"dtstart"`

	StartMinutes   []int `gorm:"serializer:json" json:"start_minutes"`
	RepeatCount    int   `json:"repeat_count"`
	RepeatInterval int   `json:"repeat_interval"` // minutes

	// Durations in seconds indexed by zero-based station id.
	Durations []uint32 `gorm:"serializer:json" json:"durations"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (Program) TableName() string {
	return "programs"
}

// StationConfig holds the name, attributes and transport of one station.
type StationConfig struct {
	ID             int       `gorm:"primaryKey;autoIncrement:false" json:"id"`        // 1-based station number
	Name           string    `gorm:"type:varchar(24)" json:"name"`
	Sequential     bool      `json:"sequential"`
	TriggerMaster1 bool      `json:"trigger_master1"`
	TriggerMaster2 bool      `json:"trigger_master2"`
	IgnoreRain     bool      `json:"ignore_rain"`
	Disabled       bool      `json:"disabled"`
	Type           string    `gorm:"type:varchar(16);default:'standard'" json:"type"`
	SpecialData    string    `gorm:"type:varchar(120)" json:"special_data"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (StationConfig) TableName() string {
	return "stations"
}

// RunLogEntry is a persisted run log record.
type RunLogEntry struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	Kind      string    `gorm:"type:varchar(16);index:idx_runlog_kind"`
	Station   int       `gorm:"index:idx_runlog_station"`
	Program   int
	Duration  int64
	Value     float64
	EndTime   time.Time `gorm:"index:idx_runlog_end;not null"`
	CreatedAt time.Time
}

// TableName returns the table name for GORM.
func (RunLogEntry) TableName() string {
	return "run_log"
}
