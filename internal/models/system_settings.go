/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// ControllerSettings stores the runtime options of the controller.
// Uses singleton pattern with a fixed ID=1 row.
type ControllerSettings struct {
	ID      int  `gorm:"primaryKey" json:"id"`
	Boards  int  `gorm:"default:1" json:"boards"`
	Enabled bool `gorm:"default:true" json:"enabled"`

	StationDelay int `json:"station_delay"` // seconds between sequential stations, may be negative

	Master1       int `json:"master1"`         // 1-based station, 0 = none
	Master1OnAdj  int `json:"master1_on_adj"`
	Master1OffAdj int `json:"master1_off_adj"`
	Master2       int `json:"master2"`
	Master2OnAdj  int `json:"master2_on_adj"`
	Master2OffAdj int `json:"master2_off_adj"`

	SensorType             string `gorm:"type:varchar(8);default:'none'" json:"sensor_type"`
	RainSensorNormallyOpen bool   `json:"rain_sensor_normally_open"`
	WaterPercentage        int    `gorm:"default:100" json:"water_percentage"`
	RemoteExtension        bool   `json:"remote_extension"`                                  // every run is concurrent, weather checks are skipped
	LoggingEnabled         bool   `gorm:"default:true" json:"logging_enabled"`
	PulseRate              int    `gorm:"default:100" json:"pulse_rate"`                     // hundredths of a unit per pulse
	RainDelayUntil         int64  `json:"rain_delay_until"`
	RemotePassword         string `gorm:"type:varchar(36)" json:"remote_password,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for GORM.
func (ControllerSettings) TableName() string {
	return "controller_settings"
}

// ValidSensorTypes contains the allowed values for the sensor type.
var ValidSensorTypes = []string{"none", "rain", "flow"}

// IsValidSensorType checks if a value is a valid sensor type.
func IsValidSensorType(val string) bool {
	for _, v := range ValidSensorTypes {
		if v == val {
			return true
		}
	}
	return false
}

// GetControllerSettings retrieves the singleton settings row, creating it if it doesn't exist.
func GetControllerSettings(db *gorm.DB) (*ControllerSettings, error) {
	var settings ControllerSettings
	result := db.FirstOrCreate(&settings, ControllerSettings{ID: 1})
	if result.Error != nil {
		return nil, result.Error
	}
	return &settings, nil
}
