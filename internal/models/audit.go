/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for operator commands.
const (
	AuditActionProgramRun     AuditAction = "program.run"
	AuditActionStationRun     AuditAction = "station.run"
	AuditActionStationStop    AuditAction = "station.stop"
	AuditActionReset          AuditAction = "controller.reset"
	AuditActionRainDelaySet   AuditAction = "raindelay.set"
	AuditActionEnableChange   AuditAction = "controller.enable"
	AuditActionWaterLevelSet  AuditAction = "waterlevel.set"
	AuditActionConfigReload   AuditAction = "config.reload"
	AuditActionSettingsChange AuditAction = "settings.change"
)

// AuditLog records operator actions against the controller.
type AuditLog struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	Subject   string         `gorm:"type:varchar(64);index:idx_audit_subject" json:"subject"` // token subject, "system" for internal actions
	Action    AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	Details   map[string]any `gorm:"serializer:json" json:"details,omitempty"`
	IPAddress string         `gorm:"type:varchar(45)" json:"ip_address,omitempty"`
	CreatedAt time.Time      `json:"-"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
