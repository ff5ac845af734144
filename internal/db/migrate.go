/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/openhome/internal/models"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.ControllerSettings{},
		&models.Program{},
		&models.StationConfig{},
		&models.RunLogEntry{},
		&models.AuditLog{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	if _, err := models.GetControllerSettings(database); err != nil {
		return fmt.Errorf("seed controller settings: %w", err)
	}
	return nil
}
