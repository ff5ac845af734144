/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists programs, stations and controller settings with
// gorm and converts them to the controller's types.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/station"
)

// ErrNotFound is returned for missing programs or stations.
var ErrNotFound = errors.New("not found")

// Store reads and writes controller configuration.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps db. Migrations must already have run.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "store").Logger()}
}

// LoadPrograms returns every stored program in id order. Programs that
// fail to convert are skipped and logged so one bad row cannot stop
// watering.
func (s *Store) LoadPrograms(ctx context.Context) ([]program.Program, error) {
	var rows []models.Program
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	out := make([]program.Program, 0, len(rows))
	for _, row := range rows {
		p, err := ProgramFromModel(row)
		if err != nil {
			s.logger.Error().Err(err).Int("program", row.ID).Msg("skipping invalid program")
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// LoadAttributes returns the attribute table. Stations without a row keep
// the factory defaults.
func (s *Store) LoadAttributes(ctx context.Context) (station.Attributes, error) {
	attrs := station.DefaultAttributes()
	rows, err := s.Stations(ctx)
	if err != nil {
		return attrs, err
	}
	for _, row := range rows {
		attrs.Put(station.ID(row.ID-1), AttributeSet(row))
	}
	return attrs, nil
}

// LoadSpecials parses the transport data of every non standard station.
// Rows with bad data are logged and left out.
func (s *Store) LoadSpecials(ctx context.Context) (map[station.ID]station.Kind, error) {
	rows, err := s.Stations(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[station.ID]station.Kind)
	for _, row := range rows {
		t, err := station.ParseType(row.Type)
		if err != nil {
			s.logger.Error().Err(err).Int("station", row.ID).Msg("unknown station type")
			continue
		}
		if t == station.TypeStandard {
			continue
		}
		k, err := station.ParseKind(t, row.SpecialData)
		if err != nil {
			s.logger.Error().Err(err).Int("station", row.ID).Msg("invalid special station data")
			continue
		}
		out[station.ID(row.ID-1)] = k
	}
	return out, nil
}

// LoadSettings returns the controller settings, creating the default row
// on first use.
func (s *Store) LoadSettings(ctx context.Context) (controller.Settings, error) {
	row, err := models.GetControllerSettings(s.db.WithContext(ctx))
	if err != nil {
		return controller.Settings{}, fmt.Errorf("load controller settings: %w", err)
	}
	return SettingsFromModel(*row)
}

// SaveSettings writes every settings column, including zero values.
func (s *Store) SaveSettings(ctx context.Context, settings controller.Settings) error {
	row := SettingsToModel(settings)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := models.GetControllerSettings(tx); err != nil {
			return err
		}
		return tx.Model(&models.ControllerSettings{ID: 1}).
			Select("*").Omit("id", "created_at").
			Updates(&row).Error
	})
}

// Programs lists the stored rows.
func (s *Store) Programs(ctx context.Context) ([]models.Program, error) {
	var rows []models.Program
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return rows, nil
}

// SaveProgram validates and upserts a program row.
func (s *Store) SaveProgram(ctx context.Context, m models.Program) error {
	if _, err := ProgramFromModel(m); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

// DeleteProgram removes a program.
func (s *Store) DeleteProgram(ctx context.Context, id int) error {
	res := s.db.WithContext(ctx).Delete(&models.Program{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("program %d: %w", id, ErrNotFound)
	}
	return nil
}

// Stations lists the stored station rows in station order.
func (s *Store) Stations(ctx context.Context) ([]models.StationConfig, error) {
	var rows []models.StationConfig
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	valid := rows[:0]
	for _, r := range rows {
		if r.ID >= 1 && r.ID <= station.MaxStations {
			valid = append(valid, r)
		}
	}
	return valid, nil
}

// SaveStation validates and upserts a station row.
func (s *Store) SaveStation(ctx context.Context, m models.StationConfig) error {
	if m.ID < 1 || m.ID > station.MaxStations {
		return fmt.Errorf("station %d out of range 1..%d", m.ID, station.MaxStations)
	}
	t, err := station.ParseType(m.Type)
	if err != nil {
		return err
	}
	if _, err := station.ParseKind(t, m.SpecialData); err != nil {
		return err
	}
	m.Type = t.String()
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}
