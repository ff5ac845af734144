/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/friendsincode/openhome/internal/models"
)

// GormStore persists records in the run_log table.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore wraps db.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Write(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	row := models.RunLogEntry{
		ID:       rec.ID.String(),
		Kind:     string(rec.Kind),
		Station:  rec.Station,
		Program:  rec.Program,
		Duration: rec.Duration,
		Value:    rec.Value,
		EndTime:  rec.EndTime.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert run log: %w", err)
	}
	return nil
}

// Since returns records that ended at or after since, oldest first,
// optionally restricted to kinds.
func (s *GormStore) Since(ctx context.Context, since time.Time, kinds ...Kind) ([]Record, error) {
	q := s.db.WithContext(ctx).Where("end_time >= ?", since.UTC()).Order("end_time ASC")
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		q = q.Where("kind IN ?", names)
	}
	return s.find(q)
}

// Before returns records that ended before cutoff, oldest first.
func (s *GormStore) Before(ctx context.Context, cutoff time.Time) ([]Record, error) {
	return s.find(s.db.WithContext(ctx).Where("end_time < ?", cutoff.UTC()).Order("end_time ASC"))
}

func (s *GormStore) find(q *gorm.DB) ([]Record, error) {
	var rows []models.RunLogEntry
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query run log: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		id, err := uuid.Parse(row.ID)
		if err != nil {
			id = uuid.Nil
		}
		out = append(out, Record{
			ID:       id,
			Kind:     Kind(row.Kind),
			Station:  row.Station,
			Program:  row.Program,
			Duration: row.Duration,
			Value:    row.Value,
			EndTime:  row.EndTime,
		})
	}
	return out, nil
}

// Prune deletes records that ended before cutoff.
func (s *GormStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("end_time < ?", cutoff.UTC()).Delete(&models.RunLogEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune run log: %w", res.Error)
	}
	return res.RowsAffected, nil
}
