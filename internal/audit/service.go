/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit stores operator commands issued through the API.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/models"
)

// actions maps bus events to stored audit actions.
var actions = map[events.EventType]models.AuditAction{
	events.EventAuditProgramRun:     models.AuditActionProgramRun,
	events.EventAuditStationRun:     models.AuditActionStationRun,
	events.EventAuditStationStop:    models.AuditActionStationStop,
	events.EventAuditReset:          models.AuditActionReset,
	events.EventAuditRainDelay:      models.AuditActionRainDelaySet,
	events.EventAuditEnable:         models.AuditActionEnableChange,
	events.EventAuditWaterLevel:     models.AuditActionWaterLevelSet,
	events.EventAuditConfigReload:   models.AuditActionConfigReload,
	events.EventAuditSettingsChange: models.AuditActionSettingsChange,
}

// Service subscribes to audit events and stores them.
type Service struct {
	db     *gorm.DB
	bus    *events.Bus
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start consumes audit events until ctx is done.
func (s *Service) Start(ctx context.Context) {
	var wg sync.WaitGroup
	subs := make(map[events.EventType]events.Subscriber, len(actions))
	for evt, action := range actions {
		ch := s.bus.Subscribe(evt)
		subs[evt] = ch
		wg.Add(1)
		go func(action models.AuditAction, ch events.Subscriber) {
			defer wg.Done()
			for payload := range ch {
				s.logAuditEntry(ctx, action, payload)
			}
		}(action, ch)
	}
	s.logger.Info().Int("events", len(subs)).Msg("audit service started")

	<-ctx.Done()
	s.logger.Info().Msg("audit service stopping")
	for evt, ch := range subs {
		s.bus.Unsubscribe(evt, ch)
	}
	wg.Wait()
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		Action:  action,
		Details: make(map[string]any),
	}
	for k, v := range payload {
		switch k {
		case "subject":
			entry.Subject, _ = v.(string)
		case "ip_address":
			entry.IPAddress, _ = v.(string)
		default:
			entry.Details[k] = v
		}
	}
	if entry.Subject == "" {
		entry.Subject = "system"
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly.
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}
	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")
	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	Subject   string
	Action    models.AuditAction
	StartTime time.Time
	Limit     int
}

// Query returns matching entries, most recent first.
func (s *Service) Query(ctx context.Context, f QueryFilters) ([]models.AuditLog, error) {
	q := s.db.WithContext(ctx).Model(&models.AuditLog{})
	if f.Subject != "" {
		q = q.Where("subject = ?", f.Subject)
	}
	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if !f.StartTime.IsZero() {
		q = q.Where("timestamp >= ?", f.StartTime)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var logs []models.AuditLog
	if err := q.Order("timestamp DESC").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
