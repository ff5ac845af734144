/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the controller over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/audit"
	"github.com/friendsincode/openhome/internal/auth"
	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/logbuffer"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/station"
)

// DefaultTokenTTL is the lifetime of a login token.
const DefaultTokenTTL = 12 * time.Hour

// Controller is the part of the control loop the API drives.
type Controller interface {
	Snapshot() *controller.Snapshot
	RunProgram(ctx context.Context, pid program.ID, useWeather bool) error
	RunStation(ctx context.Context, sid station.ID, seconds int64) error
	StopStation(ctx context.Context, sid station.ID) error
	ResetAll(ctx context.Context) error
	ResetImmediate(ctx context.Context) error
	SetEnabled(ctx context.Context, on bool) error
	SetRainDelay(ctx context.Context, hours int) error
	SetWaterPercentage(ctx context.Context, pct int) error
	ApplySettings(ctx context.Context, s controller.Settings) error
}

// ConfigStore persists programs, stations and settings.
type ConfigStore interface {
	LoadSettings(ctx context.Context) (controller.Settings, error)
	Programs(ctx context.Context) ([]models.Program, error)
	SaveProgram(ctx context.Context, m models.Program) error
	DeleteProgram(ctx context.Context, id int) error
	Stations(ctx context.Context) ([]models.StationConfig, error)
	SaveStation(ctx context.Context, m models.StationConfig) error
}

// Config holds API credentials.
type Config struct {
	JWTSecret         []byte
	AdminPasswordHash string
	TokenTTL          time.Duration
}

// Deps are the services behind the handlers. Audit and LogBuffer may be
// nil.
type Deps struct {
	Controller Controller
	Store      ConfigStore
	RunLog     runlog.Reader
	Audit      *audit.Service
	Bus        *events.Bus
	LogBuffer  *logbuffer.Buffer
	// Reload pushes stored configuration into the running controller.
	Reload func(ctx context.Context) error
}

// API exposes HTTP handlers.
type API struct {
	cfg    Config
	deps   Deps
	logger zerolog.Logger
}

// New creates the API router wrapper.
func New(cfg Config, deps Deps, logger zerolog.Logger) *API {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if deps.Bus == nil {
		deps.Bus = events.NewBus()
	}
	return &API{cfg: cfg, deps: deps, logger: logger.With().Str("component", "api").Logger()}
}

// Routes mounts API routes on provided router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Post("/login", a.handleLogin)

		r.Group(func(pr chi.Router) {
			pr.Use(auth.Middleware(a.cfg.JWTSecret))

			pr.Get("/status", a.handleStatus)
			pr.Get("/queue", a.handleQueue)
			pr.Get("/ws", a.handleWebSocket)

			pr.Post("/reset", a.handleReset)
			pr.Post("/raindelay", a.handleRainDelay)
			pr.Post("/enable", a.handleEnable)
			pr.Post("/waterlevel", a.handleWaterLevel)
			pr.Post("/reload", a.handleReload)

			pr.Route("/programs", func(r chi.Router) {
				r.Get("/", a.handleProgramsList)
				r.Put("/{id}", a.handleProgramPut)
				r.Delete("/{id}", a.handleProgramDelete)
				r.Post("/{id}/run", a.handleProgramRun)
			})
			pr.Route("/stations", func(r chi.Router) {
				r.Get("/", a.handleStationsList)
				r.Put("/{sid}", a.handleStationPut)
				r.Post("/{sid}/run", a.handleStationRun)
				r.Post("/{sid}/stop", a.handleStationStop)
			})
			pr.Get("/settings", a.handleSettingsGet)
			pr.Put("/settings", a.handleSettingsPut)

			pr.Get("/logs", a.handleRunLogs)
			pr.Get("/system/logs", a.handleSystemLogs)
			pr.Get("/audit", a.handleAuditList)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := auth.CheckPassword(a.cfg.AdminPasswordHash, req.Password); err != nil {
		a.logger.Warn().Str("ip", clientIP(r)).Msg("failed login")
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}
	token, err := auth.Issue(a.cfg.JWTSecret, "admin", "admin", a.cfg.TokenTTL)
	if err != nil {
		a.logger.Error().Err(err).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(a.cfg.TokenTTL.Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// writeControllerError maps controller command errors to responses.
func (a *API) writeControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrNotRunning), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "controller_unavailable")
	case errors.Is(err, controller.ErrUnknownProgram):
		writeError(w, http.StatusNotFound, "program_not_found")
	case errors.Is(err, controller.ErrInvalidStation):
		writeError(w, http.StatusBadRequest, "invalid_station")
	case errors.Is(err, controller.ErrMasterStation):
		writeError(w, http.StatusConflict, "master_station")
	case errors.Is(err, controller.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration")
	case errors.Is(err, controller.ErrRainDelayRange):
		writeError(w, http.StatusBadRequest, "invalid_rain_delay")
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rejected", "details": err.Error()})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// publishAudit publishes an audit event with caller and request context.
func (a *API) publishAudit(r *http.Request, eventType events.EventType, data events.Payload) {
	payload := events.Payload{
		"subject":    auth.Subject(r),
		"ip_address": clientIP(r),
		"user_agent": r.UserAgent(),
	}
	for k, v := range data {
		payload[k] = v
	}
	a.deps.Bus.Publish(eventType, payload)
}
