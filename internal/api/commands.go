/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/station"
)

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, dst any) error {
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// stationParam parses the 1-based {sid} path parameter.
func stationParam(r *http.Request) (station.ID, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "sid"))
	if err != nil || n < 1 || n > station.MaxStations {
		return 0, false
	}
	return station.ID(n - 1), true
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := a.deps.Controller.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "controller_starting")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleQueue(w http.ResponseWriter, r *http.Request) {
	snap := a.deps.Controller.Snapshot()
	if snap == nil {
		writeError(w, http.StatusServiceUnavailable, "controller_starting")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queue": snap.Queue, "program_busy": snap.ProgramBusy})
}

func (a *API) handleProgramRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 || id > 255 {
		writeError(w, http.StatusBadRequest, "invalid_program")
		return
	}
	var req struct {
		UseWeather bool `json:"use_weather"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.deps.Controller.RunProgram(r.Context(), program.ID(id), req.UseWeather); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditProgramRun, events.Payload{"program": id, "use_weather": req.UseWeather})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "started", "program": id})
}

func (a *API) handleStationRun(w http.ResponseWriter, r *http.Request) {
	sid, ok := stationParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_station")
		return
	}
	var req struct {
		Seconds int64 `json:"seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.deps.Controller.RunStation(r.Context(), sid, req.Seconds); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditStationRun, events.Payload{"station": sid.Number(), "seconds": req.Seconds})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "queued", "station": sid.Number()})
}

func (a *API) handleStationStop(w http.ResponseWriter, r *http.Request) {
	sid, ok := stationParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_station")
		return
	}
	if err := a.deps.Controller.StopStation(r.Context(), sid); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditStationStop, events.Payload{"station": sid.Number()})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "stopping", "station": sid.Number()})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	immediate := r.URL.Query().Get("immediate") == "1"
	var err error
	if immediate {
		err = a.deps.Controller.ResetImmediate(r.Context())
	} else {
		err = a.deps.Controller.ResetAll(r.Context())
	}
	if err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditReset, events.Payload{"immediate": immediate})
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "reset", "immediate": immediate})
}

func (a *API) handleRainDelay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hours int `json:"hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := a.deps.Controller.SetRainDelay(r.Context(), req.Hours); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditRainDelay, events.Payload{"hours": req.Hours})
	writeJSON(w, http.StatusOK, map[string]any{"hours": req.Hours})
}

func (a *API) handleEnable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled_required")
		return
	}
	if err := a.deps.Controller.SetEnabled(r.Context(), *req.Enabled); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditEnable, events.Payload{"enabled": *req.Enabled})
	writeJSON(w, http.StatusOK, map[string]any{"enabled": *req.Enabled})
}

func (a *API) handleWaterLevel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Percentage *int `json:"percentage"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Percentage == nil {
		writeError(w, http.StatusBadRequest, "percentage_required")
		return
	}
	if err := a.deps.Controller.SetWaterPercentage(r.Context(), *req.Percentage); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditWaterLevel, events.Payload{"percentage": *req.Percentage})
	writeJSON(w, http.StatusOK, map[string]any{"percentage": *req.Percentage})
}

func (a *API) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := a.reload(r); err != nil {
		a.logger.Error().Err(err).Msg("reload failed")
		writeError(w, http.StatusInternalServerError, "reload_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (a *API) reload(r *http.Request) error {
	if a.deps.Reload == nil {
		return nil
	}
	if err := a.deps.Reload(r.Context()); err != nil {
		return err
	}
	a.publishAudit(r, events.EventAuditConfigReload, nil)
	return nil
}
