/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/store"
)

func (a *API) handleProgramsList(w http.ResponseWriter, r *http.Request) {
	rows, err := a.deps.Store.Programs(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list programs failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleProgramPut(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_program")
		return
	}
	var m models.Program
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	m.ID = id
	if _, err := store.ProgramFromModel(m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_program", "details": err.Error()})
		return
	}
	if err := a.deps.Store.SaveProgram(r.Context(), m); err != nil {
		a.logger.Error().Err(err).Int("program", id).Msg("save program failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	a.reloadAfterChange(w, r, m)
}

func (a *API) handleProgramDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_program")
		return
	}
	if err := a.deps.Store.DeleteProgram(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "program_not_found")
			return
		}
		a.logger.Error().Err(err).Int("program", id).Msg("delete program failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	a.reloadAfterChange(w, r, map[string]any{"deleted": id})
}

func (a *API) handleStationsList(w http.ResponseWriter, r *http.Request) {
	rows, err := a.deps.Store.Stations(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("list stations failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handleStationPut(w http.ResponseWriter, r *http.Request) {
	sid, ok := stationParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_station")
		return
	}
	var m models.StationConfig
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	m.ID = sid.Number()
	if err := a.deps.Store.SaveStation(r.Context(), m); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_station", "details": err.Error()})
		return
	}
	a.reloadAfterChange(w, r, m)
}

// reloadAfterChange pushes a stored change into the controller and
// answers with body.
func (a *API) reloadAfterChange(w http.ResponseWriter, r *http.Request, body any) {
	if err := a.reload(r); err != nil {
		a.logger.Error().Err(err).Msg("reload after change failed")
		writeError(w, http.StatusInternalServerError, "reload_failed")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (a *API) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s, err := a.deps.Store.LoadSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	m := store.SettingsToModel(s)
	m.RemotePassword = ""
	writeJSON(w, http.StatusOK, m)
}

func (a *API) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	cur, err := a.deps.Store.LoadSettings(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("load settings failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	// Start from the stored row so a partial body only changes what it names.
	m := store.SettingsToModel(cur)
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	next, err := store.SettingsFromModel(m)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_settings", "details": err.Error()})
		return
	}
	if err := next.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_settings", "details": err.Error()})
		return
	}
	if err := a.deps.Controller.ApplySettings(r.Context(), next); err != nil {
		a.writeControllerError(w, err)
		return
	}
	a.publishAudit(r, events.EventAuditSettingsChange, events.Payload{
		"boards":           next.Boards,
		"station_delay":    next.StationDelay,
		"sensor_type":      next.SensorType.String(),
		"water_percentage": next.WaterPercentage,
	})
	m = store.SettingsToModel(next)
	m.RemotePassword = ""
	writeJSON(w, http.StatusOK, m)
}
