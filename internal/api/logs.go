/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/openhome/internal/audit"
	"github.com/friendsincode/openhome/internal/logbuffer"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/runlog"
)

// parseSince accepts RFC 3339 or unix seconds, defaulting to def ago.
func parseSince(v string, def time.Duration) time.Time {
	if v == "" {
		return time.Now().Add(-def)
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(n, 0)
	}
	return time.Now().Add(-def)
}

func parseLimit(v string, def int) int {
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return n
	}
	return def
}

func (a *API) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	if a.deps.RunLog == nil {
		writeError(w, http.StatusServiceUnavailable, "run_log_unavailable")
		return
	}
	q := r.URL.Query()
	since := parseSince(q.Get("since"), 24*time.Hour)
	var kinds []runlog.Kind
	for _, k := range q["kind"] {
		kinds = append(kinds, runlog.Kind(k))
	}
	recs, err := a.deps.RunLog.Since(r.Context(), since, kinds...)
	if err != nil {
		a.logger.Error().Err(err).Msg("query run log failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since.UTC(), "records": recs})
}

func (a *API) handleSystemLogs(w http.ResponseWriter, r *http.Request) {
	if a.deps.LogBuffer == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_unavailable")
		return
	}
	q := r.URL.Query()
	query := logbuffer.Query{
		Level:     q.Get("level"),
		Component: q.Get("component"),
		Search:    q.Get("search"),
		Limit:     parseLimit(q.Get("limit"), 500),
	}
	if v := q.Get("since"); v != "" {
		query.Since = parseSince(v, 0)
	}
	if v := q.Get("station"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			sid := n - 1
			query.Station = &sid
		}
	}
	entries := a.deps.LogBuffer.Find(query)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if a.deps.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "audit_unavailable")
		return
	}
	q := r.URL.Query()
	filters := audit.QueryFilters{
		Subject: q.Get("subject"),
		Action:  models.AuditAction(q.Get("action")),
		Limit:   parseLimit(q.Get("limit"), 100),
	}
	if v := q.Get("since"); v != "" {
		filters.StartTime = parseSince(v, 0)
	}
	logs, err := a.deps.Audit.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit logs")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs, "count": len(logs)})
}
