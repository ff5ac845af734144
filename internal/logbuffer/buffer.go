/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package logbuffer keeps the most recent process log lines in memory so the
// API can show them without shell access to the controller.
package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is a single captured log line.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Component string         `json:"component,omitempty"`
	Station   *int           `json:"station,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Buffer is a thread-safe ring of log entries.
type Buffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	count   int
}

// New creates a buffer holding at most capacity entries.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Add appends an entry, overwriting the oldest when full.
func (b *Buffer) Add(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
	if b.count < len(b.entries) {
		b.count++
	}
}

// Len reports how many entries are held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Query filters captured entries.
type Query struct {
	Level     string
	Component string
	Station   *int
	Search    string
	Since     time.Time
	Limit     int
}

// Find returns entries matching q, oldest first. Limit keeps the newest.
func (b *Buffer) Find(q Query) []Entry {
	b.mu.RLock()
	all := make([]Entry, 0, b.count)
	start := 0
	if b.count == len(b.entries) {
		start = b.head
	}
	for i := 0; i < b.count; i++ {
		all = append(all, b.entries[(start+i)%len(b.entries)])
	}
	b.mu.RUnlock()

	search := strings.ToLower(q.Search)
	out := all[:0]
	for _, e := range all {
		if q.Level != "" && e.Level != q.Level {
			continue
		}
		if q.Component != "" && e.Component != q.Component {
			continue
		}
		if q.Station != nil && (e.Station == nil || *e.Station != *q.Station) {
			continue
		}
		if !q.Since.IsZero() && e.Timestamp.Before(q.Since) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Message), search) {
			continue
		}
		out = append(out, e)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[len(out)-q.Limit:]
	}
	return out
}

// Write implements io.Writer so the buffer can sit behind zerolog.
// Lines that are not JSON objects are ignored.
func (b *Buffer) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	e := Entry{Timestamp: time.Now(), Fields: make(map[string]any)}
	if v, ok := raw["level"].(string); ok {
		e.Level = v
		delete(raw, "level")
	}
	if v, ok := raw["message"].(string); ok {
		e.Message = v
		delete(raw, "message")
	}
	if v, ok := raw["component"].(string); ok {
		e.Component = v
		delete(raw, "component")
	}
	if v, ok := raw["station"].(float64); ok {
		sid := int(v)
		e.Station = &sid
		delete(raw, "station")
	}
	if v, ok := raw["time"].(float64); ok {
		e.Timestamp = time.Unix(int64(v), 0)
		delete(raw, "time")
	}
	for k, v := range raw {
		e.Fields[k] = v
	}
	b.Add(e)
	return len(p), nil
}
