package audit

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/models"
)

func newTestService(t *testing.T) (*Service, *events.Bus) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	bus := events.NewBus()
	return NewService(db, bus, zerolog.Nop()), bus
}

func TestLogAndQuery(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	entries := []models.AuditLog{
		{Subject: "admin", Action: models.AuditActionProgramRun, Timestamp: base, Details: map[string]any{"program": 3}},
		{Subject: "admin", Action: models.AuditActionReset, Timestamp: base.Add(time.Minute)},
		{Subject: "mqtt", Action: models.AuditActionWaterLevelSet, Timestamp: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := s.Log(ctx, &entries[i]); err != nil {
			t.Fatalf("log: %v", err)
		}
		if entries[i].ID == "" {
			t.Fatal("id not assigned")
		}
	}

	cases := []struct {
		name string
		f    QueryFilters
		want []models.AuditAction
	}{
		{"all newest first", QueryFilters{}, []models.AuditAction{models.AuditActionWaterLevelSet, models.AuditActionReset, models.AuditActionProgramRun}},
		{"by subject", QueryFilters{Subject: "admin"}, []models.AuditAction{models.AuditActionReset, models.AuditActionProgramRun}},
		{"by action", QueryFilters{Action: models.AuditActionReset}, []models.AuditAction{models.AuditActionReset}},
		{"since", QueryFilters{StartTime: base.Add(90 * time.Second)}, []models.AuditAction{models.AuditActionWaterLevelSet}},
		{"limit", QueryFilters{Limit: 1}, []models.AuditAction{models.AuditActionWaterLevelSet}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.Query(ctx, tc.f)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("got %d entries, want %d", len(got), len(tc.want))
			}
			for i, a := range tc.want {
				if got[i].Action != a {
					t.Fatalf("entry %d action = %s, want %s", i, got[i].Action, a)
				}
			}
		})
	}
}

func TestStartStoresBusEvents(t *testing.T) {
	s, bus := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	// Subscriptions are registered asynchronously; publish until stored.
	deadline := time.After(2 * time.Second)
	for {
		bus.Publish(events.EventAuditRainDelay, events.Payload{"subject": "admin", "ip_address": "10.0.0.9", "hours": 12})
		logs, err := s.Query(context.Background(), QueryFilters{Action: models.AuditActionRainDelaySet})
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(logs) > 0 {
			got := logs[0]
			if got.Subject != "admin" || got.IPAddress != "10.0.0.9" {
				t.Fatalf("unexpected entry %+v", got)
			}
			if got.Details["hours"] != float64(12) {
				t.Fatalf("details = %v", got.Details)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("audit entry never stored")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestStationStopStoredAsStop(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	action, ok := actions[events.EventAuditStationStop]
	if !ok || action != models.AuditActionStationStop {
		t.Fatalf("station stop maps to %q", action)
	}
	s.logAuditEntry(ctx, action, events.Payload{"subject": "admin", "station": 3})
	logs, err := s.Query(ctx, QueryFilters{Action: models.AuditActionStationStop})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(logs) != 1 || logs[0].Details["station"] != float64(3) {
		t.Fatalf("logs = %+v", logs)
	}
}
