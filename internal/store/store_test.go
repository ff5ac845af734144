package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/db"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/station"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(gdb, zerolog.Nop())
}

func TestSettingsRoundTripKeepsZeroValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	def, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if !def.Enabled || def.WaterPercentage != 100 || def.Boards != 1 || !def.LoggingEnabled {
		t.Fatalf("unexpected defaults: %+v", def)
	}

	want := def
	want.Enabled = false
	want.LoggingEnabled = false
	want.WaterPercentage = 0
	want.StationDelay = -4
	want.Boards = 3
	want.Master1 = station.Some(7)
	want.Master1OffAdj = -30
	want.SensorType = controller.SensorFlow
	want.RainDelayUntil = 1_800_000_000
	if err := s.SaveSettings(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.LoadSettings(ctx)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

func TestProgramsLoadAndSkipInvalid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	good := models.Program{
		ID:           1,
		Name:         "Lawn",
		Enabled:      true,
		Weekdays:     "mon,thu",
		Restriction:  "odd",
		StartMinutes: []int{360, 1200},
		Durations:    []uint32{600, 0, 300},
	}
	if err := s.SaveProgram(ctx, good); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveProgram(ctx, models.Program{ID: 120}); err == nil {
		t.Fatal("expected id range error")
	}
	// Bypass validation to simulate a row written by an older version.
	if err := s.db.Create(&models.Program{ID: 2, Weekdays: "funday"}).Error; err != nil {
		t.Fatalf("insert raw: %v", err)
	}

	progs, err := s.LoadPrograms(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(progs) != 1 {
		t.Fatalf("loaded %d programs, want 1", len(progs))
	}
	p := progs[0]
	if p.ID != 1 || p.Restriction != program.OddDays || p.Duration(0) != 600 || p.Duration(2) != 300 || p.Duration(1) != 0 {
		t.Fatalf("unexpected program: %+v", p)
	}
	// 2026-06-01 is a Monday, the 1st is odd.
	if !p.Matches(time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)) {
		t.Fatal("program should match Monday 06:00 on an odd day")
	}

	good.Name = "Front lawn"
	if err := s.SaveProgram(ctx, good); err != nil {
		t.Fatalf("update: %v", err)
	}
	rows, _ := s.Programs(ctx)
	if len(rows) != 2 || rows[0].Name != "Front lawn" {
		t.Fatalf("rows = %+v", rows)
	}

	if err := s.DeleteProgram(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteProgram(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestProgramFromModelDayRules(t *testing.T) {
	dt := time.Date(2026, 6, 1, 5, 30, 0, 0, time.UTC)
	cases := []struct {
		name  string
		m     models.Program
		at    time.Time
		match bool
	}{
		{
			name:  "interval",
			m:     models.Program{ID: 3, Enabled: true, IntervalDays: 2, IntervalRemainder: 0, StartMinutes: []int{330}},
			at:    dt,
			match: (dt.Unix()/86400)%2 == 0,
		},
		{
			name:  "rrule",
			m:     models.Program{ID: 4, Enabled: true, RRule: "FREQ=DAILY;INTERVAL=1", DTStart: &dt},
			at:    dt.AddDate(0, 0, 3),
			match: true,
		},
		{
			name:  "no weekdays",
			m:     models.Program{ID: 5, Enabled: true, StartMinutes: []int{330}},
			at:    dt,
			match: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := ProgramFromModel(tc.m)
			if err != nil {
				t.Fatalf("convert: %v", err)
			}
			if got := p.Matches(tc.at); got != tc.match {
				t.Fatalf("Matches(%v) = %v, want %v", tc.at, got, tc.match)
			}
		})
	}

	if _, err := ProgramFromModel(models.Program{ID: 6, StartMinutes: []int{1440}}); err == nil {
		t.Fatal("expected start minute range error")
	}
}

func TestStationsAttributesAndSpecials(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveStation(ctx, models.StationConfig{ID: 2, Name: "Beds", IgnoreRain: true}); err != nil {
		t.Fatalf("save standard: %v", err)
	}
	if err := s.SaveStation(ctx, models.StationConfig{ID: 3, Name: "Pump", Type: "gpio", SpecialData: "171", Sequential: true}); err != nil {
		t.Fatalf("save gpio: %v", err)
	}
	if err := s.SaveStation(ctx, models.StationConfig{ID: 4, Type: "rf", SpecialData: "zz"}); err == nil {
		t.Fatal("expected invalid rf data error")
	}
	if err := s.SaveStation(ctx, models.StationConfig{ID: 99}); err == nil {
		t.Fatal("expected station range error")
	}

	attrs, err := s.LoadAttributes(ctx)
	if err != nil {
		t.Fatalf("attributes: %v", err)
	}
	if !attrs.Has(0, station.Sequential) || !attrs.Has(0, station.TriggerMaster1) {
		t.Fatal("station without a row lost its defaults")
	}
	if attrs.Has(1, station.Sequential) || !attrs.Has(1, station.IgnoreRain) {
		t.Fatalf("station 2 attributes = %s", attrs.Get(1))
	}
	if !attrs.Has(2, station.Special) || !attrs.Has(2, station.Sequential) {
		t.Fatalf("station 3 attributes = %s", attrs.Get(2))
	}

	specials, err := s.LoadSpecials(ctx)
	if err != nil {
		t.Fatalf("specials: %v", err)
	}
	if len(specials) != 1 {
		t.Fatalf("specials = %v", specials)
	}
	if k, ok := specials[2].(station.GPIOPin); !ok || k.Pin != 17 || !k.ActiveHigh {
		t.Fatalf("station 3 kind = %#v", specials[2])
	}
}
