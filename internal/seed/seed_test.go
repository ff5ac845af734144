package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/friendsincode/openhome/internal/controller"
	"github.com/friendsincode/openhome/internal/models"
	"github.com/friendsincode/openhome/internal/station"
)

type memStore struct {
	settings controller.Settings
	saved    bool
	stations []models.StationConfig
	programs []models.Program
}

func (m *memStore) LoadSettings(context.Context) (controller.Settings, error) { return m.settings, nil }

func (m *memStore) SaveSettings(_ context.Context, s controller.Settings) error {
	m.settings, m.saved = s, true
	return nil
}

func (m *memStore) SaveStation(_ context.Context, s models.StationConfig) error {
	m.stations = append(m.stations, s)
	return nil
}

func (m *memStore) SaveProgram(_ context.Context, p models.Program) error {
	m.programs = append(m.programs, p)
	return nil
}

const doc = `
settings:
  boards: 2
  station_delay: -5
  master1: 1
  sensor_type: rain
  water_percentage: 80
stations:
  - id: 1
    name: Pump
    sequential: false
  - id: 3
    name: Drip
    ignore_rain: true
    type: gpio
    data: "171"
programs:
  - id: 1
    name: Lawn
    weekdays: mon,thu
    starts: ["06:00", "19:30"]
    durations: [0, 600, 300]
    use_weather: true
`

func TestApply(t *testing.T) {
	f, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := &memStore{settings: controller.DefaultSettings()}
	res, err := Apply(context.Background(), s, f)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !res.Settings || res.Stations != 2 || res.Programs != 1 {
		t.Fatalf("result = %+v", res)
	}

	got := s.settings
	if got.Boards != 2 || got.StationDelay != -5 || got.WaterPercentage != 80 || got.SensorType != controller.SensorRain {
		t.Fatalf("settings = %+v", got)
	}
	if !got.Master1.Is(station.ID(0)) || !got.Enabled || !got.LoggingEnabled {
		t.Fatalf("settings lost defaults or master: %+v", got)
	}

	pump := s.stations[0]
	if pump.Sequential || !pump.TriggerMaster1 {
		t.Fatalf("pump = %+v", pump)
	}
	drip := s.stations[1]
	if !drip.Sequential || !drip.IgnoreRain || drip.Type != "gpio" || drip.SpecialData != "171" {
		t.Fatalf("drip = %+v", drip)
	}

	p := s.programs[0]
	if !p.Enabled || len(p.StartMinutes) != 2 || p.StartMinutes[0] != 360 || p.StartMinutes[1] != 1170 {
		t.Fatalf("program = %+v", p)
	}
}

func TestApplyRejectsInvalidSettings(t *testing.T) {
	f, err := Parse(strings.NewReader("settings:\n  water_percentage: 400\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	s := &memStore{settings: controller.DefaultSettings()}
	if _, err := Apply(context.Background(), s, f); err == nil {
		t.Fatal("expected validation error")
	}
	if s.saved {
		t.Fatal("invalid settings were saved")
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	if _, err := Parse(strings.NewReader("stations:\n  - id: 1\n    squential: true\n")); err == nil {
		t.Fatal("expected unknown field error")
	}
	f, err := Parse(strings.NewReader(""))
	if err != nil || len(f.Programs) != 0 {
		t.Fatalf("empty document = %+v, %v", f, err)
	}
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"6:05", 365, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseClock(tc.in)
			if (err != nil) != tc.wantErr || got != tc.want {
				t.Fatalf("ParseClock(%q) = %d, %v", tc.in, got, err)
			}
		})
	}
}
