package controller

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/runqueue"
	"github.com/friendsincode/openhome/internal/station"
)

type fakeOutput struct {
	mu      sync.Mutex
	bits    station.Bitset
	enabled bool
	calls   int
}

func (f *fakeOutput) Apply(_ context.Context, bits station.Bitset, enabled bool, _ time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits = bits
	f.enabled = enabled
	f.calls++
}

func (f *fakeOutput) last() (station.Bitset, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bits, f.calls
}

type fakeLog struct {
	mu   sync.Mutex
	recs []runlog.Record
}

func (f *fakeLog) Write(_ context.Context, r runlog.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, r)
	return nil
}

func (f *fakeLog) kind(k runlog.Kind) []runlog.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []runlog.Record
	for _, r := range f.recs {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

type fakeEvents struct {
	mu   sync.Mutex
	seen []events.EventType
}

func (f *fakeEvents) Publish(t events.EventType, _ events.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, t)
}

func (f *fakeEvents) count(t events.EventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.seen {
		if s == t {
			n++
		}
	}
	return n
}

type fakeRain struct{ level bool }

func (f *fakeRain) Level() bool { return f.level }

type fakeWeather struct {
	pct int
	err error
}

func (f fakeWeather) WaterPercentage(context.Context) (int, error) { return f.pct, f.err }

type harness struct {
	c   *Controller
	out *fakeOutput
	log *fakeLog
	evt *fakeEvents
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	h := &harness{out: &fakeOutput{}, log: &fakeLog{}, evt: &fakeEvents{}}
	h.c = New(Options{QueueCapacity: capacity, Location: time.UTC}, Deps{
		Output: h.out,
		RunLog: h.log,
		Events: h.evt,
	}, zerolog.Nop())
	return h
}

func (h *harness) tick(ts ...int64) {
	for _, t := range ts {
		h.c.Tick(time.Unix(t, 0))
	}
}

func (h *harness) tickRange(from, to int64) {
	for t := from; t <= to; t++ {
		h.c.Tick(time.Unix(t, 0))
	}
}

func (h *harness) enqueue(t *testing.T, sid station.ID, pid program.ID, dur int64) {
	t.Helper()
	if !h.c.enqueue(runqueue.Request{Station: sid, Program: pid, Duration: dur}) {
		t.Fatalf("enqueue station %d failed", sid)
	}
}

func (h *harness) on(sid station.ID) bool { return h.c.bits.Get(sid) }

func startOf(t *testing.T, c *Controller, sid station.ID) int64 {
	t.Helper()
	e, ok := c.queue.SelectedRequest(sid)
	if !ok {
		t.Fatalf("station %d has no request", sid)
	}
	return e.Start
}

func TestSequentialRunEndToEnd(t *testing.T) {
	h := newHarness(t, 0)
	h.c.settings.StationDelay = 5

	h.enqueue(t, 0, 1, 10)
	h.enqueue(t, 1, 1, 20)
	h.c.scheduleAll(100)

	if got := startOf(t, h.c, 0); got != 101 {
		t.Fatalf("station 1 start = %d, want 101", got)
	}
	if got := startOf(t, h.c, 1); got != 116 {
		t.Fatalf("station 2 start = %d, want 116", got)
	}
	if !h.c.status.ProgramBusy {
		t.Fatal("program busy not set")
	}

	h.tick(100)
	if h.on(0) {
		t.Fatal("station 1 on before its window")
	}
	h.tickRange(101, 110)
	if !h.on(0) || h.on(1) {
		t.Fatalf("at 110 want only station 1 on, got %v", h.c.bits.On())
	}

	h.tick(111)
	if h.on(0) {
		t.Fatal("station 1 still on at 111")
	}
	logs := h.log.kind(runlog.KindStation)
	if len(logs) != 1 || logs[0].Station != 1 || logs[0].Duration != 10 || logs[0].Program != 1 {
		t.Fatalf("unexpected station log: %+v", logs)
	}
	if h.c.lastRun.Duration != 10 {
		t.Fatalf("last run = %+v", h.c.lastRun)
	}

	h.tickRange(112, 115)
	if h.on(1) {
		t.Fatal("station 2 on before 116")
	}
	h.tick(116)
	if !h.on(1) {
		t.Fatal("station 2 not on at 116")
	}

	h.tickRange(117, 136)
	if h.on(1) || !h.c.queue.Empty() || h.c.status.ProgramBusy {
		t.Fatalf("run did not finish: on=%v len=%d busy=%v", h.c.bits.On(), h.c.queue.Len(), h.c.status.ProgramBusy)
	}
	if h.evt.count(events.EventProgramIdle) != 1 || h.evt.count(events.EventStationOn) != 2 || h.evt.count(events.EventStationOff) != 2 {
		t.Fatalf("unexpected events: %v", h.evt.seen)
	}
	bits, _ := h.out.last()
	if bits.Any() {
		t.Fatalf("output still has %v on", bits.On())
	}
}

func TestConcurrentRunsStaggerBySecond(t *testing.T) {
	h := newHarness(t, 0)
	for sid := station.ID(0); sid < 3; sid++ {
		h.c.attrs.Put(sid, station.NewAttributeSet())
		h.enqueue(t, sid, 1, 30)
	}
	h.c.scheduleAll(200)
	for sid := station.ID(0); sid < 3; sid++ {
		if got, want := startOf(t, h.c, sid), int64(201)+int64(sid); got != want {
			t.Fatalf("station %d start = %d, want %d", sid, got, want)
		}
	}
}

func TestRemoteExtensionTreatsAllAsConcurrent(t *testing.T) {
	h := newHarness(t, 0)
	h.c.settings.RemoteExtension = true
	h.enqueue(t, 0, 1, 30)
	h.enqueue(t, 1, 1, 30)
	h.c.scheduleAll(50)
	if startOf(t, h.c, 0) != 51 || startOf(t, h.c, 1) != 52 {
		t.Fatalf("starts = %d, %d", startOf(t, h.c, 0), startOf(t, h.c, 1))
	}
}

func TestSequentialDelay(t *testing.T) {
	tests := []struct {
		name  string
		delay int
		want  int64
	}{
		{"positive", 5, 116},
		{"zero", 0, 111},
		{"negative overlap", -3, 108},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, 0)
			h.c.settings.StationDelay = tt.delay
			h.enqueue(t, 0, 1, 10)
			h.enqueue(t, 1, 1, 20)
			h.c.scheduleAll(100)
			a, b := startOf(t, h.c, 0), startOf(t, h.c, 1)
			if b != tt.want {
				t.Fatalf("second start = %d, want %d", b, tt.want)
			}
			if b < a+10+int64(tt.delay) {
				t.Fatalf("second start %d earlier than %d", b, a+10+int64(tt.delay))
			}
		})
	}
}

func TestSequentialChainsAfterEarlierBatch(t *testing.T) {
	h := newHarness(t, 0)
	h.c.settings.StationDelay = 5
	h.enqueue(t, 0, 1, 10)
	h.enqueue(t, 1, 1, 20)
	h.c.scheduleAll(100)
	h.tickRange(100, 105)

	h.enqueue(t, 2, 2, 30)
	h.c.scheduleAll(105)
	if got := startOf(t, h.c, 2); got != 141 {
		t.Fatalf("third start = %d, want 141", got)
	}
}

func TestQueueCapacityDropsOverflow(t *testing.T) {
	h := newHarness(t, 2)
	h.enqueue(t, 0, 1, 10)
	h.enqueue(t, 1, 1, 10)
	if h.c.enqueue(runqueue.Request{Station: 2, Program: 1, Duration: 10}) {
		t.Fatal("third enqueue accepted")
	}
	if h.c.queue.Len() != 2 {
		t.Fatalf("queue len = %d", h.c.queue.Len())
	}
	if h.evt.count(events.EventQueueOverflow) != 1 {
		t.Fatal("overflow not published")
	}
}

func TestSupersededRequestStillExpiresAndLogs(t *testing.T) {
	h := newHarness(t, 0)
	h.c.attrs.Put(0, station.NewAttributeSet())

	h.enqueue(t, 0, 1, 100)
	h.c.scheduleAll(100) // [101,201)
	h.tickRange(100, 150)

	h.enqueue(t, 0, program.ManualStation, 10)
	h.c.scheduleAll(150) // [151,161)
	if got := startOf(t, h.c, 0); got != 151 {
		t.Fatalf("selected start = %d, want 151", got)
	}

	h.tickRange(151, 161)
	logs := h.log.kind(runlog.KindStation)
	if len(logs) != 1 || logs[0].Duration != 10 || logs[0].Program != int(program.ManualStation) {
		t.Fatalf("logs at 161 = %+v", logs)
	}
	if !h.on(0) {
		t.Fatal("station switched off while the earlier run is still active")
	}

	h.tickRange(162, 201)
	logs = h.log.kind(runlog.KindStation)
	if len(logs) != 2 || logs[1].Duration != 100 {
		t.Fatalf("logs at 201 = %+v", logs)
	}
	if h.on(0) || !h.c.queue.Empty() {
		t.Fatal("station still running after both requests expired")
	}
}

func TestMasterFollowsAdjustedWindow(t *testing.T) {
	h := newHarness(t, 0)
	h.c.settings.Master1 = station.Some(7)
	h.c.settings.Master1OnAdj = 5
	h.c.settings.Master1OffAdj = 0

	h.enqueue(t, 0, 1, 120)
	h.c.scheduleAll(100) // [101,221)

	h.tick(101)
	if !h.on(0) || h.on(7) {
		t.Fatalf("at 101 on=%v", h.c.bits.On())
	}
	h.tickRange(102, 106)
	if !h.on(7) {
		t.Fatal("master not on at 106")
	}
	h.tickRange(107, 160)
	if !h.on(7) {
		t.Fatal("master not on at 160")
	}
	h.tick(161)
	if h.on(7) || !h.on(0) {
		t.Fatalf("at 161 want master off and station on, got %v", h.c.bits.On())
	}
	h.tickRange(162, 221)
	if len(h.log.kind(runlog.KindStation)) != 1 {
		t.Fatal("master must not be logged")
	}
}

func TestMasterIgnoresUnlinkedStations(t *testing.T) {
	h := newHarness(t, 0)
	h.c.settings.Master2 = station.Some(7)
	h.enqueue(t, 0, 1, 300)
	h.c.scheduleAll(100)
	h.tickRange(101, 110)
	if h.on(7) {
		t.Fatal("master 2 on without a linked station")
	}
	h.c.attrs.Put(0, station.NewAttributeSet(station.TriggerMaster2))
	h.tick(111)
	if !h.on(7) {
		t.Fatal("master 2 off with a linked station running")
	}
}

func TestRainDelayStopsScheduledRuns(t *testing.T) {
	h := newHarness(t, 0)
	h.c.attrs.Put(0, station.NewAttributeSet())
	h.c.attrs.Put(1, station.NewAttributeSet(station.IgnoreRain))
	h.c.attrs.Put(2, station.NewAttributeSet())
	h.enqueue(t, 0, 1, 600)
	h.enqueue(t, 1, 1, 600)
	h.enqueue(t, 2, program.ManualStation, 600)
	h.c.scheduleAll(100)
	h.tickRange(101, 110)
	if len(h.c.bits.On()) != 3 {
		t.Fatalf("on = %v", h.c.bits.On())
	}

	h.c.settings.RainDelayUntil = 200
	h.tick(111)
	if h.on(0) || !h.on(1) || !h.on(2) {
		t.Fatalf("after rain delay on = %v", h.c.bits.On())
	}
	if h.evt.count(events.EventRainDelayStart) != 1 {
		t.Fatal("rain delay start not published")
	}

	h.tickRange(112, 200)
	delays := h.log.kind(runlog.KindRainDelay)
	if len(delays) != 1 || delays[0].Duration != 89 {
		t.Fatalf("rain delay log = %+v", delays)
	}
	if h.c.settings.RainDelayUntil != 0 {
		t.Fatal("rain delay end time not cleared")
	}
}

func TestDisableStopsScheduledRunsIncludingIgnoreRain(t *testing.T) {
	h := newHarness(t, 0)
	h.c.attrs.Put(0, station.NewAttributeSet(station.IgnoreRain))
	h.c.attrs.Put(1, station.NewAttributeSet())
	h.enqueue(t, 0, 1, 600)
	h.enqueue(t, 1, program.ManualStation, 600)
	h.c.scheduleAll(100)
	h.tickRange(101, 105)

	h.c.settings.Enabled = false
	h.tick(106)
	if h.on(0) || !h.on(1) {
		t.Fatalf("on = %v", h.c.bits.On())
	}
	logs := h.log.kind(runlog.KindStation)
	if len(logs) != 1 || logs[0].Duration != 5 {
		t.Fatalf("logs = %+v", logs)
	}
	if h.out.enabled {
		t.Fatal("output told controller is enabled")
	}
}

func TestRainSensorEdges(t *testing.T) {
	rain := &fakeRain{}
	h := newHarness(t, 0)
	h.c.deps.Rain = rain
	h.c.settings.SensorType = SensorRain

	h.tick(100)
	rain.level = true
	h.tick(101)
	if !h.c.status.RainSensed {
		t.Fatal("rain not sensed")
	}
	rain.level = false
	h.tick(105)
	if len(h.log.kind(runlog.KindRainSense)) != 0 {
		t.Fatal("short activation logged")
	}

	rain.level = true
	h.tick(200)
	rain.level = false
	h.tick(260)
	logs := h.log.kind(runlog.KindRainSense)
	if len(logs) != 1 || logs[0].Duration != 60 {
		t.Fatalf("rain sense logs = %+v", logs)
	}
	if h.evt.count(events.EventRainSensorChange) != 4 {
		t.Fatalf("rain sensor changes = %d", h.evt.count(events.EventRainSensorChange))
	}
}

func TestRainSensorNormallyOpenInverts(t *testing.T) {
	h := newHarness(t, 0)
	h.c.deps.Rain = &fakeRain{level: true}
	h.c.settings.SensorType = SensorRain
	h.c.settings.RainSensorNormallyOpen = true
	h.tick(100)
	if h.c.status.RainSensed {
		t.Fatal("normally open contact at its rest level reported rain")
	}
}

func TestProgramMatchQueuesRuns(t *testing.T) {
	h := newHarness(t, 0)
	p := program.Program{
		ID:      3,
		Enabled: true,
		Days:    program.Interval{Every: 1},
		Starts:  program.StartTimes{Minutes: []int{6 * 60}},
	}
	p.Durations[0] = 30
	p.Durations[1] = 40
	h.c.programs = []program.Program{p}

	now := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	h.c.Tick(now)
	if h.c.queue.Len() != 2 || !h.c.status.ProgramBusy {
		t.Fatalf("queue len = %d busy = %v", h.c.queue.Len(), h.c.status.ProgramBusy)
	}
	if got := startOf(t, h.c, 0); got != now.Unix()+1 {
		t.Fatalf("start = %d", got)
	}

	// Same minute is not matched twice.
	h.c.Tick(now.Add(20 * time.Second))
	if h.c.queue.Len() != 2 {
		t.Fatalf("queue len after rematch = %d", h.c.queue.Len())
	}
}

func TestFlowRunLoggedWhenQueueEmpties(t *testing.T) {
	h := newHarness(t, 0)
	s := h.c.settings
	s.SensorType = SensorFlow
	h.c.applySettings(s)

	h.enqueue(t, 0, 1, 5)
	h.c.scheduleAll(100)
	base := time.Unix(101, 0)
	for i := 0; i < 3; i++ {
		h.c.deps.Flow.OnPulse(base.Add(time.Duration(i) * 100 * time.Millisecond))
	}
	h.tickRange(101, 106)

	flows := h.log.kind(runlog.KindFlowSense)
	if len(flows) != 1 || flows[0].Value != 3 || flows[0].Duration != 6 {
		t.Fatalf("flow logs = %+v", flows)
	}
}

func TestWeatherUpdatesWaterPercentage(t *testing.T) {
	h := newHarness(t, 0)
	h.c.deps.Weather = fakeWeather{pct: 60}

	h.tick(1000)
	deadline := time.After(2 * time.Second)
	for len(h.c.cmds) == 0 {
		select {
		case <-deadline:
			t.Fatal("weather result never posted")
		case <-time.After(time.Millisecond):
		}
	}
	h.tick(1001)
	if h.c.settings.WaterPercentage != 60 {
		t.Fatalf("water percentage = %d", h.c.settings.WaterPercentage)
	}
	if logs := h.log.kind(runlog.KindWaterLevel); len(logs) != 1 || logs[0].Value != 60 {
		t.Fatalf("water level logs = %+v", logs)
	}

	// Stale weather requests a safe reboot.
	h.tick(1001 + weatherStaleAfter + 1)
	if !h.c.status.SafeReboot {
		t.Fatal("safe reboot not requested")
	}
}

func TestWeatherSkippedWhileNetworkDown(t *testing.T) {
	h := newHarness(t, 0)
	h.c.deps.Weather = fakeWeather{err: errors.New("unreachable")}
	h.c.status.NetworkFails = 1
	h.tick(1000)
	if h.c.weatherInFlight || h.c.weatherLastCheck != 0 {
		t.Fatal("weather checked while network down")
	}
}

func TestManualProgram(t *testing.T) {
	h := newHarness(t, 0)
	h.c.settings.Master1 = station.Some(7)
	h.c.attrs.Put(3, station.NewAttributeSet(station.Disabled))

	if err := h.c.startManualProgram(100, TestAllStations, false); err != nil {
		t.Fatalf("test program: %v", err)
	}
	if h.c.queue.Len() != 6 {
		t.Fatalf("queue len = %d, want 6", h.c.queue.Len())
	}
	for _, e := range h.c.queue.Entries() {
		if e.Program != program.ManualProgram || e.Duration != testAllSeconds {
			t.Fatalf("unexpected entry %+v", e)
		}
	}

	p := program.Program{ID: 4, Enabled: true}
	p.Durations[0] = 100
	h.c.programs = []program.Program{p}
	h.c.settings.WaterPercentage = 50
	if err := h.c.startManualProgram(200, 4, true); err != nil {
		t.Fatalf("stored program: %v", err)
	}
	if h.c.queue.Len() != 1 || h.c.queue.Entries()[0].Duration != 50 {
		t.Fatalf("entries = %+v", h.c.queue.Entries())
	}
	if len(h.log.kind(runlog.KindStation)) != 0 {
		t.Fatal("restart logged the dropped runs")
	}

	// Manual runs scale plainly; the short low percentage cut-off applies
	// to scheduled starts only.
	p.Durations[0] = 40
	h.c.programs = []program.Program{p}
	h.c.settings.WaterPercentage = 15
	if err := h.c.startManualProgram(250, 4, true); err != nil {
		t.Fatalf("scaled program: %v", err)
	}
	if h.c.queue.Len() != 1 || h.c.queue.Entries()[0].Duration != 6 {
		t.Fatalf("entries at 15%% = %+v", h.c.queue.Entries())
	}

	if err := h.c.startManualProgram(300, 42, false); !errors.Is(err, ErrUnknownProgram) {
		t.Fatalf("err = %v, want ErrUnknownProgram", err)
	}
}

func TestResetAllLogsRunningStations(t *testing.T) {
	h := newHarness(t, 0)
	h.c.attrs.Put(0, station.NewAttributeSet())
	h.c.attrs.Put(1, station.NewAttributeSet())
	h.enqueue(t, 0, 1, 600)
	h.enqueue(t, 1, 1, 600)
	h.c.scheduleAll(100)
	h.tickRange(101, 120)

	h.c.queue.MarkAllForRemoval()
	h.tick(121)
	if h.c.bits.Any() || h.c.status.ProgramBusy {
		t.Fatal("stations still running after reset")
	}
	if n := len(h.log.kind(runlog.KindStation)); n != 2 {
		t.Fatalf("logged %d runs, want 2", n)
	}
}

func TestResetImmediateDoesNotLog(t *testing.T) {
	h := newHarness(t, 0)
	h.enqueue(t, 0, 1, 600)
	h.c.scheduleAll(100)
	h.tickRange(101, 120)
	h.c.resetImmediate()
	h.tick(121)
	if h.c.bits.Any() || !h.c.queue.Empty() {
		t.Fatal("reset left state behind")
	}
	if len(h.log.kind(runlog.KindStation)) != 0 {
		t.Fatal("immediate reset logged a run")
	}
}

func TestOutputAppliedOncePerTick(t *testing.T) {
	h := newHarness(t, 0)
	h.tickRange(10, 14)
	if _, calls := h.out.last(); calls != 5 {
		t.Fatalf("apply calls = %d, want 5", calls)
	}
}

func TestLoopCommands(t *testing.T) {
	out := &fakeOutput{}
	c := New(Options{PollInterval: 5 * time.Millisecond}, Deps{Output: out}, zerolog.Nop())

	ctx := context.Background()
	if err := c.RunStation(ctx, 0, 30); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err before Run = %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := c.Start(runCtx)

	cmdCtx, cmdCancel := context.WithTimeout(ctx, 5*time.Second)
	defer cmdCancel()
	if err := c.RunStation(cmdCtx, 0, 30); err != nil {
		t.Fatalf("run station: %v", err)
	}
	if err := c.RunStation(cmdCtx, 40, 30); !errors.Is(err, ErrInvalidStation) {
		t.Fatalf("err = %v, want ErrInvalidStation", err)
	}
	if err := c.RunStation(cmdCtx, 1, 0); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("err = %v, want ErrInvalidDuration", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if s := c.Snapshot(); s != nil && len(s.Queue) == 1 && s.ProgramBusy {
			break
		}
		select {
		case <-deadline:
			t.Fatal("snapshot never showed the queued run")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if bits, _ := out.last(); bits.Any() {
		t.Fatal("valves left open after shutdown")
	}
	if err := c.RunStation(ctx, 0, 30); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("err after stop = %v", err)
	}
	if err := c.Run(ctx); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second run = %v", err)
	}
}

func TestCommandRightAfterStart(t *testing.T) {
	for i := 0; i < 20; i++ {
		c := New(Options{PollInterval: 5 * time.Millisecond}, Deps{Output: &fakeOutput{}}, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		done := c.Start(ctx)
		cmdCtx, cmdCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.SetWaterPercentage(cmdCtx, 70); err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		cmdCancel()
		cancel()
		<-done
	}
}

// slowSaver blocks its first save so later saves would overtake it if they
// ran concurrently.
type slowSaver struct {
	mu    sync.Mutex
	calls int
	saved []Settings
}

func (s *slowSaver) SaveSettings(_ context.Context, st Settings) error {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		time.Sleep(300 * time.Millisecond)
	}
	s.mu.Lock()
	s.saved = append(s.saved, st)
	s.mu.Unlock()
	return nil
}

func TestSettingsPersistedInOrder(t *testing.T) {
	saver := &slowSaver{}
	c := New(Options{PollInterval: 5 * time.Millisecond}, Deps{Output: &fakeOutput{}, Settings: saver}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := c.Start(ctx)

	cmdCtx, cmdCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cmdCancel()
	if err := c.SetRainDelay(cmdCtx, 5); err != nil {
		t.Fatalf("set delay: %v", err)
	}
	// Give the saver time to start the slow first write.
	time.Sleep(50 * time.Millisecond)
	if err := c.SetRainDelay(cmdCtx, 0); err != nil {
		t.Fatalf("clear delay: %v", err)
	}
	cancel()
	<-done

	saver.mu.Lock()
	defer saver.mu.Unlock()
	if len(saver.saved) == 0 {
		t.Fatal("nothing persisted")
	}
	if last := saver.saved[len(saver.saved)-1]; last.RainDelayUntil != 0 {
		t.Fatalf("persisted RainDelayUntil = %d, want 0", last.RainDelayUntil)
	}
}

func TestRainDelayRange(t *testing.T) {
	c := New(Options{PollInterval: 5 * time.Millisecond}, Deps{Output: &fakeOutput{}}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := c.Start(ctx)
	defer func() {
		cancel()
		<-done
	}()

	cmdCtx, cmdCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cmdCancel()
	cases := []struct {
		hours   int
		wantErr bool
	}{
		{-1, true},
		{0, false},
		{MaxRainDelayHours, false},
		{MaxRainDelayHours + 1, true},
		{math.MaxInt, true},
	}
	for _, tc := range cases {
		err := c.SetRainDelay(cmdCtx, tc.hours)
		if tc.wantErr != errors.Is(err, ErrRainDelayRange) {
			t.Fatalf("SetRainDelay(%d) = %v", tc.hours, err)
		}
	}
}
