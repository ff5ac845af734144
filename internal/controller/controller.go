/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package controller runs the irrigation control loop. A single goroutine
// owns the run queue, the controller status and the output bitset; every
// other goroutine talks to it through commands and reads published
// snapshots.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/flow"
	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/runqueue"
	"github.com/friendsincode/openhome/internal/station"
	"github.com/friendsincode/openhome/internal/telemetry"
)

// ExternalTimeout bounds every call the loop starts on another goroutine.
const ExternalTimeout = 5 * time.Second

var (
	ErrUnknownProgram  = errors.New("unknown program")
	ErrInvalidStation  = errors.New("station not installed")
	ErrMasterStation   = errors.New("master stations cannot be run directly")
	ErrInvalidDuration = errors.New("duration must be positive")
	ErrNotRunning      = errors.New("controller loop not running")
	ErrAlreadyStarted  = errors.New("controller loop already started")
	ErrRainDelayRange  = errors.New("rain delay out of range")
)

// Clock supplies wall time. Only whole seconds are used.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Output drives the valves. Apply is called once per tick with the full
// desired state and must not block for long.
type Output interface {
	Apply(ctx context.Context, bits station.Bitset, enabled bool, now time.Time)
}

// Publisher receives controller events.
type Publisher interface {
	Publish(eventType events.EventType, payload events.Payload)
}

// RainSensor reports the raw level of the rain sensor contact.
type RainSensor interface {
	Level() bool
}

// WeatherSource fetches the weather adjusted water percentage.
type WeatherSource interface {
	WaterPercentage(ctx context.Context) (int, error)
}

// SettingsSaver persists settings changed by the loop.
type SettingsSaver interface {
	SaveSettings(ctx context.Context, s Settings) error
}

// Loader reads programs, station attributes and settings from storage.
type Loader interface {
	LoadPrograms(ctx context.Context) ([]program.Program, error)
	LoadAttributes(ctx context.Context) (station.Attributes, error)
	LoadSettings(ctx context.Context) (Settings, error)
}

// Options tunes the loop.
type Options struct {
	QueueCapacity   int
	PollInterval    time.Duration // how often the clock is checked for a new second
	WeatherInterval time.Duration
	Location        *time.Location
}

// Deps are the collaborators of the controller. Only Output is required.
type Deps struct {
	Clock    Clock
	Output   Output
	RunLog   runlog.Writer
	Events   Publisher
	Flow     *flow.Tracker
	Rain     RainSensor
	Weather  WeatherSource
	Settings SettingsSaver
	Loader   Loader
}

type command struct {
	fn   func(now int64) error
	done chan error
}

// Controller is the irrigation control loop.
type Controller struct {
	opts   Options
	deps   Deps
	logger zerolog.Logger

	queue    *runqueue.Queue
	matcher  program.Matcher
	programs []program.Program
	attrs    station.Attributes
	settings Settings

	status     Status
	prevStatus Status
	bits       station.Bitset
	applied    station.Bitset
	lastTick   int64

	lastSeqStop     int64
	lastRun         runlog.LastRun
	rainDelayStart  int64
	rainSensedSince int64

	weatherLastCheck   int64
	weatherLastSuccess int64
	weatherInFlight    bool

	baseCtx context.Context
	cmds    chan command
	saves   chan Settings
	running atomic.Bool
	started atomic.Bool
	stopped chan struct{}
	snap    atomic.Pointer[Snapshot]
}

// New builds a controller with default settings and no programs. Call
// Reload or Load before Run to pull state from storage.
func New(opts Options, deps Deps, logger zerolog.Logger) *Controller {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = station.MaxStations
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}
	if opts.WeatherInterval <= 0 {
		opts.WeatherInterval = time.Hour
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Flow == nil {
		deps.Flow = flow.NewTracker()
	}
	c := &Controller{
		opts:     opts,
		deps:     deps,
		logger:   logger.With().Str("component", "controller").Logger(),
		queue:    runqueue.New(opts.QueueCapacity),
		attrs:    station.DefaultAttributes(),
		settings: DefaultSettings(),
		baseCtx:  context.Background(),
		cmds:     make(chan command, 32),
		saves:    make(chan Settings, 1),
		stopped:  make(chan struct{}),
	}
	c.applySettings(c.settings)
	c.publishSnapshot(deps.Clock.Now())
	return c
}

// Load reads programs, attributes and settings through the loader. It must
// be called before Run; afterwards use Reload.
func (c *Controller) Load(ctx context.Context) error {
	if c.deps.Loader == nil {
		return nil
	}
	progs, attrs, settings, err := c.load(ctx)
	if err != nil {
		return err
	}
	c.programs = progs
	c.attrs = attrs
	c.applySettings(settings)
	c.publishSnapshot(c.deps.Clock.Now())
	return nil
}

func (c *Controller) load(ctx context.Context) ([]program.Program, station.Attributes, Settings, error) {
	progs, err := c.deps.Loader.LoadPrograms(ctx)
	if err != nil {
		return nil, station.Attributes{}, Settings{}, fmt.Errorf("load programs: %w", err)
	}
	attrs, err := c.deps.Loader.LoadAttributes(ctx)
	if err != nil {
		return nil, station.Attributes{}, Settings{}, fmt.Errorf("load station attributes: %w", err)
	}
	settings, err := c.deps.Loader.LoadSettings(ctx)
	if err != nil {
		return nil, station.Attributes{}, Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return progs, attrs, settings, nil
}

// Start marks the loop running and runs it on a new goroutine. Commands
// issued once Start returns are queued for the loop. The channel yields the
// result of Run.
func (c *Controller) Start(ctx context.Context) <-chan error {
	c.running.Store(true)
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()
	return errc
}

// Run ticks the loop until ctx is done. Every valve is closed and pending
// settings are persisted on return. A controller runs once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	c.baseCtx = ctx
	c.running.Store(true)

	saverDone := make(chan struct{})
	go func() {
		defer close(saverDone)
		c.runSaver()
	}()
	defer func() {
		c.running.Store(false)
		close(c.saves)
		<-saverDone
		close(c.stopped)
	}()

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.logger.Info().
		Int("queue_capacity", c.queue.Cap()).
		Int("stations", c.settings.Stations()).
		Msg("control loop started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case cmd := <-c.cmds:
			c.exec(cmd, c.deps.Clock.Now().Unix())
		case <-ticker.C:
			now := c.deps.Clock.Now()
			if now.Unix() == c.lastTick {
				continue
			}
			c.Tick(now)
		}
	}
}

func (c *Controller) shutdown() {
	c.resetImmediate()
	ctx, cancel := context.WithTimeout(context.Background(), ExternalTimeout)
	defer cancel()
	c.deps.Output.Apply(ctx, c.bits, c.status.Enabled, c.deps.Clock.Now())
	c.applied = c.bits
	c.logger.Info().Msg("control loop stopped, all stations off")
}

// Tick advances the controller to now. Run calls it once per second; tests
// call it directly.
func (c *Controller) Tick(now time.Time) {
	start := time.Now()
	t := now.Unix()
	c.lastTick = t

	c.drainCommands(t)

	c.status.Enabled = c.settings.Enabled
	c.status.Master1 = c.settings.Master1
	c.status.Master2 = c.settings.Master2

	c.updateRainDelay(t)
	c.updateRainSensor(t)

	c.processDynamicEvents(t)

	if c.matcher.Due(now) {
		c.matchPrograms(now)
	}

	if c.status.ProgramBusy {
		c.runStations(t)
		c.processDynamicEvents(t)
		c.finishIfIdle(t)
	}

	c.syncMasters(t)
	c.applyOutputs(now)
	c.sampleFlow(now)
	c.checkWeather(t)
	c.publishSnapshot(now)

	telemetry.TickDuration.Observe(time.Since(start).Seconds())
}

func (c *Controller) drainCommands(now int64) {
	for {
		select {
		case cmd := <-c.cmds:
			c.exec(cmd, now)
		default:
			return
		}
	}
}

func (c *Controller) exec(cmd command, now int64) {
	err := cmd.fn(now)
	if cmd.done != nil {
		cmd.done <- err
	}
}

// do runs fn on the loop and waits for its result.
func (c *Controller) do(ctx context.Context, fn func(now int64) error) error {
	if !c.running.Load() {
		return ErrNotRunning
	}
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case c.cmds <- cmd:
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-c.stopped:
		select {
		case err := <-cmd.done:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post queues fn without waiting. Used by goroutines the loop started.
func (c *Controller) post(fn func(now int64) error) {
	select {
	case c.cmds <- command{fn: fn}:
	case <-c.baseCtx.Done():
	}
}

func (c *Controller) matchPrograms(now time.Time) {
	local := now.In(c.opts.Location)
	cands := program.Match(c.programs, local, program.Context{
		Stations:        c.settings.Stations(),
		WaterPercentage: c.settings.WaterPercentage,
		Master1:         c.settings.Master1,
		Master2:         c.settings.Master2,
		Attributes:      &c.attrs,
	})
	if len(cands) == 0 {
		return
	}
	queued := 0
	for _, cand := range cands {
		if c.enqueue(runqueue.Request{Station: cand.Station, Program: cand.Program, Duration: int64(cand.Duration)}) {
			queued++
		}
	}
	c.logger.Info().Int("runs", queued).Int("matched", len(cands)).Msg("programs started")
	if queued > 0 {
		c.scheduleAll(now.Unix())
	}
}

// enqueue adds r, dropping it when the queue is full.
func (c *Controller) enqueue(r runqueue.Request) bool {
	if _, err := c.queue.Enqueue(r); err != nil {
		if errors.Is(err, runqueue.ErrCapacityExceeded) {
			telemetry.QueueOverflowTotal.Inc()
			c.publish(events.EventQueueOverflow, events.Payload{"station": int(r.Station), "program": int(r.Program)})
		}
		c.logger.Debug().Err(err).Int("station", int(r.Station)).Msg("run request dropped")
		return false
	}
	return true
}

func (c *Controller) applyOutputs(now time.Time) {
	ctx, cancel := context.WithTimeout(c.baseCtx, ExternalTimeout)
	defer cancel()
	c.deps.Output.Apply(ctx, c.bits, c.status.Enabled, now)

	for _, sid := range c.bits.Changed(c.applied) {
		on := c.bits.Get(sid)
		evt := events.EventStationOff
		if on {
			evt = events.EventStationOn
		}
		c.logger.Debug().Int("station", int(sid)).Bool("on", on).Msg("station switched")
		c.publish(evt, events.Payload{"station": int(sid), "time": now.Unix()})
	}
	c.applied = c.bits
	telemetry.StationsActive.Set(float64(len(c.bits.On())))
	telemetry.QueueDepth.Set(float64(c.queue.Len()))
}

func (c *Controller) sampleFlow(now time.Time) {
	if c.settings.SensorType != SensorFlow {
		return
	}
	n, ok := c.deps.Flow.Sample(now)
	if !ok {
		return
	}
	telemetry.FlowPulsesPerWindow.Set(float64(n))
	c.publish(events.EventFlowSample, events.Payload{
		"pulses": n,
		"volume": flow.Volume(n, c.settings.PulseRate),
		"window": int(flow.Window / time.Second),
	})
}

func (c *Controller) writeLog(rec runlog.Record) {
	if !c.settings.LoggingEnabled || c.deps.RunLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.baseCtx, ExternalTimeout)
	defer cancel()
	if err := c.deps.RunLog.Write(ctx, rec); err != nil {
		c.logger.Error().Err(err).Str("kind", string(rec.Kind)).Msg("write run log")
	}
	c.publish(events.EventRunLogged, events.Payload{
		"kind":     string(rec.Kind),
		"station":  rec.Station,
		"program":  rec.Program,
		"duration": rec.Duration,
		"value":    rec.Value,
	})
}

func (c *Controller) publish(t events.EventType, p events.Payload) {
	if c.deps.Events != nil {
		c.deps.Events.Publish(t, p)
	}
}

func (c *Controller) applySettings(s Settings) {
	c.settings = s
	c.status.Enabled = s.Enabled
	c.status.Master1 = s.Master1
	c.status.Master2 = s.Master2
	c.deps.Flow.SetEnabled(s.SensorType == SensorFlow)
	telemetry.WaterPercentage.Set(float64(s.WaterPercentage))
}

// saveSettings hands the current settings to the saver. A value the saver
// has not picked up yet is replaced.
func (c *Controller) saveSettings() {
	if c.deps.Settings == nil {
		return
	}
	s := c.settings
	for {
		select {
		case c.saves <- s:
			return
		default:
		}
		select {
		case <-c.saves:
		default:
		}
	}
}

// runSaver persists settings one at a time, in the order the loop changed
// them.
func (c *Controller) runSaver() {
	for s := range c.saves {
		ctx, cancel := context.WithTimeout(context.Background(), ExternalTimeout)
		if err := c.deps.Settings.SaveSettings(ctx, s); err != nil {
			c.logger.Error().Err(err).Msg("persist controller settings")
		}
		cancel()
	}
}

// Snapshot returns the state published after the last tick.
func (c *Controller) Snapshot() *Snapshot {
	return c.snap.Load()
}

func (c *Controller) publishSnapshot(now time.Time) {
	t := now.Unix()
	s := &Snapshot{
		Time:            now,
		Enabled:         c.status.Enabled,
		RainDelayed:     c.status.RainDelayed,
		RainDelayUntil:  c.settings.RainDelayUntil,
		RainSensed:      c.status.RainSensed,
		ProgramBusy:     c.status.ProgramBusy,
		SafeReboot:      c.status.SafeReboot,
		NetworkFails:    c.status.NetworkFails,
		Master1:         c.status.Master1.OneBased(),
		Master2:         c.status.Master2.OneBased(),
		Stations:        c.settings.Stations(),
		LastRun:         c.lastRun,
		WaterPercentage: c.settings.WaterPercentage,
		SensorType:      c.settings.SensorType.String(),
		FlowPulses:      c.deps.Flow.Rate(),
		FlowRate:        flow.Volume(c.deps.Flow.Rate(), c.settings.PulseRate),
	}
	for _, sid := range c.bits.On() {
		s.On = append(s.On, int(sid))
	}
	for b := 0; b < c.settings.Stations()/station.PerBoard; b++ {
		s.Boards = append(s.Boards, int(c.bits.Board(b)))
	}
	for _, e := range c.queue.Entries() {
		item := QueueItem{
			Station:  int(e.Station),
			Program:  int(e.Program),
			Start:    e.Start,
			Duration: e.Duration,
			Selected: c.queue.Selected(e.Station).Is(e.Handle),
		}
		if e.Scheduled() {
			switch {
			case t < e.Start:
				item.Remaining = e.Duration
			case t < e.End():
				item.Remaining = e.End() - t
			}
		}
		s.Queue = append(s.Queue, item)
	}
	c.snap.Store(s)
}
