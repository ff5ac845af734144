/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"context"
	"fmt"

	"github.com/friendsincode/openhome/internal/program"
	"github.com/friendsincode/openhome/internal/runqueue"
	"github.com/friendsincode/openhome/internal/station"
)

// Reserved program ids accepted by RunProgram.
const (
	// TestAllStations runs every station for a minute.
	TestAllStations program.ID = 0
	// QuickTestStations runs every station for two seconds.
	QuickTestStations program.ID = 255

	testAllSeconds   = 60
	quickTestSeconds = 2

	// MaxRainDelayHours is the largest rain delay accepted.
	MaxRainDelayHours = 32767
)

// RunProgram starts a stored program immediately, or one of the test
// sequences. Anything already queued is dropped first without logging.
func (c *Controller) RunProgram(ctx context.Context, pid program.ID, useWeather bool) error {
	return c.do(ctx, func(now int64) error {
		return c.startManualProgram(now, pid, useWeather)
	})
}

func (c *Controller) startManualProgram(t int64, pid program.ID, useWeather bool) error {
	var prog *program.Program
	switch pid {
	case TestAllStations, QuickTestStations:
	default:
		for i := range c.programs {
			if c.programs[i].ID == pid {
				prog = &c.programs[i]
				break
			}
		}
		if prog == nil {
			return fmt.Errorf("%w: %d", ErrUnknownProgram, pid)
		}
	}

	c.resetImmediate()
	queued := 0
	n := station.ID(c.settings.Stations())
	for sid := station.ID(0); sid < n; sid++ {
		if c.settings.IsMaster(sid) || c.attrs.Has(sid, station.Disabled) {
			continue
		}
		var dur int64
		switch {
		case pid == TestAllStations:
			dur = testAllSeconds
		case pid == QuickTestStations:
			dur = quickTestSeconds
		default:
			dur = int64(prog.Duration(sid))
			if useWeather {
				dur = dur * int64(c.settings.WaterPercentage) / 100
			}
		}
		if dur <= 0 {
			continue
		}
		if c.enqueue(runqueue.Request{Station: sid, Program: program.ManualProgram, Duration: dur}) {
			queued++
		}
	}
	c.logger.Info().Str("program", pid.String()).Int("runs", queued).Bool("use_weather", useWeather).Msg("manual program started")
	if queued > 0 {
		c.scheduleAll(t)
	}
	return nil
}

// RunStation queues a manual run of one station. sid is zero based.
func (c *Controller) RunStation(ctx context.Context, sid station.ID, seconds int64) error {
	return c.do(ctx, func(now int64) error {
		if !sid.Valid() || int(sid) >= c.settings.Stations() {
			return fmt.Errorf("%w: %d", ErrInvalidStation, int(sid)+1)
		}
		if c.settings.IsMaster(sid) {
			return ErrMasterStation
		}
		if seconds <= 0 {
			return ErrInvalidDuration
		}
		if _, err := c.queue.Enqueue(runqueue.Request{Station: sid, Program: program.ManualStation, Duration: seconds}); err != nil {
			return err
		}
		c.logger.Info().Int("station", int(sid)+1).Int64("seconds", seconds).Msg("manual station run queued")
		c.scheduleAll(now)
		return nil
	})
}

// StopStation ends every run of sid on the next tick. The runs are logged.
func (c *Controller) StopStation(ctx context.Context, sid station.ID) error {
	return c.do(ctx, func(int64) error {
		if !sid.Valid() || int(sid) >= c.settings.Stations() {
			return fmt.Errorf("%w: %d", ErrInvalidStation, int(sid)+1)
		}
		for _, e := range c.queue.ForStation(sid) {
			c.queue.MarkForRemoval(e.Handle)
		}
		return nil
	})
}

// ResetAll ends every run on the next tick. The runs are logged.
func (c *Controller) ResetAll(ctx context.Context) error {
	return c.do(ctx, func(int64) error {
		c.queue.MarkAllForRemoval()
		c.logger.Info().Msg("all runs stopped")
		return nil
	})
}

// ResetImmediate closes every valve and drops the queue now, without
// logging.
func (c *Controller) ResetImmediate(ctx context.Context) error {
	return c.do(ctx, func(int64) error {
		c.resetImmediate()
		c.logger.Warn().Msg("queue reset without logging")
		return nil
	})
}

// SetEnabled switches the controller on or off. Scheduled runs stop while
// disabled.
func (c *Controller) SetEnabled(ctx context.Context, on bool) error {
	return c.do(ctx, func(int64) error {
		if c.settings.Enabled == on {
			return nil
		}
		c.settings.Enabled = on
		c.saveSettings()
		c.logger.Info().Bool("enabled", on).Msg("controller enable changed")
		return nil
	})
}

// SetRainDelay delays scheduled runs by hours from now. Zero clears the
// delay.
func (c *Controller) SetRainDelay(ctx context.Context, hours int) error {
	return c.do(ctx, func(now int64) error {
		if hours < 0 || hours > MaxRainDelayHours {
			return fmt.Errorf("%w: %d hours, want 0..%d", ErrRainDelayRange, hours, MaxRainDelayHours)
		}
		if hours == 0 {
			c.settings.RainDelayUntil = 0
		} else {
			c.settings.RainDelayUntil = now + int64(hours)*3600
		}
		c.saveSettings()
		return nil
	})
}

// SetWaterPercentage overrides the weather adjusted water level.
func (c *Controller) SetWaterPercentage(ctx context.Context, pct int) error {
	return c.do(ctx, func(now int64) error {
		if pct < 0 || pct > 250 {
			return fmt.Errorf("water percentage must be between 0 and 250")
		}
		c.setWaterPercentage(now, pct)
		return nil
	})
}

// ReportNetwork updates the network failure counter used to pause
// weather checks.
func (c *Controller) ReportNetwork(ctx context.Context, ok bool) error {
	return c.do(ctx, func(int64) error {
		if ok {
			c.status.NetworkFails = 0
		} else {
			c.status.NetworkFails++
		}
		return nil
	})
}

// ApplySettings replaces the controller settings. Master assignments that
// change take effect on the current tick.
func (c *Controller) ApplySettings(ctx context.Context, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return c.do(ctx, func(int64) error {
		// The loop owns the rain delay end time unless the caller set one.
		if s.RainDelayUntil == 0 {
			s.RainDelayUntil = c.settings.RainDelayUntil
		}
		c.applySettings(s)
		c.saveSettings()
		return nil
	})
}

// Reload reads programs, station attributes and settings from storage and
// swaps them in on the loop.
func (c *Controller) Reload(ctx context.Context) error {
	if c.deps.Loader == nil {
		return nil
	}
	progs, attrs, settings, err := c.load(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, func(int64) error {
		c.programs = progs
		c.attrs = attrs
		c.applySettings(settings)
		c.logger.Info().Int("programs", len(progs)).Msg("configuration reloaded")
		return nil
	})
}
