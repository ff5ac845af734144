/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"context"
	"time"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/telemetry"
)

const (
	// rainSenseMinLog is the shortest rain sensor activation worth logging.
	rainSenseMinLog = 10
	// weatherStaleAfter flags a reboot when weather has not refreshed for this long.
	weatherStaleAfter = 24 * 60 * 60
)

func (c *Controller) updateRainDelay(t int64) {
	prev := c.status.RainDelayed
	until := c.settings.RainDelayUntil
	c.status.RainDelayed = until != 0 && t < until

	switch {
	case c.status.RainDelayed && !prev:
		c.rainDelayStart = t
		c.logger.Info().Int64("until", until).Msg("rain delay started")
		c.publish(events.EventRainDelayStart, events.Payload{"until": until})
	case !c.status.RainDelayed && prev:
		c.writeLog(runlog.Record{
			Kind:     runlog.KindRainDelay,
			Duration: t - c.rainDelayStart,
			EndTime:  time.Unix(t, 0),
		})
		c.settings.RainDelayUntil = 0
		c.saveSettings()
		c.logger.Info().Msg("rain delay ended")
		c.publish(events.EventRainDelayStop, events.Payload{"time": t})
	}
	if c.status.RainDelayed {
		telemetry.RainDelayed.Set(1)
	} else {
		telemetry.RainDelayed.Set(0)
	}
}

func (c *Controller) updateRainSensor(t int64) {
	if c.settings.SensorType != SensorRain || c.deps.Rain == nil {
		c.status.RainSensed = false
		return
	}
	sensed := c.deps.Rain.Level() != c.settings.RainSensorNormallyOpen
	if sensed == c.status.RainSensed {
		return
	}
	c.status.RainSensed = sensed
	if sensed {
		c.rainSensedSince = t
	} else if t > c.rainSensedSince+rainSenseMinLog {
		c.writeLog(runlog.Record{
			Kind:     runlog.KindRainSense,
			Duration: t - c.rainSensedSince,
			EndTime:  time.Unix(t, 0),
		})
	}
	c.logger.Info().Bool("sensed", sensed).Msg("rain sensor changed")
	c.publish(events.EventRainSensorChange, events.Payload{"sensed": sensed, "time": t})
}

// checkWeather refreshes the water percentage from the weather source
// while the controller is idle and the network is up.
func (c *Controller) checkWeather(t int64) {
	if c.deps.Weather == nil || c.status.NetworkFails > 0 || c.status.ProgramBusy || c.settings.RemoteExtension {
		return
	}
	if c.weatherLastSuccess != 0 && t > c.weatherLastSuccess+weatherStaleAfter {
		c.weatherLastSuccess = 0
		if !c.status.SafeReboot {
			c.status.SafeReboot = true
			c.logger.Warn().Msg("weather data stale, safe reboot requested")
			c.publish(events.EventSafeReboot, events.Payload{"time": t})
		}
		return
	}
	interval := int64(c.opts.WeatherInterval / time.Second)
	if c.weatherInFlight || (c.weatherLastCheck != 0 && t <= c.weatherLastCheck+interval) {
		return
	}
	c.weatherLastCheck = t
	c.weatherInFlight = true

	src := c.deps.Weather
	go func() {
		ctx, cancel := context.WithTimeout(c.baseCtx, ExternalTimeout)
		defer cancel()
		pct, err := src.WaterPercentage(ctx)
		c.post(func(now int64) error {
			c.weatherResult(now, pct, err)
			return nil
		})
	}()
}

func (c *Controller) weatherResult(t int64, pct int, err error) {
	c.weatherInFlight = false
	if err != nil {
		telemetry.WeatherChecksTotal.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Msg("weather check failed")
		return
	}
	telemetry.WeatherChecksTotal.WithLabelValues("ok").Inc()
	c.weatherLastSuccess = t
	c.setWaterPercentage(t, pct)
}

func (c *Controller) setWaterPercentage(t int64, pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 250 {
		pct = 250
	}
	if pct == c.settings.WaterPercentage {
		return
	}
	c.settings.WaterPercentage = pct
	telemetry.WaterPercentage.Set(float64(pct))
	c.writeLog(runlog.Record{
		Kind:    runlog.KindWaterLevel,
		Value:   float64(pct),
		EndTime: time.Unix(t, 0),
	})
	c.saveSettings()
	c.logger.Info().Int("water_percentage", pct).Msg("water level changed")
	c.publish(events.EventWaterLevel, events.Payload{"percentage": pct})
}
