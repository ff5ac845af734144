/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"github.com/friendsincode/openhome/internal/station"
)

// raining reports whether rain currently blocks scheduled runs.
func (c *Controller) raining() bool {
	return c.status.RainDelayed || (c.status.RainSensed && c.settings.SensorType == SensorRain)
}

// processDynamicEvents terminates scheduled program runs while the
// controller is disabled, and rain sensitive ones while it rains. Manual
// runs are left alone.
func (c *Controller) processDynamicEvents(t int64) {
	enabled := c.status.Enabled
	rain := c.raining()
	if enabled && !rain {
		return
	}
	reason := "rain"
	if !enabled {
		reason = "disabled"
	}
	for _, e := range c.queue.Entries() {
		if c.settings.IsMaster(e.Station) || !e.Program.IsScheduled() {
			continue
		}
		if !enabled || !c.attrs.Has(e.Station, station.IgnoreRain) {
			c.terminate(e.Handle, t, reason)
		}
	}
}
