/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"time"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/station"
)

// scheduleAll assigns start times to every queued request that has none.
// Concurrent runs are staggered one second apart in enqueue order.
// Sequential runs chain after each other, and after the stop time of any
// sequential run still pending from an earlier batch, separated by the
// station delay.
func (c *Controller) scheduleAll(t int64) {
	delay := int64(c.settings.StationDelay)
	con := t + 1
	seq := con
	if c.lastSeqStop > t {
		seq = c.lastSeqStop + delay
	}

	scheduled := 0
	for _, e := range c.queue.Entries() {
		if e.Scheduled() || e.Duration == 0 {
			continue
		}
		var start int64
		if c.isSequential(e.Station) {
			// A large negative delay can pull the cursor into the past.
			if seq <= t {
				seq = t + 1
			}
			start = seq
			seq += e.Duration + delay
		} else {
			start = con
			con++
		}
		c.queue.SetStart(e.Handle, start)
		scheduled++

		if !c.status.ProgramBusy {
			c.status.ProgramBusy = true
			if c.settings.SensorType == SensorFlow {
				c.deps.Flow.MarkRunStart(time.Unix(t, 0))
			}
			c.publish(events.EventProgramBusy, events.Payload{"time": t})
		}
	}
	if scheduled > 0 {
		c.logger.Debug().Int("runs", scheduled).Int64("sequential_cursor", seq).Msg("runs scheduled")
	}
	c.updateLastSeqStop(t)
}

func (c *Controller) isSequential(sid station.ID) bool {
	if c.settings.RemoteExtension {
		return false
	}
	return c.attrs.Has(sid, station.Sequential)
}

// updateLastSeqStop records the latest stop time among sequential runs
// that have not finished yet.
func (c *Controller) updateLastSeqStop(t int64) {
	c.lastSeqStop = 0
	if c.settings.RemoteExtension {
		return
	}
	for _, e := range c.queue.Entries() {
		if !e.Scheduled() || e.Duration == 0 || !c.attrs.Has(e.Station, station.Sequential) {
			continue
		}
		if end := e.End(); end > t && end > c.lastSeqStop {
			c.lastSeqStop = end
		}
	}
}
