/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"time"

	"github.com/friendsincode/openhome/internal/events"
	"github.com/friendsincode/openhome/internal/runlog"
	"github.com/friendsincode/openhome/internal/runqueue"
	"github.com/friendsincode/openhome/internal/station"
	"github.com/friendsincode/openhome/internal/telemetry"
)

// runStations reaps finished requests and switches on stations whose
// selected request window contains t.
func (c *Controller) runStations(t int64) {
	for _, e := range c.queue.Entries() {
		if e.Duration == 0 || (e.Scheduled() && t >= e.End()) {
			c.terminate(e.Handle, t, "completed")
		}
	}

	n := station.ID(c.settings.Stations())
	for sid := station.ID(0); sid < n; sid++ {
		if c.settings.IsMaster(sid) || c.bits.Get(sid) {
			continue
		}
		e, ok := c.queue.SelectedRequest(sid)
		if !ok || !e.Active(t) {
			continue
		}
		c.bits.Set(sid, true)
		c.logger.Info().
			Int("station", int(sid)+1).
			Str("program", e.Program.String()).
			Int64("end", e.End()).
			Msg("station on")
	}
	c.updateLastSeqStop(t)
}

// terminate is the single removal path for a request. It logs the run if
// the station actually watered, removes the request and clears the
// station bit unless another live request of the station is running.
func (c *Controller) terminate(h runqueue.Handle, t int64, reason string) {
	e, ok := c.queue.Get(h)
	if !ok {
		return
	}
	if e.Scheduled() && t > e.Start && !c.settings.IsMaster(e.Station) {
		ran := t - e.Start
		c.lastRun = runlog.LastRun{
			Station:  int(e.Station) + 1,
			Program:  int(e.Program),
			Duration: ran,
			EndTime:  time.Unix(t, 0),
		}
		c.writeLog(c.lastRun.Record())
		telemetry.StationRunsTotal.WithLabelValues(reason).Inc()
		telemetry.StationRunSeconds.Add(float64(ran))
	}
	c.queue.Dequeue(h)

	for _, other := range c.queue.ForStation(e.Station) {
		if other.Active(t) {
			return
		}
	}
	if c.bits.Set(e.Station, false) {
		c.logger.Info().Int("station", int(e.Station)+1).Str("reason", reason).Msg("station off")
	}
}

// finishIfIdle resets the run state once the queue has drained.
func (c *Controller) finishIfIdle(t int64) {
	if !c.status.ProgramBusy || !c.queue.Empty() {
		return
	}
	c.bits.Clear()
	c.queue.Reset()
	c.lastSeqStop = 0
	c.status.ProgramBusy = false
	c.publish(events.EventProgramIdle, events.Payload{"time": t})
	c.logger.Info().Msg("all runs finished")

	if c.settings.SensorType == SensorFlow {
		pulses, since := c.deps.Flow.RunCount()
		d := int64(0)
		if !since.IsZero() {
			d = t - since.Unix()
		}
		c.writeLog(runlog.Record{
			Kind:     runlog.KindFlowSense,
			Duration: d,
			Value:    float64(pulses),
			EndTime:  time.Unix(t, 0),
		})
	}
}

// resetImmediate drops every request and closes every valve without
// logging.
func (c *Controller) resetImmediate() {
	c.bits.Clear()
	c.queue.Reset()
	c.lastSeqStop = 0
	c.status.ProgramBusy = false
}
