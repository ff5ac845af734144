/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package controller

import (
	"github.com/friendsincode/openhome/internal/station"
)

// masterCloseMargin closes a master before the last valve it feeds.
const masterCloseMargin = 60

type master struct {
	id      station.OptionalID
	trigger station.Attribute
	onAdj   int64
	offAdj  int64
}

func (c *Controller) masters() [2]master {
	s := c.settings
	return [2]master{
		{id: s.Master1, trigger: station.TriggerMaster1, onAdj: int64(s.Master1OnAdj), offAdj: int64(s.Master1OffAdj)},
		{id: s.Master2, trigger: station.TriggerMaster2, onAdj: int64(s.Master2OnAdj), offAdj: int64(s.Master2OffAdj)},
	}
}

// syncMasters sets each master bit from the stations linked to it.
func (c *Controller) syncMasters(t int64) {
	for _, m := range c.masters() {
		mid, ok := m.id.Get()
		if !ok || int(mid) >= c.settings.Stations() {
			continue
		}
		c.bits.Set(mid, c.masterWanted(m, mid, t))
	}
}

func (c *Controller) masterWanted(m master, mid station.ID, t int64) bool {
	n := station.ID(c.settings.Stations())
	for sid := station.ID(0); sid < n; sid++ {
		if sid == mid || !c.bits.Get(sid) || !c.attrs.Has(sid, m.trigger) {
			continue
		}
		e, ok := c.queue.SelectedRequest(sid)
		if !ok || !e.Scheduled() {
			continue
		}
		if t >= e.Start+m.onAdj && t < e.End()+m.offAdj-masterCloseMargin {
			return true
		}
	}
	return false
}
