/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hardware

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/openhome/internal/station"
)

// Output applies the controller bitset to the bank and keeps special
// stations in step. Specials are switched when their bit changes, and one
// station index per second is refreshed so a lost call is repeated.
type Output struct {
	bank       Bank
	dispatcher *Dispatcher
	logger     zerolog.Logger

	mu          sync.Mutex
	kinds       map[station.ID]station.Kind
	prev        station.Bitset
	lastRefresh station.ID
}

// NewOutput wraps bank. dispatcher may be nil when no special stations
// are wired.
func NewOutput(bank Bank, dispatcher *Dispatcher, logger zerolog.Logger) *Output {
	return &Output{
		bank:       bank,
		dispatcher: dispatcher,
		logger:     logger.With().Str("component", "output").Logger(),
		kinds:      make(map[station.ID]station.Kind),
	}
}

// SetSpecial replaces the special station table.
func (o *Output) SetSpecial(kinds map[station.ID]station.Kind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = make(map[station.ID]station.Kind, len(kinds))
	for sid, k := range kinds {
		if k != nil && k.Type() != station.TypeStandard {
			o.kinds[sid] = k
		}
	}
}

// Apply writes bits, or all zeros while the controller is disabled.
func (o *Output) Apply(_ context.Context, bits station.Bitset, enabled bool, now time.Time) {
	var out station.Bitset
	if enabled {
		out = bits
	}
	var boards [station.MaxBoards]byte
	for b := range boards {
		boards[b] = out.Board(b)
	}
	if err := o.bank.Write(boards); err != nil {
		o.logger.Error().Err(err).Msg("write station outputs")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	changed := out.Changed(o.prev)
	o.prev = out
	if o.dispatcher == nil || len(o.kinds) == 0 {
		return
	}
	for _, sid := range changed {
		if k, ok := o.kinds[sid]; ok {
			o.dispatcher.Dispatch(sid, k, out.Get(sid))
		}
	}

	sid := station.ID(now.Unix() % station.MaxStations)
	if sid == o.lastRefresh {
		return
	}
	o.lastRefresh = sid
	if k, ok := o.kinds[sid]; ok && !contains(changed, sid) {
		o.dispatcher.Dispatch(sid, k, out.Get(sid))
	}
}

func contains(ids []station.ID, id station.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
