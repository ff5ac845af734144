/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// PulseSource delivers flow pulses to a handler until ctx is done.
type PulseSource interface {
	Run(ctx context.Context, onPulse func(time.Time)) error
}

// ChanSource forwards timestamps sent on C. It is used by tests and by
// inputs that arrive over the network.
type ChanSource struct {
	C chan time.Time
}

// NewChanSource returns a source with a small buffer.
func NewChanSource() *ChanSource {
	return &ChanSource{C: make(chan time.Time, 64)}
}

func (s *ChanSource) Run(ctx context.Context, onPulse func(time.Time)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ts := <-s.C:
			onPulse(ts)
		}
	}
}

// GPIOSource waits for falling edges on a local GPIO line.
type GPIOSource struct {
	pin    gpio.PinIn
	logger zerolog.Logger
}

// NewGPIOSource opens the named pin with a pull-up and falling edge
// detection. host.Init must have been called.
func NewGPIOSource(name string, logger zerolog.Logger) (*GPIOSource, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("flow sensor pin %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return nil, fmt.Errorf("configure flow sensor pin %s: %w", name, err)
	}
	return &GPIOSource{
		pin:    p,
		logger: logger.With().Str("component", "flow-gpio").Str("pin", name).Logger(),
	}, nil
}

// Run blocks on edge detection. The wait is bounded so ctx cancellation is
// observed within a second.
func (s *GPIOSource) Run(ctx context.Context, onPulse func(time.Time)) error {
	s.logger.Info().Msg("flow pulse input started")
	defer func() {
		if err := s.pin.Halt(); err != nil {
			s.logger.Debug().Err(err).Msg("halt flow sensor pin")
		}
	}()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.pin.WaitForEdge(time.Second) {
			onPulse(time.Now())
		}
	}
}
