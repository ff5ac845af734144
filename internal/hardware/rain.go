/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package hardware

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// GPIORainSensor reads a rain sensor contact on a host GPIO line.
type GPIORainSensor struct {
	pin gpio.PinIn
}

// NewGPIORainSensor opens name as a pulled up input.
func NewGPIORainSensor(name string) (*GPIORainSensor, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("rain sensor pin %q not found", name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure rain sensor pin %s: %w", name, err)
	}
	return &GPIORainSensor{pin: p}, nil
}

// Level returns the raw contact level.
func (r *GPIORainSensor) Level() bool { return bool(r.pin.Read()) }

// RemoteRainSensor holds a level pushed from elsewhere, for example an
// MQTT weather station.
type RemoteRainSensor struct {
	level atomic.Bool
}

func (r *RemoteRainSensor) Set(level bool) { r.level.Store(level) }

func (r *RemoteRainSensor) Level() bool { return r.level.Load() }
