/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hardware drives the valve outputs: the shift register chain of
// the main controller and the special stations reached over RF, GPIO or
// HTTP.
package hardware

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/friendsincode/openhome/internal/station"
)

// Init loads the periph host drivers. It must run before any pin lookup.
func Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("init gpio host drivers: %w", err)
	}
	return nil
}

// Bank writes one byte per board to the valve drivers.
type Bank interface {
	Write(boards [station.MaxBoards]byte) error
}

// outPin is the part of gpio.PinOut the drivers use.
type outPin interface {
	Out(l gpio.Level) error
}

func lookupOut(name string) (outPin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	return p, nil
}

// ShiftRegister clocks the station bits into a chain of 74HC595 style
// registers. The highest board goes out first so board 0 ends up nearest
// the controller.
type ShiftRegister struct {
	data, clock, latch outPin
	mu                 sync.Mutex
}

// NewShiftRegister opens the three output pins by periph name.
func NewShiftRegister(data, clock, latch string) (*ShiftRegister, error) {
	d, err := lookupOut(data)
	if err != nil {
		return nil, err
	}
	c, err := lookupOut(clock)
	if err != nil {
		return nil, err
	}
	l, err := lookupOut(latch)
	if err != nil {
		return nil, err
	}
	return &ShiftRegister{data: d, clock: c, latch: l}, nil
}

func (s *ShiftRegister) Write(boards [station.MaxBoards]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.latch.Out(gpio.Low); err != nil {
		return fmt.Errorf("latch low: %w", err)
	}
	for b := station.MaxBoards - 1; b >= 0; b-- {
		bits := boards[b]
		for i := 7; i >= 0; i-- {
			if err := s.clock.Out(gpio.Low); err != nil {
				return fmt.Errorf("clock low: %w", err)
			}
			if err := s.data.Out(gpio.Level(bits&(1<<i) != 0)); err != nil {
				return fmt.Errorf("data: %w", err)
			}
			if err := s.clock.Out(gpio.High); err != nil {
				return fmt.Errorf("clock high: %w", err)
			}
		}
	}
	if err := s.latch.Out(gpio.High); err != nil {
		return fmt.Errorf("latch high: %w", err)
	}
	return nil
}

// MemoryBank keeps the last written state. It stands in for the shift
// register on hosts without GPIO.
type MemoryBank struct {
	mu     sync.Mutex
	boards [station.MaxBoards]byte
	writes int
}

func (m *MemoryBank) Write(boards [station.MaxBoards]byte) error {
	m.mu.Lock()
	m.boards = boards
	m.writes++
	m.mu.Unlock()
	return nil
}

// State returns the last written bytes and the number of writes.
func (m *MemoryBank) State() ([station.MaxBoards]byte, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.boards, m.writes
}
