/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package station holds the per-station primitives shared by the
// controller: identifiers, the output bitset and station attributes.
package station

import "fmt"

const (
	// PerBoard is the number of stations driven by one output board.
	PerBoard = 8
	// MaxBoards is the main board plus up to six expansion boards.
	MaxBoards = 7
	// MaxStations is the size of the output bank.
	MaxStations = MaxBoards * PerBoard
)

// ID is a zero-based station index into the output bank.
type ID int

// Valid reports whether id addresses a slot of the output bank.
func (id ID) Valid() bool { return id >= 0 && id < MaxStations }

// Board returns the board index the station sits on.
func (id ID) Board() int { return int(id) / PerBoard }

// Bit returns the bit position of the station within its board.
func (id ID) Bit() uint { return uint(id) % PerBoard }

// Number is the 1-based station number shown to operators.
func (id ID) Number() int { return int(id) + 1 }

func (id ID) String() string { return fmt.Sprintf("S%02d", id.Number()) }

// OptionalID is a station reference that may be unset. It is used for the
// configured master stations.
type OptionalID struct {
	id ID
	ok bool
}

// Some wraps id.
func Some(id ID) OptionalID { return OptionalID{id: id, ok: true} }

// None is the unset reference.
func None() OptionalID { return OptionalID{} }

// FromOneBased maps the legacy 1-based encoding (0 = none).
func FromOneBased(n int) OptionalID {
	if n <= 0 || n > MaxStations {
		return None()
	}
	return Some(ID(n - 1))
}

// Get returns the id and whether it is set.
func (o OptionalID) Get() (ID, bool) { return o.id, o.ok }

// Is reports whether o is set and equal to id.
func (o OptionalID) Is(id ID) bool { return o.ok && o.id == id }

// Set reports whether o holds a station.
func (o OptionalID) Set() bool { return o.ok }

// OneBased returns the legacy encoding (0 = none).
func (o OptionalID) OneBased() int {
	if !o.ok {
		return 0
	}
	return int(o.id) + 1
}
