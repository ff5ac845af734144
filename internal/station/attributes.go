/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

import "strings"

// Attribute is a per-station boolean setting.
type Attribute uint8

const (
	Sequential     Attribute = iota // runs in the sequential chain
	TriggerMaster1                  // opening this station opens master 1
	TriggerMaster2                  // opening this station opens master 2
	IgnoreRain                      // keeps running through rain delay and rain sensing
	Disabled                        // never scheduled
	Special                         // driven by a special transport, see Kind
)

var attributeNames = map[Attribute]string{
	Sequential:     "sequential",
	TriggerMaster1: "master1",
	TriggerMaster2: "master2",
	IgnoreRain:     "ignore_rain",
	Disabled:       "disabled",
	Special:        "special",
}

func (a Attribute) String() string {
	if n, ok := attributeNames[a]; ok {
		return n
	}
	return "unknown"
}

// AttributeSet is the set of attributes held by one station.
type AttributeSet uint8

// NewAttributeSet builds a set from attrs.
func NewAttributeSet(attrs ...Attribute) AttributeSet {
	var s AttributeSet
	for _, a := range attrs {
		s = s.With(a)
	}
	return s
}

// Has reports whether a is in the set.
func (s AttributeSet) Has(a Attribute) bool { return s&(1<<a) != 0 }

// With returns the set with a added.
func (s AttributeSet) With(a Attribute) AttributeSet { return s | 1<<a }

// Without returns the set with a removed.
func (s AttributeSet) Without(a Attribute) AttributeSet { return s &^ (1 << a) }

func (s AttributeSet) String() string {
	var parts []string
	for a := Sequential; a <= Special; a++ {
		if s.Has(a) {
			parts = append(parts, a.String())
		}
	}
	return strings.Join(parts, ",")
}

// Attributes holds the attribute sets of every station.
type Attributes struct {
	sets [MaxStations]AttributeSet
}

// DefaultAttributes mirrors a factory reset: every station is sequential
// and triggers master 1.
func DefaultAttributes() Attributes {
	var a Attributes
	for i := range a.sets {
		a.sets[i] = NewAttributeSet(Sequential, TriggerMaster1)
	}
	return a
}

// Get returns the set for id.
func (a *Attributes) Get(id ID) AttributeSet {
	if !id.Valid() {
		return 0
	}
	return a.sets[id]
}

// Put replaces the set for id.
func (a *Attributes) Put(id ID, s AttributeSet) {
	if id.Valid() {
		a.sets[id] = s
	}
}

// Has reports whether station id has attribute attr.
func (a *Attributes) Has(id ID, attr Attribute) bool { return a.Get(id).Has(attr) }

// Board packs one attribute of a board's eight stations into a byte, the
// legacy per-board view shown by the API.
func (a *Attributes) Board(attr Attribute, board int) byte {
	if board < 0 || board >= MaxBoards {
		return 0
	}
	var v byte
	for bit := 0; bit < PerBoard; bit++ {
		if a.sets[board*PerBoard+bit].Has(attr) {
			v |= 1 << uint(bit)
		}
	}
	return v
}
