/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

// Bitset is the desired open/closed state of every valve, one byte per
// board. It is a value type so the previous tick's state can be kept for
// diffing by plain assignment.
type Bitset [MaxBoards]byte

// Get reports whether station id is on.
func (b *Bitset) Get(id ID) bool {
	if !id.Valid() {
		return false
	}
	return b[id.Board()]&(1<<id.Bit()) != 0
}

// Set changes the bit for id and reports whether it changed.
func (b *Bitset) Set(id ID, on bool) bool {
	if !id.Valid() {
		return false
	}
	mask := byte(1) << id.Bit()
	cur := b[id.Board()]&mask != 0
	if cur == on {
		return false
	}
	if on {
		b[id.Board()] |= mask
	} else {
		b[id.Board()] &^= mask
	}
	return true
}

// Clear turns every station off.
func (b *Bitset) Clear() { *b = Bitset{} }

// Board returns the raw byte for a board.
func (b *Bitset) Board(board int) byte {
	if board < 0 || board >= MaxBoards {
		return 0
	}
	return b[board]
}

// Any reports whether at least one station is on.
func (b *Bitset) Any() bool {
	for _, v := range b {
		if v != 0 {
			return true
		}
	}
	return false
}

// On lists the stations that are on, in index order.
func (b *Bitset) On() []ID {
	var out []ID
	for id := ID(0); id < MaxStations; id++ {
		if b.Get(id) {
			out = append(out, id)
		}
	}
	return out
}

// Changed lists the stations whose bit differs between b and prev.
func (b *Bitset) Changed(prev Bitset) []ID {
	var out []ID
	for board := 0; board < MaxBoards; board++ {
		diff := b[board] ^ prev[board]
		if diff == 0 {
			continue
		}
		for bit := uint(0); bit < PerBoard; bit++ {
			if diff&(1<<bit) != 0 {
				out = append(out, ID(board*PerBoard+int(bit)))
			}
		}
	}
	return out
}
