// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package identity maps ordered per-level selections onto unique integer
// identities using a mixed-radix positional encoding. Each level has its
// own cardinality, so the identity space is exactly the product of the
// per-level answer counts.
package identity

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
)

var (
	ErrBadCardinality = errors.New("cardinalities must be positive")
	ErrLevelMismatch  = errors.New("selection count does not match level count")
	ErrIndexRange     = errors.New("selection index out of range")
	ErrIdentityRange  = errors.New("identity out of range")
)

// Space is a mixed-radix identity space. Identities are 1-indexed: the
// all-zero selection encodes to 1 and the maximal selection to Size().
type Space struct {
	card []int
}

// NewSpace builds a space from a cardinality vector, one entry per level.
func NewSpace(cardinalities []int) (*Space, error) {
	if len(cardinalities) == 0 {
		return nil, ErrBadCardinality
	}
	for _, c := range cardinalities {
		if c <= 0 {
			return nil, fmt.Errorf("%w: %v", ErrBadCardinality, cardinalities)
		}
	}
	card := make([]int, len(cardinalities))
	copy(card, cardinalities)
	return &Space{card: card}, nil
}

// Levels returns the number of levels.
func (s *Space) Levels() int { return len(s.card) }

// Cardinalities returns a copy of the cardinality vector.
func (s *Space) Cardinalities() []int {
	card := make([]int, len(s.card))
	copy(card, s.card)
	return card
}

// Size returns the number of distinct identities, the product of all
// cardinalities.
func (s *Space) Size() int {
	size := 1
	for _, c := range s.card {
		size *= c
	}
	return size
}

// Encode maps 0-based per-level selections to an identity in [1, Size()].
// The rightmost level is the least significant digit.
func (s *Space) Encode(idx []int) (int, error) {
	if len(idx) != len(s.card) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrLevelMismatch, len(idx), len(s.card))
	}
	id := 0
	multiplier := 1
	for i := len(s.card) - 1; i >= 0; i-- {
		if idx[i] < 0 || idx[i] >= s.card[i] {
			return 0, fmt.Errorf("%w: level %d index %d (cardinality %d)",
				ErrIndexRange, i, idx[i], s.card[i])
		}
		id += idx[i] * multiplier
		if i > 0 {
			multiplier *= s.card[i]
		}
	}
	return id + 1, nil
}

// Decode inverts Encode. Decode(Encode(idx)) == idx for every valid idx.
func (s *Space) Decode(id int) ([]int, error) {
	if id < 1 || id > s.Size() {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrIdentityRange, id, s.Size())
	}
	v := id - 1
	idx := make([]int, len(s.card))
	for i := len(s.card) - 1; i >= 0; i-- {
		idx[i] = v % s.card[i]
		v /= s.card[i]
	}
	return idx, nil
}

// FallbackIndex derives a selection index from the tail of an EPC: the
// last EPC byte modulo the level's cardinality. This is the degraded path
// for tokens missing from the catalog; it trades fidelity for liveness
// and is logged as such by the caller.
func FallbackIndex(epc string, cardinality int) (int, error) {
	if cardinality <= 0 {
		return 0, ErrBadCardinality
	}
	if len(epc) < 2 {
		return 0, fmt.Errorf("epc too short: %q", epc)
	}
	last, err := strconv.ParseUint(epc[len(epc)-2:], 16, 8)
	if err != nil {
		return 0, fmt.Errorf("epc tail not hex: %q", epc)
	}
	return int(last) % cardinality, nil
}

// LegacyID maps six base-6 digits (each 1-6) onto [1, 46656]. This is the
// fixed-radix scheme of the first prototype, retained as an explicit
// alternate mode; it is never mixed with the Space encoding.
func LegacyID(digits []int) (int, error) {
	if len(digits) != 6 {
		return 0, fmt.Errorf("%w: got %d digits, want 6", ErrLevelMismatch, len(digits))
	}
	id := 0
	for _, d := range digits {
		if d < 1 || d > 6 {
			return 0, fmt.Errorf("%w: digit %d not in [1, 6]", ErrIndexRange, d)
		}
		id = id*6 + (d - 1)
	}
	return id + 1, nil
}

// TagDigits derives the six legacy digits straight from tag EPCs: sort by
// EPC for a deterministic order, then take the last EPC byte mod 6 plus
// one. An unparseable EPC gets a random digit, as the prototype did.
func TagDigits(epcs []string) []int {
	sorted := make([]string, len(epcs))
	copy(sorted, epcs)
	sort.Strings(sorted)

	digits := make([]int, 0, len(sorted))
	for _, epc := range sorted {
		idx, err := FallbackIndex(epc, 6)
		if err != nil {
			idx = rand.Intn(6)
		}
		digits = append(digits, idx+1)
	}
	return digits
}
