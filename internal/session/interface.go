// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"github.com/klgrm/figurine/internal/uhf"
)

// Answer is one resolved selection: which level a token belongs to and
// which choice it represents there.
type Answer struct {
	// EPC identifies the physical token this answer came from.
	EPC string
	// Level is the 0-based slot within the cardinality vector.
	Level int
	// Index is the 0-based selection within the level.
	Index int
	// Question and Label are the catalog identifiers (e.g. "F03"/"A02").
	// Empty on fallback answers.
	Question string
	Label    string
	// Fallback marks answers derived from the EPC hash rather than a
	// catalog match.
	Fallback bool
}

// TagSource is the acquisition surface the controller drives. *uhf.Reader
// implements it; tests substitute a stub.
type TagSource interface {
	// Acquire runs one bounded acquisition and returns the deduplicated
	// tag set, possibly short of target.
	Acquire(s uhf.Strategy, target int) []uhf.TagRecord
	// TagsPresent reports whether anything is readable right now.
	TagsPresent(confirmationReads int) bool
}

// AnswerLookup maps a physical token to its domain meaning. A missing
// mapping is an ordinary outcome, reported via ok.
type AnswerLookup interface {
	Lookup(epc string) (Answer, bool)
}

// Renderer performs output generation and printing. The controller only
// needs success or failure; a failure never ends the session loop.
type Renderer interface {
	Render(identity int, answers []Answer) error
}

// Indicator drives the idle/progress display. All methods are fire-and-
// forget from the controller's point of view; errors are the
// implementation's problem to log.
type Indicator interface {
	SetPattern(pattern string) error
	SetBrightness(level int) error
	SetSpeed(level int) error
	Clear() error
}

// Display patterns the controller requests per state.
const (
	PatternBored        = "BORED"
	PatternThinking     = "THINKING"
	PatternPrinting     = "PRINTING"
	PatternError        = "ERROR"
	PatternFinish       = "FINISH"
	PatternRemoveFigure = "REMOVE_FIGURE"
)

// NopIndicator is the degraded-mode indicator used when no display is
// detected at startup.
type NopIndicator struct{}

func (NopIndicator) SetPattern(string) error { return nil }
func (NopIndicator) SetBrightness(int) error { return nil }
func (NopIndicator) SetSpeed(int) error      { return nil }
func (NopIndicator) Clear() error            { return nil }
