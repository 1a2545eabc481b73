// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

// Package session sequences one installation cycle: wait for tokens,
// acquire them, resolve an identity, delegate rendering, cool down, wait
// for removal. The controller runs single-threaded with blocking bounded
// I/O; it tolerates partial device failure and only ever stops on context
// cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/klgrm/figurine/internal/identity"
	"github.com/klgrm/figurine/internal/uhf"
)

// State is the controller's position in the session cycle. Transitions
// happen only on explicit events: tag detected, acquisition result,
// delegation result, timer elapsed, removal confirmed.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateResolving
	StateDelegating
	StateCooldown
	StateAwaitingRemoval
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAcquiring:
		return "Acquiring"
	case StateResolving:
		return "Resolving"
	case StateDelegating:
		return "Delegating"
	case StateCooldown:
		return "Cooldown"
	case StateAwaitingRemoval:
		return "AwaitingRemoval"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Config holds the session pacing parameters. Zero values take defaults;
// tests override them to run in milliseconds.
type Config struct {
	// TargetTags is the number of tokens one placement consists of.
	TargetTags int
	// Strategy drives acquisition; its bound keeps an incomplete placement
	// from hanging the cycle.
	Strategy uhf.Strategy
	// Cooldown is the pause after delegation, giving the user time to
	// collect the output.
	Cooldown time.Duration
	// IdlePollInterval paces the presence checks while idle.
	IdlePollInterval time.Duration
	// RemovalPollInterval paces the presence checks while waiting for the
	// placement to be taken away.
	RemovalPollInterval time.Duration
	// ConfirmationReads is how many empty presence reads count as "gone".
	ConfirmationReads int
	// LegacyBase6 switches identity derivation to the fixed base-6
	// prototype scheme. Alternate mode, pending a product decision.
	LegacyBase6 bool
}

func (sf *Config) valid() error {
	if sf.TargetTags == 0 {
		sf.TargetTags = 6
	}
	if sf.TargetTags < 0 {
		return errors.New("target tags must be positive")
	}
	if sf.Strategy.Name == "" {
		sf.Strategy = uhf.MultiPollingStrategy(120 * time.Second)
	}
	if sf.Cooldown == 0 {
		sf.Cooldown = 20 * time.Second
	}
	if sf.IdlePollInterval == 0 {
		sf.IdlePollInterval = 500 * time.Millisecond
	}
	if sf.RemovalPollInterval == 0 {
		sf.RemovalPollInterval = time.Second
	}
	if sf.ConfirmationReads == 0 {
		sf.ConfirmationReads = 2
	}
	return nil
}

// Deps are the controller's collaborators, injected explicitly so there is
// no hidden shared state and tests can isolate the state machine.
type Deps struct {
	// Tags is required; the controller has no function without a reader.
	Tags TagSource
	// Lookup is required; it maps tokens to levels and indices.
	Lookup AnswerLookup
	// Space is required; it defines the identity encoding.
	Space *identity.Space
	// Renderer may be nil; delegation then becomes a no-op.
	Renderer Renderer
	// Indicator may be nil; indicator updates are then skipped.
	Indicator Indicator
}

// Controller is the session state machine.
type Controller struct {
	cfg       Config
	tags      TagSource
	lookup    AnswerLookup
	space     *identity.Space
	render    Renderer
	indicator Indicator
	log       zerolog.Logger

	state        State
	onTransition func(from, to State)
	randIntN     func(n int) int
}

// New validates config and dependencies and builds a controller. Absent
// Renderer or Indicator degrade to no-ops; an absent TagSource, Lookup or
// Space is a construction error, since the controller cannot run without
// them.
func New(cfg Config, deps Deps, log zerolog.Logger) (*Controller, error) {
	if err := cfg.valid(); err != nil {
		return nil, err
	}
	if deps.Tags == nil {
		return nil, errors.New("session: tag source is required")
	}
	if deps.Lookup == nil {
		return nil, errors.New("session: answer lookup is required")
	}
	if deps.Space == nil {
		return nil, errors.New("session: identity space is required")
	}
	if deps.Renderer == nil {
		deps.Renderer = nopRenderer{}
	}
	if deps.Indicator == nil {
		deps.Indicator = NopIndicator{}
	}
	return &Controller{
		cfg:          cfg,
		tags:         deps.Tags,
		lookup:       deps.Lookup,
		space:        deps.Space,
		render:       deps.Renderer,
		indicator:    deps.Indicator,
		log:          log,
		state:        StateIdle,
		onTransition: func(State, State) {},
		randIntN:     rand.Intn,
	}, nil
}

// SetTransitionHook registers a callback invoked on every state change.
func (sf *Controller) SetTransitionHook(f func(from, to State)) *Controller {
	if f != nil {
		sf.onTransition = f
	}
	return sf
}

// State returns the controller's current state.
func (sf *Controller) State() State { return sf.state }

func (sf *Controller) setState(next State) {
	if next == sf.state {
		return
	}
	sf.log.Info().Stringer("from", sf.state).Stringer("to", next).Msg("state transition")
	prev := sf.state
	sf.state = next
	sf.onTransition(prev, next)
}

// Run loops session cycles until the context is cancelled. Cancellation is
// checked between blocking steps only; within a step every wait is bounded
// by its own timeout.
func (sf *Controller) Run(ctx context.Context) error {
	for {
		if err := sf.cycle(ctx); err != nil {
			return err
		}
	}
}

// cycle executes one full pass of the state machine. The only error it
// returns is context cancellation.
func (sf *Controller) cycle(ctx context.Context) error {
	// Idle: indicator on standby, wait for a placement.
	sf.setState(StateIdle)
	sf.indicate(func(i Indicator) error { return i.SetBrightness(3) })
	sf.indicate(func(i Indicator) error { return i.SetPattern(PatternBored) })
	for !sf.tags.TagsPresent(sf.cfg.ConfirmationReads) {
		if err := sleepCtx(ctx, sf.cfg.IdlePollInterval); err != nil {
			return err
		}
	}

	// Acquiring: bounded scan; a partial set still moves the cycle forward.
	sf.setState(StateAcquiring)
	records := sf.tags.Acquire(sf.cfg.Strategy, sf.cfg.TargetTags)
	if err := ctx.Err(); err != nil {
		return err
	}

	// Resolving: tokens to identity, falling back rather than blocking.
	sf.setState(StateResolving)
	sf.indicate(func(i Indicator) error { return i.SetBrightness(6) })
	sf.indicate(func(i Indicator) error { return i.SetPattern(PatternThinking) })
	id, answers := sf.resolve(records)

	// Delegating: downstream failure is logged, never fatal.
	sf.setState(StateDelegating)
	sf.indicate(func(i Indicator) error { return i.SetPattern(PatternPrinting) })
	if err := sf.render.Render(id, answers); err != nil {
		sf.log.Error().Err(err).Int("identity", id).Msg("render delegation failed")
		sf.indicate(func(i Indicator) error { return i.SetPattern(PatternError) })
	} else {
		sf.log.Info().Int("identity", id).Int("answers", len(answers)).Msg("render delegated")
	}

	// Cooldown: let the user collect the output.
	sf.setState(StateCooldown)
	sf.indicate(func(i Indicator) error { return i.SetSpeed(8) })
	sf.indicate(func(i Indicator) error { return i.SetPattern(PatternFinish) })
	if err := sleepCtx(ctx, sf.cfg.Cooldown); err != nil {
		return err
	}

	// AwaitingRemoval: the same placement must not re-trigger a session.
	sf.setState(StateAwaitingRemoval)
	if sf.tags.TagsPresent(sf.cfg.ConfirmationReads) {
		sf.indicate(func(i Indicator) error { return i.SetPattern(PatternRemoveFigure) })
		sf.log.Info().Msg("placement still present, waiting for removal")
		for sf.tags.TagsPresent(sf.cfg.ConfirmationReads) {
			if err := sleepCtx(ctx, sf.cfg.RemovalPollInterval); err != nil {
				return err
			}
		}
	}
	sf.log.Info().Msg("placement removed, re-arming")
	sf.indicate(func(i Indicator) error { return i.Clear() })
	sf.indicate(func(i Indicator) error { return i.SetBrightness(5) })
	sf.indicate(func(i Indicator) error { return i.SetSpeed(5) })
	return ctx.Err()
}

// resolve turns an acquired tag set into an identity and the answers
// behind it. Matched tokens claim their catalog level; unmatched tokens
// fill the remaining levels with hash-derived indices. Anything short of a
// full vector yields a random in-range fallback identity instead of
// blocking the cycle.
func (sf *Controller) resolve(records []uhf.TagRecord) (int, []Answer) {
	sort.Slice(records, func(i, j int) bool { return records[i].EPC < records[j].EPC })

	if sf.cfg.LegacyBase6 {
		return sf.resolveLegacy(records)
	}

	card := sf.space.Cardinalities()
	slots := make([]*Answer, sf.space.Levels())
	var unmatched []uhf.TagRecord
	for _, rec := range records {
		ans, ok := sf.lookup.Lookup(rec.EPC)
		if ok && ans.Level >= 0 && ans.Level < len(slots) && slots[ans.Level] == nil {
			a := ans
			slots[ans.Level] = &a
			continue
		}
		if ok {
			sf.log.Warn().Str("epc", rec.EPC).Int("level", ans.Level).
				Msg("duplicate or invalid level, treating token as unmatched")
		} else {
			sf.log.Warn().Str("epc", rec.EPC).Msg("token not in catalog")
		}
		unmatched = append(unmatched, rec)
	}

	for level := range slots {
		if slots[level] != nil || len(unmatched) == 0 {
			continue
		}
		rec := unmatched[0]
		unmatched = unmatched[1:]
		idx, err := identity.FallbackIndex(rec.EPC, card[level])
		if err != nil {
			idx = sf.randIntN(card[level])
		}
		sf.log.Warn().Str("epc", rec.EPC).Int("level", level).Int("index", idx).
			Msg("using hash-derived fallback answer")
		slots[level] = &Answer{EPC: rec.EPC, Level: level, Index: idx, Fallback: true}
	}

	answers := make([]Answer, 0, len(slots))
	idx := make([]int, 0, len(slots))
	for _, slot := range slots {
		if slot == nil {
			return sf.fallbackIdentity(answers)
		}
		answers = append(answers, *slot)
		idx = append(idx, slot.Index)
	}

	id, err := sf.space.Encode(idx)
	if err != nil {
		sf.log.Error().Err(err).Ints("indices", idx).Msg("identity encoding failed")
		return sf.fallbackIdentity(answers)
	}
	sf.log.Info().Int("identity", id).Ints("indices", idx).Msg("identity resolved")
	return id, answers
}

// resolveLegacy derives the identity straight from the tag bytes with the
// prototype's fixed base-6 scheme. Catalog matches still accompany the
// result for rendering.
func (sf *Controller) resolveLegacy(records []uhf.TagRecord) (int, []Answer) {
	var answers []Answer
	epcs := make([]string, 0, len(records))
	for _, rec := range records {
		epcs = append(epcs, rec.EPC)
		if ans, ok := sf.lookup.Lookup(rec.EPC); ok {
			answers = append(answers, ans)
		}
	}
	if len(epcs) != 6 {
		sf.log.Warn().Int("tags", len(epcs)).Msg("legacy identity needs 6 tags")
		id := sf.randIntN(6*6*6*6*6*6) + 1
		return id, answers
	}
	id, err := identity.LegacyID(identity.TagDigits(epcs))
	if err != nil {
		sf.log.Error().Err(err).Msg("legacy identity derivation failed")
		id = sf.randIntN(6*6*6*6*6*6) + 1
	}
	sf.log.Info().Int("identity", id).Msg("legacy identity resolved")
	return id, answers
}

// fallbackIdentity substitutes a uniformly random in-range identity when a
// full selection vector could not be assembled.
func (sf *Controller) fallbackIdentity(answers []Answer) (int, []Answer) {
	id := sf.randIntN(sf.space.Size()) + 1
	sf.log.Warn().Int("identity", id).Int("resolved", len(answers)).
		Msg("incomplete placement, substituting fallback identity")
	return id, answers
}

// indicate runs one indicator update, logging failure instead of
// propagating it. A dead display degrades the experience, not the service.
func (sf *Controller) indicate(f func(Indicator) error) {
	if err := f(sf.indicator); err != nil {
		sf.log.Debug().Err(err).Msg("indicator update failed")
	}
}

// sleepCtx pauses for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopRenderer struct{}

func (nopRenderer) Render(int, []Answer) error { return nil }
