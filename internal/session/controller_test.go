// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klgrm/figurine/internal/identity"
	"github.com/klgrm/figurine/internal/uhf"
)

// stubTags scripts the acquisition surface. Presence answers are consumed
// from a queue; an exhausted queue answers false.
type stubTags struct {
	mu       sync.Mutex
	presence []bool
	records  []uhf.TagRecord
	acquires int
}

func (st *stubTags) Acquire(uhf.Strategy, int) []uhf.TagRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.acquires++
	return st.records
}

func (st *stubTags) TagsPresent(int) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.presence) == 0 {
		return false
	}
	v := st.presence[0]
	st.presence = st.presence[1:]
	return v
}

type stubLookup map[string]Answer

func (sl stubLookup) Lookup(epc string) (Answer, bool) {
	a, ok := sl[epc]
	return a, ok
}

type stubRenderer struct {
	mu       sync.Mutex
	identity int
	answers  []Answer
	calls    int
	err      error
}

func (sr *stubRenderer) Render(id int, answers []Answer) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.calls++
	sr.identity = id
	sr.answers = answers
	return sr.err
}

type recordingIndicator struct {
	mu       sync.Mutex
	patterns []string
}

func (ri *recordingIndicator) SetPattern(p string) error {
	ri.mu.Lock()
	defer ri.mu.Unlock()
	ri.patterns = append(ri.patterns, p)
	return nil
}
func (ri *recordingIndicator) SetBrightness(int) error { return nil }
func (ri *recordingIndicator) SetSpeed(int) error      { return nil }
func (ri *recordingIndicator) Clear() error            { return nil }

func fastConfig() Config {
	return Config{
		TargetTags:          2,
		Strategy:            uhf.Strategy{Name: "test", MaxAttempts: 1, PollInterval: time.Millisecond},
		Cooldown:            time.Millisecond,
		IdlePollInterval:    time.Millisecond,
		RemovalPollInterval: time.Millisecond,
		ConfirmationReads:   1,
	}
}

func newTestController(t *testing.T, cfg Config, deps Deps) *Controller {
	t.Helper()
	if deps.Space == nil {
		space, err := identity.NewSpace([]int{3, 2})
		require.NoError(t, err)
		deps.Space = space
	}
	if deps.Lookup == nil {
		deps.Lookup = stubLookup{}
	}
	c, err := New(cfg, deps, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func rec(epc string) uhf.TagRecord {
	return uhf.TagRecord{EPC: epc, PC: "3000", RSSI: 60}
}

func TestNewRequiresCoreDeps(t *testing.T) {
	space, err := identity.NewSpace([]int{3, 2})
	require.NoError(t, err)

	_, err = New(Config{}, Deps{Lookup: stubLookup{}, Space: space}, zerolog.Nop())
	assert.ErrorContains(t, err, "tag source")

	_, err = New(Config{}, Deps{Tags: &stubTags{}, Space: space}, zerolog.Nop())
	assert.ErrorContains(t, err, "answer lookup")

	_, err = New(Config{}, Deps{Tags: &stubTags{}, Lookup: stubLookup{}}, zerolog.Nop())
	assert.ErrorContains(t, err, "identity space")
}

func TestResolveFullMatch(t *testing.T) {
	lookup := stubLookup{
		"AA01": {EPC: "AA01", Level: 0, Index: 1, Question: "F01", Label: "A02"},
		"BB01": {EPC: "BB01", Level: 1, Index: 0, Question: "F02", Label: "A01"},
	}
	c := newTestController(t, fastConfig(), Deps{Tags: &stubTags{}, Lookup: lookup})

	id, answers := c.resolve([]uhf.TagRecord{rec("BB01"), rec("AA01")})

	// Indices [1, 0] over cardinalities [3, 2].
	assert.Equal(t, 3, id)
	require.Len(t, answers, 2)
	assert.Equal(t, 0, answers[0].Level)
	assert.Equal(t, "F01", answers[0].Question)
	assert.False(t, answers[0].Fallback)
	assert.Equal(t, 1, answers[1].Level)
}

func TestResolveUnmatchedTokenFillsByHash(t *testing.T) {
	lookup := stubLookup{
		"AA01": {EPC: "AA01", Level: 0, Index: 2},
	}
	c := newTestController(t, fastConfig(), Deps{Tags: &stubTags{}, Lookup: lookup})

	// Tail 0x0B = 11, 11 mod 2 = 1 for the open level of cardinality 2.
	id, answers := c.resolve([]uhf.TagRecord{rec("AA01"), rec("BB0B")})

	assert.Equal(t, 6, id)
	require.Len(t, answers, 2)
	assert.False(t, answers[0].Fallback)
	assert.True(t, answers[1].Fallback)
	assert.Equal(t, 1, answers[1].Index)
	assert.Equal(t, "BB0B", answers[1].EPC)
}

func TestResolveDuplicateLevelBecomesUnmatched(t *testing.T) {
	lookup := stubLookup{
		"AA01": {EPC: "AA01", Level: 0, Index: 0},
		"AA02": {EPC: "AA02", Level: 0, Index: 1},
	}
	c := newTestController(t, fastConfig(), Deps{Tags: &stubTags{}, Lookup: lookup})

	// AA01 claims level 0 first in EPC order; AA02 spills into level 1 by
	// hash (tail 0x02, 2 mod 2 = 0).
	id, answers := c.resolve([]uhf.TagRecord{rec("AA02"), rec("AA01")})

	assert.Equal(t, 1, id)
	require.Len(t, answers, 2)
	assert.Equal(t, "AA01", answers[0].EPC)
	assert.True(t, answers[1].Fallback)
	assert.Equal(t, "AA02", answers[1].EPC)
}

func TestResolveShortPlacementFallsBackToRandomIdentity(t *testing.T) {
	lookup := stubLookup{
		"AA01": {EPC: "AA01", Level: 0, Index: 2},
	}
	c := newTestController(t, fastConfig(), Deps{Tags: &stubTags{}, Lookup: lookup})
	c.randIntN = func(n int) int {
		require.Equal(t, 6, n)
		return 2
	}

	id, answers := c.resolve([]uhf.TagRecord{rec("AA01")})

	assert.Equal(t, 3, id)
	require.Len(t, answers, 1)
	assert.Equal(t, "AA01", answers[0].EPC)
}

func TestResolveEmptyPlacement(t *testing.T) {
	c := newTestController(t, fastConfig(), Deps{Tags: &stubTags{}})
	c.randIntN = func(n int) int { return 0 }

	id, answers := c.resolve(nil)
	assert.Equal(t, 1, id)
	assert.Empty(t, answers)
}

func TestResolveLegacySixTags(t *testing.T) {
	cfg := fastConfig()
	cfg.LegacyBase6 = true
	c := newTestController(t, cfg, Deps{Tags: &stubTags{}})

	// Sorted EPC tails 0x01..0x06 give digits 2,3,4,5,6,1.
	records := []uhf.TagRecord{
		rec("AA01"), rec("AA02"), rec("AA03"),
		rec("AA04"), rec("AA05"), rec("AA06"),
	}
	id, answers := c.resolve(records)

	assert.Equal(t, 11191, id)
	assert.Empty(t, answers)
}

func TestResolveLegacyWrongCountIsRandom(t *testing.T) {
	cfg := fastConfig()
	cfg.LegacyBase6 = true
	c := newTestController(t, cfg, Deps{Tags: &stubTags{}})
	c.randIntN = func(n int) int {
		require.Equal(t, 46656, n)
		return 41
	}

	id, _ := c.resolve([]uhf.TagRecord{rec("AA01"), rec("AA02")})
	assert.Equal(t, 42, id)
}

func TestCycleRunsFullSession(t *testing.T) {
	lookup := stubLookup{
		"AA01": {EPC: "AA01", Level: 0, Index: 1},
		"BB01": {EPC: "BB01", Level: 1, Index: 0},
	}
	tags := &stubTags{
		// One presence hit to leave Idle; absent when removal is checked.
		presence: []bool{true},
		records:  []uhf.TagRecord{rec("AA01"), rec("BB01")},
	}
	renderer := &stubRenderer{}
	indicator := &recordingIndicator{}
	c := newTestController(t, fastConfig(), Deps{
		Tags:      tags,
		Lookup:    lookup,
		Renderer:  renderer,
		Indicator: indicator,
	})

	var transitions []State
	c.SetTransitionHook(func(_, to State) { transitions = append(transitions, to) })

	require.NoError(t, c.cycle(context.Background()))

	assert.Equal(t, []State{
		StateAcquiring, StateResolving, StateDelegating,
		StateCooldown, StateAwaitingRemoval,
	}, transitions)
	assert.Equal(t, 1, tags.acquires)
	assert.Equal(t, 1, renderer.calls)
	assert.Equal(t, 3, renderer.identity)
	assert.Contains(t, indicator.patterns, PatternBored)
	assert.Contains(t, indicator.patterns, PatternThinking)
	assert.Contains(t, indicator.patterns, PatternPrinting)
	assert.Contains(t, indicator.patterns, PatternFinish)
	assert.NotContains(t, indicator.patterns, PatternError)
}

func TestCycleSurvivesRenderFailure(t *testing.T) {
	tags := &stubTags{
		presence: []bool{true},
		records:  []uhf.TagRecord{rec("AA01"), rec("BB0B")},
	}
	renderer := &stubRenderer{err: errors.New("printer jammed")}
	indicator := &recordingIndicator{}
	c := newTestController(t, fastConfig(), Deps{
		Tags:      tags,
		Renderer:  renderer,
		Indicator: indicator,
	})

	require.NoError(t, c.cycle(context.Background()))

	assert.Equal(t, 1, renderer.calls)
	assert.Contains(t, indicator.patterns, PatternError)
}

func TestCycleWaitsForRemoval(t *testing.T) {
	tags := &stubTags{
		// Enter session, then stay present for two removal checks before
		// finally clearing.
		presence: []bool{true, true, true, false},
		records:  []uhf.TagRecord{rec("AA01"), rec("BB01")},
	}
	indicator := &recordingIndicator{}
	c := newTestController(t, fastConfig(), Deps{Tags: tags, Indicator: indicator})

	require.NoError(t, c.cycle(context.Background()))
	assert.Contains(t, indicator.patterns, PatternRemoveFigure)
}

func TestRunStopsOnCancel(t *testing.T) {
	c := newTestController(t, fastConfig(), Deps{Tags: &stubTags{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, cfg.valid())
	assert.Equal(t, 6, cfg.TargetTags)
	assert.Equal(t, "multi", cfg.Strategy.Name)
	assert.Equal(t, 20*time.Second, cfg.Cooldown)
	assert.Equal(t, 2, cfg.ConfirmationReads)

	bad := Config{TargetTags: -1}
	assert.Error(t, bad.valid())
}
