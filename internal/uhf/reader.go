// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package uhf

import (
	"time"

	"github.com/rs/zerolog"
)

// Timeouts for one polling burst.
const (
	// firstFrameTimeout bounds the wait for the first tag report after a
	// poll command.
	firstFrameTimeout = 500 * time.Millisecond
	// drainTimeout bounds each wait for additional reports from the same
	// burst; the first miss ends the burst.
	drainTimeout = 100 * time.Millisecond
	// settleDelay gives the module time to boot after the port opens.
	settleDelay = 500 * time.Millisecond
	// presenceInterval separates the confirmation reads of TagsPresent.
	presenceInterval = 50 * time.Millisecond
)

// Strategy parameterizes one acquisition loop. The three presets differ
// only in stop condition, poll command and pacing; the loop itself and the
// dedup rule are shared.
type Strategy struct {
	// Name identifies the strategy in logs.
	Name string
	// UseMulti selects the multi-poll command (0x27) over single-poll (0x22).
	UseMulti bool
	// MaxAttempts bounds the loop by poll cycles. Zero means not
	// attempt-bounded.
	MaxAttempts int
	// MaxDuration bounds the loop by wall clock. Zero means not
	// time-bounded.
	MaxDuration time.Duration
	// PollInterval is the pause between poll cycles.
	PollInterval time.Duration
}

// StandardStrategy polls with the single-tag command for a bounded number
// of cycles. Lowest latency when all tokens sit well within range.
func StandardStrategy(maxAttempts int) Strategy {
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return Strategy{
		Name:         "standard",
		MaxAttempts:  maxAttempts,
		PollInterval: 50 * time.Millisecond,
	}
}

// MultiPollingStrategy polls with the multi-tag command for a bounded wall
// clock duration. Each burst may yield several tags, so it paces faster.
func MultiPollingStrategy(maxDuration time.Duration) Strategy {
	if maxDuration <= 0 {
		maxDuration = 60 * time.Second
	}
	return Strategy{
		Name:         "multi",
		UseMulti:     true,
		MaxDuration:  maxDuration,
		PollInterval: 30 * time.Millisecond,
	}
}

// ReliableStrategy polls with the single-tag command for a long bounded
// duration. Meant for exhaustive offline scans where recall beats speed.
func ReliableStrategy(maxDuration time.Duration) Strategy {
	if maxDuration <= 0 {
		maxDuration = 60 * time.Second
	}
	return Strategy{
		Name:         "reliable",
		MaxDuration:  maxDuration,
		PollInterval: 50 * time.Millisecond,
	}
}

// Reader drives one U107 module over a serial transport. It is not safe
// for concurrent use; the process owns exactly one caller at a time.
type Reader struct {
	tr  *Transport
	cfg SerialConfig
	log zerolog.Logger
}

// NewReader wraps an already open port. Used by tests and by Detect; most
// callers go through Open.
func NewReader(port Port, cfg SerialConfig, log zerolog.Logger) *Reader {
	return &Reader{
		tr:  NewTransport(port, log),
		cfg: cfg,
		log: log,
	}
}

// Open opens the serial port and initializes the module: settle delay,
// region, transmit power. The init commands are acknowledged best-effort;
// a missing ack is logged and ignored, matching the module's habit of
// staying silent when a setting is already in effect.
func Open(address string, cfg SerialConfig, log zerolog.Logger) (*Reader, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	port, err := OpenPort(address, cfg)
	if err != nil {
		return nil, err
	}
	r := NewReader(port, cfg, log.With().Str("port", address).Logger())
	r.setup()
	return r, nil
}

// setup runs the init sequence on a freshly opened port.
func (sf *Reader) setup() {
	time.Sleep(settleDelay)
	if !sf.SetRegion(sf.cfg.Region) {
		sf.log.Warn().Stringer("region", sf.cfg.Region).Msg("region command not acknowledged")
	}
	if !sf.SetPower(sf.cfg.PowerCentiDB) {
		sf.log.Warn().Int("centidb", sf.cfg.PowerCentiDB).Msg("power command not acknowledged")
	}
}

// command sends a frame and waits for any delimited response.
func (sf *Reader) command(frame []byte) bool {
	if err := sf.tr.Send(frame); err != nil {
		sf.log.Warn().Err(err).Msg("command send failed")
		return false
	}
	resp, err := sf.tr.AwaitFrame(firstFrameTimeout)
	if err != nil {
		sf.log.Warn().Err(err).Msg("command response read failed")
		return false
	}
	return resp != nil
}

// ProbeVersion asks for the hardware version. Any delimited answer counts:
// this is the auto-detection handshake, not a version parse.
func (sf *Reader) ProbeVersion() bool {
	return sf.command(BuildCommand(CmdGetVersion, 0x00))
}

// SetRegion selects the regulatory frequency band.
func (sf *Reader) SetRegion(region Region) bool {
	sf.log.Debug().Stringer("region", region).Msg("setting region")
	return sf.command(BuildCommand(CmdSetRegion, byte(region)))
}

// SetPower sets transmit power in centi-dB (2600 = 26 dBm).
func (sf *Reader) SetPower(centiDB int) bool {
	return sf.command(BuildCommand(CmdSetPower, byte(centiDB>>8), byte(centiDB)))
}

// PollOnce issues one poll command and decodes every tag report from the
// resulting burst. It waits up to firstFrameTimeout for the first frame,
// then drains follow-up frames until one drainTimeout passes quietly.
// Malformed frames are dropped without comment; a transport fault ends the
// burst with whatever was decoded so far.
func (sf *Reader) PollOnce(useMulti bool) []TagRecord {
	cmd := CmdPollSingle
	if useMulti {
		cmd = CmdPollMulti
	}
	if err := sf.tr.Send(BuildCommand(cmd)); err != nil {
		sf.log.Warn().Err(err).Msg("poll send failed")
		return nil
	}

	var tags []TagRecord
	timeout := firstFrameTimeout
	for {
		frame, err := sf.tr.AwaitFrame(timeout)
		if err != nil {
			sf.log.Warn().Err(err).Msg("poll read failed")
			return tags
		}
		if frame == nil {
			return tags
		}
		if rec, err := ParseTagReport(frame); err == nil {
			tags = append(tags, rec)
		}
		timeout = drainTimeout
	}
}

// Acquire runs the strategy's polling loop until the target number of
// unique tags is collected or the strategy's bound is hit. Repeated
// readings of one tag collapse to the best RSSI. The returned slice is
// unordered.
func (sf *Reader) Acquire(s Strategy, target int) []TagRecord {
	seen := make(map[string]TagRecord, target)
	start := time.Now()
	polls := 0

	sf.log.Info().Str("strategy", s.Name).Int("target", target).Msg("acquisition started")
	for {
		polls++
		for _, rec := range sf.PollOnce(s.UseMulti) {
			prev, ok := seen[rec.EPC]
			switch {
			case !ok:
				seen[rec.EPC] = rec
				sf.log.Info().
					Str("epc", rec.EPC).
					Int("rssi", rec.RSSI).
					Int("found", len(seen)).
					Int("target", target).
					Msg("tag discovered")
			case rec.RSSI > prev.RSSI:
				seen[rec.EPC] = rec
			}
		}
		if len(seen) >= target {
			break
		}
		if s.MaxAttempts > 0 && polls >= s.MaxAttempts {
			break
		}
		if s.MaxDuration > 0 && time.Since(start) >= s.MaxDuration {
			break
		}
		time.Sleep(s.PollInterval)
	}

	sf.log.Info().
		Str("strategy", s.Name).
		Int("found", len(seen)).
		Int("polls", polls).
		Dur("elapsed", time.Since(start)).
		Msg("acquisition finished")

	tags := make([]TagRecord, 0, len(seen))
	for _, rec := range seen {
		tags = append(tags, rec)
	}
	return tags
}

// TagsPresent reports whether anything is readable right now. It polls up
// to confirmationReads times and answers true on the first non-empty read,
// false only when every read came back empty. Used to gate session entry
// and to confirm removal before re-arming.
func (sf *Reader) TagsPresent(confirmationReads int) bool {
	if confirmationReads <= 0 {
		confirmationReads = 2
	}
	for i := 0; i < confirmationReads; i++ {
		if len(sf.PollOnce(false)) > 0 {
			return true
		}
		time.Sleep(presenceInterval)
	}
	return false
}

// Close releases the serial port.
func (sf *Reader) Close() error {
	return sf.tr.Close()
}
