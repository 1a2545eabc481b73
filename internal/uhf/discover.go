// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package uhf

import (
	"strings"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// candidatePorts returns the ports worth probing: the configured list when
// present, otherwise every enumerated port that looks like a USB serial
// adapter.
func candidatePorts(cfg SerialConfig) ([]string, error) {
	if len(cfg.Candidates) > 0 {
		return cfg.Candidates, nil
	}
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	usb := ports[:0]
	for _, p := range ports {
		if strings.Contains(p, "ttyUSB") || strings.Contains(p, "ttyACM") {
			usb = append(usb, p)
		}
	}
	return usb, nil
}

// Detect probes candidate serial ports for a reader, returning the first
// one that answers the version probe. Absence is reported as ErrNoReader,
// an ordinary result the caller branches on; only the caller decides
// whether a missing reader is fatal.
func Detect(cfg SerialConfig, log zerolog.Logger) (*Reader, error) {
	if err := cfg.Valid(); err != nil {
		return nil, err
	}
	if cfg.Address != "" {
		r, err := Open(cfg.Address, cfg, log)
		if err != nil {
			return nil, err
		}
		if !r.ProbeVersion() {
			_ = r.Close()
			return nil, ErrNoReader
		}
		return r, nil
	}

	ports, err := candidatePorts(cfg)
	if err != nil {
		return nil, err
	}
	for _, p := range ports {
		log.Debug().Str("port", p).Msg("probing for reader")
		r, err := Open(p, cfg, log)
		if err != nil {
			log.Debug().Err(err).Str("port", p).Msg("probe open failed")
			continue
		}
		if r.ProbeVersion() {
			log.Info().Str("port", p).Stringer("region", cfg.Region).Msg("reader detected")
			return r, nil
		}
		_ = r.Close()
	}
	return nil, ErrNoReader
}
