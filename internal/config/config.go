// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/klgrm/figurine/internal/uhf"
)

// Config is the service configuration, loaded from one TOML file.
type Config struct {
	Serial   SerialConfig   `toml:"serial"`
	Acquire  AcquireConfig  `toml:"acquire"`
	Session  SessionConfig  `toml:"session"`
	Identity IdentityConfig `toml:"identity"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Display  DisplayConfig  `toml:"display"`
	Printing PrintingConfig `toml:"printing"`
	LogLevel string         `toml:"log_level"`
}

// SerialConfig selects and parameterizes the reader link.
type SerialConfig struct {
	// Port pins the reader to one serial port; empty means auto-detect.
	Port string `toml:"port"`
	// Candidates restricts auto-detection to these ports.
	Candidates []string `toml:"candidates"`
	Baud       int      `toml:"baud"`
	Region     string   `toml:"region"`
	// PowerCentiDB is transmit power in centi-dB, 2600 = 26 dBm.
	PowerCentiDB int `toml:"power_centidb"`
}

// AcquireConfig picks and bounds the acquisition strategy.
type AcquireConfig struct {
	// Strategy is one of "standard", "multi", "reliable".
	Strategy   string `toml:"strategy"`
	TargetTags int    `toml:"target_tags"`
	// MaxDurationS bounds the duration-based strategies.
	MaxDurationS int `toml:"max_duration_s"`
	// MaxAttempts bounds the standard strategy.
	MaxAttempts int `toml:"max_attempts"`
}

// SessionConfig paces the session state machine.
type SessionConfig struct {
	CooldownS         int `toml:"cooldown_s"`
	IdlePollMS        int `toml:"idle_poll_ms"`
	RemovalPollMS     int `toml:"removal_poll_ms"`
	ConfirmationReads int `toml:"confirmation_reads"`
}

// IdentityConfig selects the encoding scheme.
type IdentityConfig struct {
	// Mode is "mixed-radix" (authoritative) or "base6" (legacy prototype).
	Mode string `toml:"mode"`
}

// CatalogConfig locates the answer catalog.
type CatalogConfig struct {
	Path string `toml:"path"`
}

// DisplayConfig controls the optional LED panel.
type DisplayConfig struct {
	Enabled    bool     `toml:"enabled"`
	Port       string   `toml:"port"`
	Candidates []string `toml:"candidates"`
}

// PrintingConfig selects the renderer backend.
type PrintingConfig struct {
	// Mode is "file" or "off".
	Mode string `toml:"mode"`
	Dir  string `toml:"dir"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Serial:   SerialConfig{Baud: 115200, Region: "EU", PowerCentiDB: 2600},
		Acquire:  AcquireConfig{Strategy: "multi", TargetTags: 6, MaxDurationS: 120, MaxAttempts: 20},
		Session:  SessionConfig{CooldownS: 20, IdlePollMS: 500, RemovalPollMS: 1000, ConfirmationReads: 2},
		Identity: IdentityConfig{Mode: "mixed-radix"},
		Catalog:  CatalogConfig{Path: "catalog.toml"},
		Display:  DisplayConfig{Enabled: true},
		Printing: PrintingConfig{Mode: "file", Dir: "receipts"},
		LogLevel: "info",
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Valid(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Valid applies fallback defaults and checks the configuration.
func (sf *Config) Valid() error {
	if sf.Acquire.TargetTags <= 0 {
		sf.Acquire.TargetTags = 6
	}
	switch sf.Acquire.Strategy {
	case "standard", "multi", "reliable":
	case "":
		sf.Acquire.Strategy = "multi"
	default:
		return fmt.Errorf("unknown acquire strategy %q", sf.Acquire.Strategy)
	}
	switch sf.Identity.Mode {
	case "mixed-radix", "base6":
	case "":
		sf.Identity.Mode = "mixed-radix"
	default:
		return fmt.Errorf("unknown identity mode %q", sf.Identity.Mode)
	}
	switch sf.Printing.Mode {
	case "file", "off":
	case "":
		sf.Printing.Mode = "file"
	default:
		return fmt.Errorf("unknown printing mode %q", sf.Printing.Mode)
	}
	if sf.Catalog.Path == "" {
		return errors.New("catalog path must be configured")
	}
	if _, err := uhf.ParseRegion(regionOrDefault(sf.Serial.Region)); err != nil {
		return err
	}
	return nil
}

func regionOrDefault(r string) string {
	if r == "" {
		return "EU"
	}
	return r
}

// ReaderConfig translates the serial section for the uhf package.
func (sf Config) ReaderConfig() (uhf.SerialConfig, error) {
	region, err := uhf.ParseRegion(regionOrDefault(sf.Serial.Region))
	if err != nil {
		return uhf.SerialConfig{}, err
	}
	return uhf.SerialConfig{
		Address:      sf.Serial.Port,
		BaudRate:     sf.Serial.Baud,
		Region:       region,
		PowerCentiDB: sf.Serial.PowerCentiDB,
		Candidates:   sf.Serial.Candidates,
	}, nil
}

// Strategy builds the configured acquisition strategy preset.
func (sf Config) Strategy() uhf.Strategy {
	maxDuration := time.Duration(sf.Acquire.MaxDurationS) * time.Second
	switch sf.Acquire.Strategy {
	case "standard":
		return uhf.StandardStrategy(sf.Acquire.MaxAttempts)
	case "reliable":
		return uhf.ReliableStrategy(maxDuration)
	default:
		return uhf.MultiPollingStrategy(maxDuration)
	}
}
