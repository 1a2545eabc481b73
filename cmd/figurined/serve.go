// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/klgrm/figurine/internal/catalog"
	"github.com/klgrm/figurine/internal/config"
	"github.com/klgrm/figurine/internal/display"
	"github.com/klgrm/figurine/internal/identity"
	"github.com/klgrm/figurine/internal/logging"
	"github.com/klgrm/figurine/internal/printing"
	"github.com/klgrm/figurine/internal/session"
	"github.com/klgrm/figurine/internal/uhf"
)

func newServeCmd(configPath *string) *cobra.Command {
	var noPrint bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the installation service loop",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runServe(*configPath, noPrint)
		},
	}
	cmd.Flags().BoolVar(&noPrint, "no-print", false, "skip receipt output to save paper")
	return cmd
}

func runServe(configPath string, noPrint bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New("figurined", cfg.LogLevel)
	log.Info().Msg("figurine service starting")
	if noPrint {
		log.Info().Msg("no-print mode: receipt output disabled")
	}

	// The reader is the one device the service cannot run without.
	readerCfg, err := cfg.ReaderConfig()
	if err != nil {
		return err
	}
	reader, err := uhf.Detect(readerCfg, log)
	if err != nil {
		return fmt.Errorf("rfid reader: %w", err)
	}
	defer reader.Close()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return err
	}
	space, err := identity.NewSpace(cat.Cardinalities())
	if err != nil {
		return err
	}
	log.Info().
		Ints("cardinalities", cat.Cardinalities()).
		Int("identities", cat.TotalIdentities()).
		Msg("catalog loaded")

	// Display and printer are optional; absence degrades, never aborts.
	var indicator session.Indicator = session.NopIndicator{}
	if cfg.Display.Enabled {
		candidates := cfg.Display.Candidates
		if cfg.Display.Port != "" {
			candidates = []string{cfg.Display.Port}
		}
		if panel := display.Detect(candidates, log); panel != nil {
			defer panel.Close()
			indicator = panel
		} else {
			log.Warn().Msg("no display detected, indicator updates skipped")
		}
	}

	var renderer session.Renderer = printing.Nop{}
	if cfg.Printing.Mode == "file" && !noPrint {
		renderer, err = printing.NewFileRenderer(cfg.Printing.Dir, log)
		if err != nil {
			return err
		}
	}

	ctrl, err := session.New(
		session.Config{
			TargetTags:          cfg.Acquire.TargetTags,
			Strategy:            cfg.Strategy(),
			Cooldown:            time.Duration(cfg.Session.CooldownS) * time.Second,
			IdlePollInterval:    time.Duration(cfg.Session.IdlePollMS) * time.Millisecond,
			RemovalPollInterval: time.Duration(cfg.Session.RemovalPollMS) * time.Millisecond,
			ConfirmationReads:   cfg.Session.ConfirmationReads,
			LegacyBase6:         cfg.Identity.Mode == "base6",
		},
		session.Deps{
			Tags:      reader,
			Lookup:    cat,
			Space:     space,
			Renderer:  renderer,
			Indicator: indicator,
		},
		log,
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = ctrl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("service stopped")
		return nil
	}
	return err
}
