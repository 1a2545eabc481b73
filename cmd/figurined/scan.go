// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/klgrm/figurine/internal/config"
	"github.com/klgrm/figurine/internal/logging"
	"github.com/klgrm/figurine/internal/uhf"
)

func newScanCmd(configPath *string) *cobra.Command {
	var (
		mode     string
		target   int
		duration int
		attempts int
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one diagnostic tag scan and print the result",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			log := logging.New("figurined", cfg.LogLevel)

			readerCfg, err := cfg.ReaderConfig()
			if err != nil {
				return err
			}
			reader, err := uhf.Detect(readerCfg, log)
			if err != nil {
				return fmt.Errorf("rfid reader: %w", err)
			}
			defer reader.Close()

			var strategy uhf.Strategy
			switch mode {
			case "standard":
				strategy = uhf.StandardStrategy(attempts)
			case "reliable":
				strategy = uhf.ReliableStrategy(time.Duration(duration) * time.Second)
			case "multi":
				strategy = uhf.MultiPollingStrategy(time.Duration(duration) * time.Second)
			default:
				return fmt.Errorf("unknown scan mode %q", mode)
			}

			tags := reader.Acquire(strategy, target)
			if len(tags) == 0 {
				fmt.Println("no tags detected")
				return nil
			}
			sort.Slice(tags, func(i, j int) bool { return tags[i].RSSI > tags[j].RSSI })
			for _, t := range tags {
				fmt.Printf("EPC: %s  PC: %s  RSSI: %d\n", t.EPC, t.PC, t.RSSI)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "standard", "scan mode: standard, multi or reliable")
	cmd.Flags().IntVar(&target, "target", 6, "number of unique tags to look for")
	cmd.Flags().IntVar(&duration, "duration", 10, "scan bound in seconds (multi and reliable modes)")
	cmd.Flags().IntVar(&attempts, "attempts", 20, "poll cycle bound (standard mode)")
	return cmd
}
