// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "figurined",
		Short:         "figurined: RFID-driven figurine installation service",
		Long:          "figurined reads a placement of RFID tokens, derives a unique figurine identity from it and hands the result to the receipt pipeline.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newScanCmd(&configPath),
		newIDCmd(&configPath),
	)
	return rootCmd
}
