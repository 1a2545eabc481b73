// Copyright 2025 Klangraum Kollektiv. All rights reserved.
// Use of this source code is governed by a version 3 of the GNU General
// Public License, license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/klgrm/figurine/internal/catalog"
	"github.com/klgrm/figurine/internal/config"
	"github.com/klgrm/figurine/internal/identity"
)

func newIDCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "id",
		Short: "Encode or decode figurine identities against the catalog",
	}
	cmd.AddCommand(newIDEncodeCmd(configPath), newIDDecodeCmd(configPath))
	return cmd
}

func loadSpace(configPath string) (*identity.Space, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	return identity.NewSpace(cat.Cardinalities())
}

func newIDEncodeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "encode <index>...",
		Short: "Encode 0-based per-level selection indices to an identity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			space, err := loadSpace(*configPath)
			if err != nil {
				return err
			}
			idx := make([]int, 0, len(args))
			for _, arg := range args {
				v, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("index %q is not a number", arg)
				}
				idx = append(idx, v)
			}
			id, err := space.Encode(idx)
			if err != nil {
				return err
			}
			fmt.Printf("%d\n", id)
			return nil
		},
	}
}

func newIDDecodeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "decode <identity>",
		Short: "Decode an identity back to its selection indices",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			space, err := loadSpace(*configPath)
			if err != nil {
				return err
			}
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("identity %q is not a number", args[0])
			}
			idx, err := space.Decode(id)
			if err != nil {
				return err
			}
			fmt.Println(idx)
			return nil
		},
	}
}
