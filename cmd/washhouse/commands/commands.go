// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete washhouse CLI command tree.
package commands

import (
	"fmt"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	machinecmd "github.com/washhouse-systems/washhouse/cmd/washhouse/machine"
	tokencmd "github.com/washhouse-systems/washhouse/cmd/washhouse/token"
	"github.com/washhouse-systems/washhouse/lib/version"
)

// Root builds and returns the complete washhouse CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "washhouse",
		Description: `Washhouse: shared laundry machine reservation and lifecycle service.

Reserve machines, start and finish wash cycles, and manage the access
tokens that authorize it all.`,
		Subcommands: []*cli.Command{
			machinecmd.Command(),
			tokencmd.Command(),
			machinecmd.StatusCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("washhouse %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Check the machine service is up",
				Command:     "washhouse status",
			},
			{
				Description: "Reserve a machine in laundry room 2",
				Command:     "washhouse machine reserve lr-201 --job wash-20260301-044",
			},
			{
				Description: "Start the cycle after loading",
				Command:     "washhouse machine start lr-201/washer-04",
			},
			{
				Description: "See the whole fleet",
				Command:     "washhouse machine list",
			},
			{
				Description: "Mint a kiosk token scoped to one room",
				Command:     "washhouse token mint --subject kiosk/lr-201 --grant 'machine/reserve,machine/start,machine/read@lr-201' --out kiosk.token",
			},
		},
	}
}
