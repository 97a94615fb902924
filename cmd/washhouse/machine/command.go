// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import "github.com/washhouse-systems/washhouse/cmd/washhouse/cli"

// Command returns the "machine" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "machine",
		Summary: "Reserve, start, and inspect laundry machines",
		Description: `Operate the laundry machine fleet through the machine service.

The usual flow: reserve a machine at a location (binding your job to
it), load your laundry, start the cycle, and finish once the cycle
completes. Operators additionally provision new machines, reset
faulted ones, and force hold sweeps.`,
		Subcommands: []*cli.Command{
			reserveCommand(),
			startCommand(),
			finishCommand(),
			showCommand(),
			listCommand(),
			historyCommand(),
			provisionCommand(),
			resetCommand(),
			expireCommand(),
		},
	}
}
