// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/machine"
)

// startParams holds the parameters for the start command.
type startParams struct {
	machineConnection
	cli.JSONOutput
}

func startCommand() *cli.Command {
	var params startParams

	return &cli.Command{
		Name:    "start",
		Summary: "Start the wash cycle on a reserved machine",
		Description: `Tell the hardware controller to start the cycle on a machine that is
AWAITING_DROPOFF. On success the machine moves to RUNNING.

If the hardware refuses or fails the start, the machine is marked
ERROR and the failure reports the machine's resulting state. Starting
a machine that is not awaiting dropoff fails without touching the
hardware.`,
		Usage: "washhouse machine start <machine-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Start the cycle after loading the machine",
				Command:     "washhouse machine start lr-201/washer-04",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("start", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("machine ID is required\n\nUsage: washhouse machine start <machine-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			var record machine.Record
			fields := map[string]any{"machine": args[0]}
			if err := client.Call(ctx, "start-machine", fields, &record); err != nil {
				return describeFailure(err)
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}

			fmt.Fprintf(os.Stderr, "cycle started on %s (job %s)\n", record.ID, record.JobID)
			return nil
		},
	}
}
