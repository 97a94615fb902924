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

// reserveParams holds the parameters for the reserve command.
type reserveParams struct {
	machineConnection
	cli.JSONOutput
	Job string
}

func reserveCommand() *cli.Command {
	var params reserveParams

	return &cli.Command{
		Name:    "reserve",
		Summary: "Reserve an available machine at a location",
		Description: `Bind a job to the first available machine at a location. The machine
moves to AWAITING_DROPOFF and waits for the laundry to arrive; if the
cycle is not started within the hold window, the reservation expires
and the machine becomes available again.

The service picks the machine: the lowest machine ID that is
AVAILABLE at the location. Fails with not_found when every machine at
the location is taken.`,
		Usage: "washhouse machine reserve <location> --job <job-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Reserve a machine in laundry room 2",
				Command:     "washhouse machine reserve lr-201 --job wash-20260301-044",
			},
			{
				Description: "Reserve and print the record as JSON",
				Command:     "washhouse machine reserve lr-201 --job wash-20260301-044 --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reserve", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.StringVar(&params.Job, "job", "", "job identifier to bind to the reservation")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("location is required\n\nUsage: washhouse machine reserve <location> --job <job-id>")
			}
			if params.Job == "" {
				return fmt.Errorf("--job is required")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			var record machine.Record
			fields := map[string]any{"location": args[0], "job": params.Job}
			if err := client.Call(ctx, "reserve-machine", fields, &record); err != nil {
				return err
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}

			fmt.Fprintf(os.Stderr, "%s reserved at %s for job %s\n", record.ID, record.Location, record.JobID)
			return nil
		},
	}
}
