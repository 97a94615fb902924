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

// finishParams holds the parameters for the finish command.
type finishParams struct {
	machineConnection
	cli.JSONOutput
}

func finishCommand() *cli.Command {
	var params finishParams

	return &cli.Command{
		Name:    "finish",
		Summary: "Mark a running machine's cycle as finished",
		Description: `Return a RUNNING machine to AVAILABLE once its cycle has completed
and the laundry has been collected. The job binding is released.`,
		Usage: "washhouse machine finish <machine-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Release a machine after unloading",
				Command:     "washhouse machine finish lr-201/washer-04",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("finish", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("machine ID is required\n\nUsage: washhouse machine finish <machine-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			var record machine.Record
			fields := map[string]any{"machine": args[0]}
			if err := client.Call(ctx, "finish-cycle", fields, &record); err != nil {
				return describeFailure(err)
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}

			fmt.Fprintf(os.Stderr, "cycle finished on %s, machine available\n", record.ID)
			return nil
		},
	}
}
