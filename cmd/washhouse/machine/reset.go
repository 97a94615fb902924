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

// resetParams holds the parameters for the reset command.
type resetParams struct {
	machineConnection
	cli.JSONOutput
}

func resetCommand() *cli.Command {
	var params resetParams

	return &cli.Command{
		Name:    "reset",
		Summary: "Return a faulted machine to service",
		Description: `Clear a machine's ERROR state after the underlying hardware problem
has been dealt with. The machine returns to AVAILABLE with no job
bound. Only machines in ERROR can be reset.`,
		Usage: "washhouse machine reset <machine-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Put a repaired washer back in service",
				Command:     "washhouse machine reset lr-201/washer-04",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reset", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("machine ID is required\n\nUsage: washhouse machine reset <machine-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			var record machine.Record
			fields := map[string]any{"machine": args[0]}
			if err := client.Call(ctx, "reset-machine", fields, &record); err != nil {
				return describeFailure(err)
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}

			fmt.Fprintf(os.Stderr, "%s reset, machine available\n", record.ID)
			return nil
		},
	}
}
