// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/machine"
)

// showParams holds the parameters for the show command.
type showParams struct {
	machineConnection
	cli.JSONOutput
}

func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show one machine's current record",
		Description: `Display a machine's current status, job binding, and timestamps. The
service answers from its cache when possible, so the record may trail
the store by a moment.`,
		Usage: "washhouse machine show <machine-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Check whether a washer is free",
				Command:     "washhouse machine show lr-201/washer-04",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("machine ID is required\n\nUsage: washhouse machine show <machine-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			var record machine.Record
			fields := map[string]any{"machine": args[0]}
			if err := client.Call(ctx, "get-machine", fields, &record); err != nil {
				return err
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}

			writeRecordDetail(record)
			return nil
		},
	}
}
