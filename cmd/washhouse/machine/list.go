// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/machine"
)

// listParams holds the parameters for the list command.
type listParams struct {
	machineConnection
	cli.JSONOutput
	Location string
}

// listResponse mirrors the machine service's list-machines response.
type listResponse struct {
	Machines []machine.Record `cbor:"machines"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List machines and their current status",
		Description: `List every machine in the fleet, or only the machines at one location
with --location. Records come straight from the store, bypassing the
cache, so the listing is authoritative.`,
		Usage: "washhouse machine list [flags]",
		Examples: []cli.Example{
			{
				Description: "List the whole fleet",
				Command:     "washhouse machine list",
			},
			{
				Description: "List the machines in laundry room 2 as JSON",
				Command:     "washhouse machine list --location lr-201 --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.StringVar(&params.Location, "location", "", "only machines at this location")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			fields := map[string]any{}
			if params.Location != "" {
				fields["location"] = params.Location
			}

			var response listResponse
			if err := client.Call(ctx, "list-machines", fields, &response); err != nil {
				return err
			}

			if done, err := params.EmitJSON(response.Machines); done {
				return err
			}

			if len(response.Machines) == 0 {
				fmt.Println("no machines")
				return nil
			}
			writeRecordTable(response.Machines)
			return nil
		},
	}
}
