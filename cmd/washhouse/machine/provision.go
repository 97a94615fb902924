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

// provisionParams holds the parameters for the provision command.
type provisionParams struct {
	machineConnection
	cli.JSONOutput
	Location string
}

func provisionCommand() *cli.Command {
	var params provisionParams

	return &cli.Command{
		Name:    "provision",
		Summary: "Add a new machine to the fleet",
		Description: `Register a machine at a location. The machine starts AVAILABLE and
can be reserved immediately. Machine IDs are fleet-unique and
permanent; provisioning an existing ID fails.`,
		Usage: "washhouse machine provision <machine-id> --location <location> [flags]",
		Examples: []cli.Example{
			{
				Description: "Install a new washer in laundry room 2",
				Command:     "washhouse machine provision lr-201/washer-09 --location lr-201",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("provision", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.StringVar(&params.Location, "location", "", "location the machine is installed at")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("machine ID is required\n\nUsage: washhouse machine provision <machine-id> --location <location>")
			}
			if params.Location == "" {
				return fmt.Errorf("--location is required")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			var record machine.Record
			fields := map[string]any{"machine": args[0], "location": params.Location}
			if err := client.Call(ctx, "provision-machine", fields, &record); err != nil {
				return err
			}

			if done, err := params.EmitJSON(record); done {
				return err
			}

			fmt.Fprintf(os.Stderr, "%s provisioned at %s\n", record.ID, record.Location)
			return nil
		},
	}
}
