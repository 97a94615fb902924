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

// expireParams holds the parameters for the expire-holds command.
type expireParams struct {
	machineConnection
	cli.JSONOutput
}

// expireResponse mirrors the machine service's expire-holds response.
type expireResponse struct {
	Released []machine.Record `cbor:"released"`
	Count    int              `cbor:"count"`
}

// expireResult is the JSON output of the expire-holds command.
type expireResult struct {
	Released []machine.Record `json:"released"`
	Count    int              `json:"count"`
}

func expireCommand() *cli.Command {
	var params expireParams

	return &cli.Command{
		Name:    "expire-holds",
		Summary: "Release reservations whose hold window has passed",
		Description: `Sweep the fleet for machines stuck in AWAITING_DROPOFF past the hold
timeout and release them back to AVAILABLE. The service runs this
sweep on its own schedule; the command forces one immediately.

Requires the machine/admin grant.`,
		Usage: "washhouse machine expire-holds [flags]",
		Examples: []cli.Example{
			{
				Description: "Force a hold sweep",
				Command:     "washhouse machine expire-holds",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("expire-holds", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
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

			var response expireResponse
			if err := client.Call(ctx, "expire-holds", nil, &response); err != nil {
				return err
			}

			if done, err := params.EmitJSON(expireResult(response)); done {
				return err
			}

			if response.Count == 0 {
				fmt.Fprintf(os.Stderr, "no expired holds\n")
				return nil
			}
			for _, record := range response.Released {
				fmt.Fprintf(os.Stderr, "released %s at %s\n", record.ID, record.Location)
			}
			fmt.Fprintf(os.Stderr, "%d hold(s) expired\n", response.Count)
			return nil
		},
	}
}
