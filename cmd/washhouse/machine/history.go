// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/machine"
)

// historyParams holds the parameters for the history command.
type historyParams struct {
	machineConnection
	cli.JSONOutput
	Limit int
}

// historyResponse mirrors the machine service's machine-history
// response.
type historyResponse struct {
	Events []machine.TransitionEvent `cbor:"events"`
}

func historyCommand() *cli.Command {
	var params historyParams

	return &cli.Command{
		Name:    "history",
		Summary: "Show a machine's transition history",
		Description: `Display the audit trail for one machine, newest first. Every status
change the service has ever made to the machine is recorded:
reservations, cycle starts, hardware failures, hold expiries, and
operator resets.`,
		Usage: "washhouse machine history <machine-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "See what happened to a machine recently",
				Command:     "washhouse machine history lr-201/washer-04",
			},
			{
				Description: "Pull a longer trail as JSON",
				Command:     "washhouse machine history lr-201/washer-04 --limit 200 --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.IntVar(&params.Limit, "limit", 0, "maximum events to return (0 uses the service default)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("machine ID is required\n\nUsage: washhouse machine history <machine-id>")
			}

			client, err := params.Connect()
			if err != nil {
				return err
			}

			ctx, cancel := callContext()
			defer cancel()

			fields := map[string]any{"machine": args[0]}
			if params.Limit > 0 {
				fields["limit"] = params.Limit
			}

			var response historyResponse
			if err := client.Call(ctx, "machine-history", fields, &response); err != nil {
				return err
			}

			if done, err := params.EmitJSON(response.Events); done {
				return err
			}

			if len(response.Events) == 0 {
				fmt.Println("no events")
				return nil
			}

			writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintf(writer, "TIME\tFROM\tTO\tJOB\tREASON\n")
			for _, event := range response.Events {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					formatTime(event.CreatedAt),
					orDash(string(event.From)),
					event.To,
					orDash(event.JobID),
					event.Reason,
				)
			}
			writer.Flush()
			return nil
		},
	}
}
