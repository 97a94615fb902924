// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
)

// statusParams holds the parameters for the status command.
type statusParams struct {
	machineConnection
	cli.JSONOutput
}

// serviceStatusResponse mirrors the machine service's status action
// response.
type serviceStatusResponse struct {
	UptimeSeconds      int              `cbor:"uptime_seconds"`
	TotalMachines      int64            `cbor:"total_machines"`
	MachinesByStatus   map[string]int64 `cbor:"machines_by_status"`
	Locations          int64            `cbor:"locations"`
	HoldTimeoutSeconds int              `cbor:"hold_timeout_seconds"`
}

// statusResult is the JSON output of the status command.
type statusResult struct {
	UptimeSeconds      int              `json:"uptime_seconds"`
	TotalMachines      int64            `json:"total_machines"`
	MachinesByStatus   map[string]int64 `json:"machines_by_status"`
	Locations          int64            `json:"locations"`
	HoldTimeoutSeconds int              `json:"hold_timeout_seconds"`
}

// StatusCommand returns the root-level "status" command. Status is
// the one unauthenticated action the machine service exposes, so the
// command sends no token and ignores --token-file.
func StatusCommand() *cli.Command {
	var params statusParams

	return &cli.Command{
		Name:    "status",
		Summary: "Show machine service status",
		Description: `Display machine service health: uptime, fleet size, the status
breakdown, and the configured hold timeout. Requires no token.`,
		Usage: "washhouse status [flags]",
		Examples: []cli.Example{
			{
				Description: "Check the service is up",
				Command:     "washhouse status",
			},
			{
				Description: "Status as JSON",
				Command:     "washhouse status --json",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			params.machineConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			client := params.Unauthenticated()

			ctx, cancel := callContext()
			defer cancel()

			var response serviceStatusResponse
			if err := client.Call(ctx, "status", nil, &response); err != nil {
				return err
			}

			if done, err := params.EmitJSON(statusResult(response)); done {
				return err
			}

			uptime := time.Duration(response.UptimeSeconds) * time.Second
			holdTimeout := time.Duration(response.HoldTimeoutSeconds) * time.Second

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "Uptime:\t%s\n", formatDuration(uptime))
			fmt.Fprintf(writer, "Machines:\t%d\n", response.TotalMachines)
			fmt.Fprintf(writer, "Locations:\t%d\n", response.Locations)
			if response.HoldTimeoutSeconds > 0 {
				fmt.Fprintf(writer, "Hold timeout:\t%s\n", formatDuration(holdTimeout))
			} else {
				fmt.Fprintf(writer, "Hold timeout:\tdisabled\n")
			}

			statuses := make([]string, 0, len(response.MachinesByStatus))
			for status := range response.MachinesByStatus {
				statuses = append(statuses, status)
			}
			sort.Strings(statuses)
			for _, status := range statuses {
				fmt.Fprintf(writer, "  %s:\t%d\n", status, response.MachinesByStatus[status])
			}
			writer.Flush()
			return nil
		},
	}
}
