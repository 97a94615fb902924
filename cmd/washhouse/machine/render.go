// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/washhouse-systems/washhouse/lib/machine"
	"github.com/washhouse-systems/washhouse/lib/service"
)

// formatTime renders a Unix-seconds timestamp, or "-" when unset.
func formatTime(unixSeconds int64) string {
	if unixSeconds == 0 {
		return "-"
	}
	return time.Unix(unixSeconds, 0).Format(time.RFC3339)
}

// orDash substitutes "-" for an empty string in table cells.
func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

// writeRecordTable renders machine records as a table on stdout.
func writeRecordTable(records []machine.Record) {
	writer := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(writer, "MACHINE\tLOCATION\tSTATUS\tJOB\tRESERVED\tUPDATED\n")
	for _, record := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			record.ID,
			record.Location,
			record.Status,
			orDash(record.JobID),
			formatTime(record.ReservedAt),
			formatTime(record.UpdatedAt),
		)
	}
	writer.Flush()
}

// writeRecordDetail renders one machine record as a key-value block
// on stdout.
func writeRecordDetail(record machine.Record) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Machine:\t%s\n", record.ID)
	fmt.Fprintf(writer, "Location:\t%s\n", record.Location)
	fmt.Fprintf(writer, "Status:\t%s\n", record.Status)
	fmt.Fprintf(writer, "Job:\t%s\n", orDash(record.JobID))
	fmt.Fprintf(writer, "Reserved at:\t%s\n", formatTime(record.ReservedAt))
	fmt.Fprintf(writer, "Updated at:\t%s\n", formatTime(record.UpdatedAt))
	writer.Flush()
}

// describeFailure appends the machine's actual state to invalid_state
// and hardware_error failures, which carry the current record as
// failure detail. Other errors pass through unchanged.
func describeFailure(err error) error {
	var serviceErr *service.ServiceError
	if !errors.As(err, &serviceErr) {
		return err
	}
	if serviceErr.Code != service.CodeInvalidState && serviceErr.Code != service.CodeHardwareError {
		return err
	}

	var record machine.Record
	ok, decodeErr := serviceErr.DecodeData(&record)
	if !ok || decodeErr != nil {
		return err
	}

	if record.JobID != "" {
		return fmt.Errorf("%w\nmachine %s is now %s (job %s)", err, record.ID, record.Status, record.JobID)
	}
	return fmt.Errorf("%w\nmachine %s is now %s", err, record.ID, record.Status)
}

// formatDuration formats a duration as a human-readable string with
// days, hours, minutes, and seconds.
func formatDuration(duration time.Duration) string {
	days := int(duration.Hours()) / 24
	hours := int(duration.Hours()) % 24
	minutes := int(duration.Minutes()) % 60
	seconds := int(duration.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
