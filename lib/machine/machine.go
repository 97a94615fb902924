// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a machine. The state space is
// closed: exactly four values. Decoding any other value from storage
// or the wire is an error, never a silent passthrough.
type Status string

const (
	// StatusAvailable means the machine is idle and eligible for
	// reservation. No job is bound.
	StatusAvailable Status = "AVAILABLE"

	// StatusAwaitingDropoff means a reservation bound a job to the
	// machine and the system is waiting for the physical drop-off
	// and the start command.
	StatusAwaitingDropoff Status = "AWAITING_DROPOFF"

	// StatusRunning means the hardware confirmed a cycle start and
	// the machine is working the bound job.
	StatusRunning Status = "RUNNING"

	// StatusError means a hardware start failed. The machine keeps
	// the job identifier from the failed attempt for diagnostics and
	// accepts no new reservation until an operator resets it.
	StatusError Status = "ERROR"
)

// Valid reports whether the status is one of the four defined values.
func (s Status) Valid() bool {
	switch s {
	case StatusAvailable, StatusAwaitingDropoff, StatusRunning, StatusError:
		return true
	}
	return false
}

// ParseStatus converts a stored string into a Status. An unknown
// value means corrupted storage or a version mismatch, so it is
// reported as an error rather than passed through.
func ParseStatus(value string) (Status, error) {
	status := Status(value)
	if !status.Valid() {
		return "", fmt.Errorf("unknown machine status %q", value)
	}
	return status, nil
}

// ValidateTransition checks whether a status transition is allowed.
// Returns nil if the transition is valid, or an error naming both
// statuses. Self-transitions are rejected: a second reservation of an
// AWAITING_DROPOFF machine is the contention case, not a no-op.
//
// Allowed transitions:
//   - AVAILABLE -> AWAITING_DROPOFF (reservation)
//   - AWAITING_DROPOFF -> RUNNING (hardware start succeeded)
//   - AWAITING_DROPOFF -> ERROR (hardware start failed)
//   - AWAITING_DROPOFF -> AVAILABLE (hold expired or cancelled)
//   - RUNNING -> AVAILABLE (cycle finished)
//   - RUNNING -> ERROR (fault during the cycle)
//   - ERROR -> AVAILABLE (operator reset)
func ValidateTransition(from, to Status) error {
	switch from {
	case StatusAvailable:
		switch to {
		case StatusAwaitingDropoff:
			return nil
		default:
			return fmt.Errorf("invalid status transition: %s → %s", from, to)
		}
	case StatusAwaitingDropoff:
		switch to {
		case StatusRunning, StatusError, StatusAvailable:
			return nil
		default:
			return fmt.Errorf("invalid status transition: %s → %s", from, to)
		}
	case StatusRunning:
		switch to {
		case StatusAvailable, StatusError:
			return nil
		default:
			return fmt.Errorf("invalid status transition: %s → %s", from, to)
		}
	case StatusError:
		switch to {
		case StatusAvailable:
			return nil
		default:
			return fmt.Errorf("invalid status transition: %s → %s", from, to)
		}
	default:
		return fmt.Errorf("unknown current status: %s", from)
	}
}

// Record is the authoritative state of one machine. The machine
// service's store owns the record; cache copies are advisory and may
// be stale. Timestamps are Unix seconds.
//
// Record uses json tags and therefore serializes to both JSON (CLI
// --json output) and CBOR (socket protocol) with the same field
// names. See the codec package for the tag rules.
type Record struct {
	// ID is the operator-assigned machine identifier, unique across
	// the fleet and stable for the machine's lifetime (e.g.,
	// "lr-201/washer-04").
	ID string `json:"id"`

	// Location is the facility the machine is installed at (e.g.,
	// "lr-201"). Reservation selects among the machines sharing a
	// location.
	Location string `json:"location"`

	// JobID is the job bound to this machine. Empty when AVAILABLE,
	// required while AWAITING_DROPOFF or RUNNING. A machine in ERROR
	// keeps the job identifier from the failed start.
	JobID string `json:"job_id,omitempty"`

	// Status is the lifecycle state. See the Status constants.
	Status Status `json:"status"`

	// ReservedAt is when the current reservation bound its job (Unix
	// seconds). Nonzero exactly while the machine is
	// AWAITING_DROPOFF; the hold sweeper compares it against the
	// hold timeout.
	ReservedAt int64 `json:"reserved_at,omitempty"`

	// UpdatedAt is when the record last changed (Unix seconds).
	UpdatedAt int64 `json:"updated_at"`
}

// Validate checks structural invariants: identifier shapes, a known
// status, the job binding rules for that status, and the reservation
// timestamp rule. Returns an error describing the first violation
// found.
func (r *Record) Validate() error {
	if err := ValidateMachineID(r.ID); err != nil {
		return err
	}
	if err := ValidateLocationID(r.Location); err != nil {
		return fmt.Errorf("machine %s: %w", r.ID, err)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("machine %s: unknown status %q", r.ID, r.Status)
	}
	switch r.Status {
	case StatusAvailable:
		if r.JobID != "" {
			return fmt.Errorf("machine %s: AVAILABLE with job %q (available machines carry no job)", r.ID, r.JobID)
		}
	case StatusAwaitingDropoff, StatusRunning:
		if r.JobID == "" {
			return fmt.Errorf("machine %s: %s without a job identifier", r.ID, r.Status)
		}
	case StatusError:
		// The job from the failed start is retained but not required.
	}
	if r.JobID != "" {
		if err := ValidateJobID(r.JobID); err != nil {
			return fmt.Errorf("machine %s: %w", r.ID, err)
		}
	}
	if r.Status == StatusAwaitingDropoff && r.ReservedAt == 0 {
		return fmt.Errorf("machine %s: AWAITING_DROPOFF without a reservation timestamp", r.ID)
	}
	if r.Status != StatusAwaitingDropoff && r.ReservedAt != 0 {
		return fmt.Errorf("machine %s: reservation timestamp set while %s", r.ID, r.Status)
	}
	return nil
}

// HasJob reports whether a job is bound to this machine.
func (r *Record) HasJob() bool {
	return r.JobID != ""
}

const (
	// maxIdentifierLength bounds machine and location identifiers.
	maxIdentifierLength = 64

	// maxJobIDLength bounds caller-supplied job identifiers.
	maxJobIDLength = 128
)

// allowedChars is the set of characters permitted in machine and
// location identifiers (a-z, 0-9, and the symbols . _ - /).
var allowedChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		allowedChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		allowedChars[c] = true
	}
	allowedChars['.'] = true
	allowedChars['_'] = true
	allowedChars['-'] = true
	allowedChars['/'] = true
}

// ValidateMachineID checks that a machine identifier is well-formed.
// See the package documentation for the grammar.
func ValidateMachineID(id string) error {
	return validateIdentifier(id, "machine id")
}

// ValidateLocationID checks that a location identifier is well-formed.
// Locations share the machine identifier grammar.
func ValidateLocationID(id string) error {
	return validateIdentifier(id, "location id")
}

// validateIdentifier enforces the shared identifier grammar:
// characters restricted to a-z, 0-9, ., _, -, /; no leading or
// trailing /; no empty segments; no segments starting with ".".
func validateIdentifier(value, label string) error {
	if value == "" {
		return fmt.Errorf("%s is empty", label)
	}
	if len(value) > maxIdentifierLength {
		return fmt.Errorf("%s %q is %d characters, maximum is %d", label, value, len(value), maxIdentifierLength)
	}
	for i := 0; i < len(value); i++ {
		if !allowedChars[value[i]] {
			return fmt.Errorf("%s: invalid character %q at position %d (allowed: a-z, 0-9, ., _, -, /)", label, value[i], i)
		}
	}
	if value[0] == '/' {
		return fmt.Errorf("%s must not start with /", label)
	}
	if value[len(value)-1] == '/' {
		return fmt.Errorf("%s must not end with /", label)
	}
	for _, segment := range strings.Split(value, "/") {
		if segment == "" {
			return fmt.Errorf("%s contains empty segment (double slash)", label)
		}
		if segment[0] == '.' {
			return fmt.Errorf("%s segment %q starts with '.'", label, segment)
		}
	}
	return nil
}

// ValidateJobID checks the shape of a caller-supplied job reference:
// non-empty, at most 128 bytes, printable ASCII without spaces. The
// content is otherwise opaque to the service.
func ValidateJobID(id string) error {
	if id == "" {
		return fmt.Errorf("job id is empty")
	}
	if len(id) > maxJobIDLength {
		return fmt.Errorf("job id is %d characters, maximum is %d", len(id), maxJobIDLength)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c <= ' ' || c > '~' {
			return fmt.Errorf("job id: invalid character at position %d (printable ASCII only, no spaces)", i)
		}
	}
	return nil
}
