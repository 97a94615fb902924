// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

// InvalidStateError reports a lifecycle operation on a machine whose
// current status does not permit it. Record is the machine's actual
// state at decision time, so the caller can see what it collided
// with; Wanted is the status the operation required.
type InvalidStateError struct {
	Record machine.Record
	Wanted machine.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("machine %s is %s, not %s", e.Record.ID, e.Record.Status, e.Wanted)
}

// CycleError reports a hardware start failure. Record is the
// machine's post-failure state — status ERROR, job still bound for
// diagnosis. Err is the gateway's underlying error.
type CycleError struct {
	Record machine.Record
	Err    error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle start failed on %s: %v", e.Record.ID, e.Err)
}

func (e *CycleError) Unwrap() error {
	return e.Err
}

// Start begins the wash cycle on a reserved machine. The sequencing
// is the heart of the service: the hardware call must succeed before
// the ledger says RUNNING, and a hardware failure must land in the
// ledger as ERROR. The per-machine lock keeps a second start (or a
// finish) from interleaving with the hardware call; the hold sweeper
// does not take the lock, so the final transition re-checks that the
// reservation survived — including that it is still the same job's
// reservation, not a fresh hold granted after a sweep.
func (s *MachineService) Start(ctx context.Context, machineID string) (machine.Record, error) {
	if err := machine.ValidateMachineID(machineID); err != nil {
		return machine.Record{}, err
	}

	unlock := s.lockMachine(machineID)
	defer unlock()

	record, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		return machine.Record{}, err
	}
	if record.Status != machine.StatusAwaitingDropoff {
		return record, &InvalidStateError{Record: record, Wanted: machine.StatusAwaitingDropoff}
	}

	cycleErr := s.gateway.StartCycle(ctx, machineID)
	if cycleErr != nil {
		updated, err := s.store.Transition(ctx, machineID,
			machine.StatusAwaitingDropoff, machine.StatusError,
			TransitionOptions{ExpectJob: record.JobID, Reason: "cycle-start-failed"})
		if err != nil {
			if errors.Is(err, ErrStatusChanged) {
				// The reservation disappeared while the hardware call
				// was in flight (hold expired, possibly re-reserved).
				// The failed start belongs to nobody now; do not mark
				// someone else's machine ERROR.
				s.logger.Warn("cycle start failed on a lapsed reservation",
					"machine", machineID,
					"status", updated.Status,
					"error", cycleErr,
				)
				s.cache.Put(updated)
				return updated, &InvalidStateError{Record: updated, Wanted: machine.StatusAwaitingDropoff}
			}
			return machine.Record{}, fmt.Errorf("recording cycle failure for %s: %w", machineID, err)
		}

		s.cache.Put(updated)
		s.logger.Error("cycle start failed",
			"machine", machineID,
			"job", record.JobID,
			"error", cycleErr,
		)
		return updated, &CycleError{Record: updated, Err: cycleErr}
	}

	updated, err := s.store.Transition(ctx, machineID,
		machine.StatusAwaitingDropoff, machine.StatusRunning,
		TransitionOptions{ExpectJob: record.JobID, Reason: "cycle-started"})
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			s.cache.Put(updated)
			return updated, &InvalidStateError{Record: updated, Wanted: machine.StatusAwaitingDropoff}
		}
		return machine.Record{}, fmt.Errorf("recording cycle start for %s: %w", machineID, err)
	}

	s.cache.Put(updated)
	s.logger.Info("cycle started",
		"machine", machineID,
		"job", updated.JobID,
	)
	return updated, nil
}

// FinishCycle returns a RUNNING machine to AVAILABLE and unbinds its
// job. Called when the cycle completes (controller callback or
// operator action).
func (s *MachineService) FinishCycle(ctx context.Context, machineID string) (machine.Record, error) {
	if err := machine.ValidateMachineID(machineID); err != nil {
		return machine.Record{}, err
	}

	unlock := s.lockMachine(machineID)
	defer unlock()

	updated, err := s.store.Transition(ctx, machineID,
		machine.StatusRunning, machine.StatusAvailable,
		TransitionOptions{ClearJob: true, Reason: "cycle-finished"})
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			s.cache.Put(updated)
			return updated, &InvalidStateError{Record: updated, Wanted: machine.StatusRunning}
		}
		return machine.Record{}, err
	}

	s.cache.Put(updated)
	s.logger.Info("cycle finished", "machine", machineID)
	return updated, nil
}

// ResetMachine returns an ERROR machine to AVAILABLE after an
// operator has inspected it. The job binding is cleared.
func (s *MachineService) ResetMachine(ctx context.Context, machineID string) (machine.Record, error) {
	if err := machine.ValidateMachineID(machineID); err != nil {
		return machine.Record{}, err
	}

	unlock := s.lockMachine(machineID)
	defer unlock()

	updated, err := s.store.Transition(ctx, machineID,
		machine.StatusError, machine.StatusAvailable,
		TransitionOptions{ClearJob: true, Reason: "operator-reset"})
	if err != nil {
		if errors.Is(err, ErrStatusChanged) {
			s.cache.Put(updated)
			return updated, &InvalidStateError{Record: updated, Wanted: machine.StatusError}
		}
		return machine.Record{}, err
	}

	s.cache.Put(updated)
	s.logger.Info("machine reset", "machine", machineID)
	return updated, nil
}
