// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

// Reserve binds a job to the first available machine at a location
// and places the machine in AWAITING_DROPOFF. The store performs the
// selection and the status write atomically, so any number of
// concurrent reservations for the same location each get a distinct
// machine (or ErrNoAvailableMachine once the location is drained).
// The cache never participates in the decision — an available-looking
// cached record proves nothing by the time a write lands.
func (s *MachineService) Reserve(ctx context.Context, location, jobID string) (machine.Record, error) {
	if err := machine.ValidateLocationID(location); err != nil {
		return machine.Record{}, err
	}
	if err := machine.ValidateJobID(jobID); err != nil {
		return machine.Record{}, err
	}

	record, err := s.store.ReserveAvailable(ctx, location, jobID)
	if err != nil {
		return machine.Record{}, err
	}

	s.cache.Put(record)
	s.logger.Info("machine reserved",
		"machine", record.ID,
		"location", location,
		"job", jobID,
	)
	return record, nil
}

// Provision adds a new machine to the fleet in status AVAILABLE.
func (s *MachineService) Provision(ctx context.Context, machineID, location string) (machine.Record, error) {
	if err := machine.ValidateMachineID(machineID); err != nil {
		return machine.Record{}, err
	}
	if err := machine.ValidateLocationID(location); err != nil {
		return machine.Record{}, err
	}

	record, err := s.store.CreateMachine(ctx, machineID, location)
	if err != nil {
		return machine.Record{}, err
	}

	s.cache.Put(record)
	s.logger.Info("machine provisioned",
		"machine", record.ID,
		"location", location,
	)
	return record, nil
}
