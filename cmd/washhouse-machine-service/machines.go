// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

// GetMachine resolves a machine's current record, preferring the
// advisory cache. A cache miss reads the store and repopulates the
// entry. The result may trail the store by a write — callers that act
// on status (Start, the reservation path) read the store themselves.
func (s *MachineService) GetMachine(ctx context.Context, machineID string) (machine.Record, error) {
	if err := machine.ValidateMachineID(machineID); err != nil {
		return machine.Record{}, err
	}

	if record, ok := s.cache.Get(machineID); ok {
		return record, nil
	}

	record, err := s.store.GetMachine(ctx, machineID)
	if err != nil {
		return machine.Record{}, err
	}
	s.cache.Put(record)
	return record, nil
}

// ListMachines returns machines in ledger order: every machine when
// location is empty (ordered by location then ID), or one location's
// machines ordered by ID. Listings always read the store — a list
// assembled from the cache would mix ages and miss evicted records.
func (s *MachineService) ListMachines(ctx context.Context, location string) ([]machine.Record, error) {
	if location == "" {
		return s.store.ListMachines(ctx)
	}
	if err := machine.ValidateLocationID(location); err != nil {
		return nil, err
	}
	return s.store.ListAtLocation(ctx, location)
}

// MachineHistory returns a machine's audit trail, newest first.
func (s *MachineService) MachineHistory(ctx context.Context, machineID string, limit int) ([]machine.TransitionEvent, error) {
	if err := machine.ValidateMachineID(machineID); err != nil {
		return nil, err
	}
	return s.store.MachineHistory(ctx, machineID, limit)
}

// Stats returns ledger-wide counts for the status endpoint.
func (s *MachineService) Stats(ctx context.Context) (StoreStats, error) {
	return s.store.Stats(ctx)
}
