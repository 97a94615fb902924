// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

func TestGetMachinePrefersCache(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "lr-201/washer-04", "lr-201"); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	// Plant a deliberately stale cache entry. GetMachine must serve
	// it without consulting the store — staleness is the documented
	// trade of the read path.
	stale := machine.Record{
		ID:       "lr-201/washer-04",
		Location: "lr-201",
		JobID:    "job-ghost",
		Status:   machine.StatusRunning,
	}
	svc.cache.Put(stale)

	got, err := svc.GetMachine(ctx, "lr-201/washer-04")
	if err != nil {
		t.Fatalf("GetMachine: %v", err)
	}
	if got != stale {
		t.Errorf("GetMachine = %+v, want the cached record", got)
	}
}

func TestGetMachineMissReadsStoreAndRepopulates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "lr-201/washer-04", "lr-201"); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	svc.cache.Remove("lr-201/washer-04")

	got, err := svc.GetMachine(ctx, "lr-201/washer-04")
	if err != nil {
		t.Fatalf("GetMachine: %v", err)
	}
	if got.Status != machine.StatusAvailable {
		t.Errorf("status = %s, want AVAILABLE from the store", got.Status)
	}

	cached, ok := svc.cache.Get("lr-201/washer-04")
	if !ok {
		t.Fatal("cache not repopulated after miss")
	}
	if cached != got {
		t.Errorf("cache = %+v, store read = %+v", cached, got)
	}
}

func TestGetMachineNotFoundPropagates(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetMachine(context.Background(), "lr-201/washer-99")
	if !errors.Is(err, ErrMachineNotFound) {
		t.Errorf("GetMachine error = %v, want ErrMachineNotFound", err)
	}
}

func TestGetMachineRejectsBadID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.GetMachine(context.Background(), "LR-201/WASHER")
	if err == nil {
		t.Fatal("GetMachine accepted an uppercase ID")
	}
}

func TestListMachinesBypassesCache(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "lr-201/washer-04", "lr-201"); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	// A stale cache entry must not leak into listings.
	svc.cache.Put(machine.Record{
		ID:       "lr-201/washer-04",
		Location: "lr-201",
		JobID:    "job-ghost",
		Status:   machine.StatusRunning,
	})

	records, err := svc.ListMachines(ctx, "lr-201")
	if err != nil {
		t.Fatalf("ListMachines: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ListMachines returned %d records, want 1", len(records))
	}
	if records[0].Status != machine.StatusAvailable {
		t.Errorf("listed status = %s, want the store's AVAILABLE", records[0].Status)
	}
}

func TestListMachinesAllLocations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Provision(ctx, "lr-202/washer-01", "lr-202"); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if _, err := svc.Provision(ctx, "lr-201/washer-01", "lr-201"); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	records, err := svc.ListMachines(ctx, "")
	if err != nil {
		t.Fatalf("ListMachines: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("ListMachines returned %d records, want 2", len(records))
	}
	if records[0].Location != "lr-201" {
		t.Errorf("first record location = %s, want lr-201 (location order)", records[0].Location)
	}
}
