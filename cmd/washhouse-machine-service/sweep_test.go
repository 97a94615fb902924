// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"testing"
	"time"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

func TestExpireHoldsReleasesAndRefreshesCache(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()

	reserveTestMachine(t, svc, "lr-201/washer-04", "lr-201", "job-1")

	// Not yet expired: nothing happens.
	released, err := svc.ExpireHolds(ctx)
	if err != nil {
		t.Fatalf("ExpireHolds: %v", err)
	}
	if len(released) != 0 {
		t.Fatalf("ExpireHolds released %d fresh holds, want 0", len(released))
	}

	fakeClock.Advance(testHoldTimeout + time.Second)

	released, err = svc.ExpireHolds(ctx)
	if err != nil {
		t.Fatalf("ExpireHolds: %v", err)
	}
	if len(released) != 1 {
		t.Fatalf("ExpireHolds released %d holds, want 1", len(released))
	}
	if released[0].Status != machine.StatusAvailable {
		t.Errorf("released status = %s, want AVAILABLE", released[0].Status)
	}

	cached, ok := svc.cache.Get("lr-201/washer-04")
	if !ok {
		t.Fatal("released machine missing from cache")
	}
	if cached.Status != machine.StatusAvailable || cached.JobID != "" {
		t.Errorf("cache = %s/%q, want AVAILABLE with no job", cached.Status, cached.JobID)
	}
}

func TestExpireHoldsDisabled(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()

	svc.holdTimeout = 0

	reserveTestMachine(t, svc, "lr-201/washer-04", "lr-201", "job-1")
	fakeClock.Advance(24 * time.Hour)

	released, err := svc.ExpireHolds(ctx)
	if err != nil {
		t.Fatalf("ExpireHolds: %v", err)
	}
	if released != nil {
		t.Errorf("ExpireHolds released %d holds with expiry disabled, want none", len(released))
	}

	record, err := svc.store.GetMachine(ctx, "lr-201/washer-04")
	if err != nil {
		t.Fatalf("GetMachine: %v", err)
	}
	if record.Status != machine.StatusAwaitingDropoff {
		t.Errorf("status = %s, want the hold untouched", record.Status)
	}
}

func TestHoldSweeperReleasesOnTick(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reserveTestMachine(t, svc, "lr-201/washer-04", "lr-201", "job-1")

	go svc.runHoldSweeper(ctx, time.Minute)

	// Wait for the sweeper's ticker to arm, then move time past the
	// hold timeout so the next tick finds the hold expired.
	fakeClock.WaitForTimers(1)
	fakeClock.Advance(testHoldTimeout + time.Minute)

	deadline := time.Now().Add(5 * time.Second)
	for {
		record, err := svc.store.GetMachine(ctx, "lr-201/washer-04")
		if err != nil {
			t.Fatalf("GetMachine: %v", err)
		}
		if record.Status == machine.StatusAvailable {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("hold not released; machine still %s", record.Status)
		}
		time.Sleep(time.Millisecond)
	}
}
