// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"testing"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

func TestRecordCacheBasics(t *testing.T) {
	cache, err := newRecordCache(8)
	if err != nil {
		t.Fatalf("newRecordCache: %v", err)
	}

	if _, ok := cache.Get("lr-201/washer-04"); ok {
		t.Error("empty cache returned a record")
	}

	record := machine.Record{
		ID:       "lr-201/washer-04",
		Location: "lr-201",
		Status:   machine.StatusAvailable,
	}
	cache.Put(record)

	got, ok := cache.Get("lr-201/washer-04")
	if !ok || got != record {
		t.Errorf("Get = %+v (ok=%t), want the stored record", got, ok)
	}

	// Put replaces.
	record.Status = machine.StatusRunning
	record.JobID = "job-1"
	cache.Put(record)
	got, _ = cache.Get("lr-201/washer-04")
	if got.Status != machine.StatusRunning {
		t.Errorf("replaced status = %s, want RUNNING", got.Status)
	}

	cache.Remove("lr-201/washer-04")
	if _, ok := cache.Get("lr-201/washer-04"); ok {
		t.Error("Get succeeded after Remove")
	}
}

func TestRecordCacheEvictsOldest(t *testing.T) {
	cache, err := newRecordCache(4)
	if err != nil {
		t.Fatalf("newRecordCache: %v", err)
	}

	for i := range 6 {
		cache.Put(machine.Record{
			ID:       fmt.Sprintf("lr-201/washer-%02d", i),
			Location: "lr-201",
			Status:   machine.StatusAvailable,
		})
	}

	if cache.Len() != 4 {
		t.Errorf("cache holds %d records, want the bound of 4", cache.Len())
	}
	if _, ok := cache.Get("lr-201/washer-00"); ok {
		t.Error("oldest record survived past the bound")
	}
	if _, ok := cache.Get("lr-201/washer-05"); !ok {
		t.Error("newest record missing")
	}
}

func TestRecordCacheRejectsBadSize(t *testing.T) {
	if _, err := newRecordCache(0); err == nil {
		t.Error("newRecordCache(0) succeeded, want error")
	}
}
