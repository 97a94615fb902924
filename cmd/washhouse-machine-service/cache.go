// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

// recordCache is the in-process advisory cache of machine records,
// keyed by machine ID. Reads prefer the cache; all writes go to the
// store first and then refresh the cache, so a cached record is at
// worst stale, never fabricated. Lifecycle decisions (whether a start
// is allowed, which machine a reservation picks) never consult the
// cache — those read the store inside its own transaction.
//
// The cache is bounded LRU: a fleet larger than the configured size
// keeps its hottest records cached and rereads the rest on demand.
type recordCache struct {
	records *lru.Cache[string, machine.Record]
}

func newRecordCache(size int) (*recordCache, error) {
	records, err := lru.New[string, machine.Record](size)
	if err != nil {
		return nil, fmt.Errorf("record cache: %w", err)
	}
	return &recordCache{records: records}, nil
}

// Get returns the cached record for a machine ID, if present.
func (c *recordCache) Get(id string) (machine.Record, bool) {
	return c.records.Get(id)
}

// Put caches a record under its machine ID, replacing any previous
// entry.
func (c *recordCache) Put(record machine.Record) {
	c.records.Add(record.ID, record)
}

// Remove drops a machine's cache entry. The next read falls through
// to the store.
func (c *recordCache) Remove(id string) {
	c.records.Remove(id)
}

// Len returns the number of cached records.
func (c *recordCache) Len() int {
	return c.records.Len()
}
