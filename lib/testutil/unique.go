// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now()
// when tests need unique identifiers for job IDs or machine IDs that
// must be distinguishable in a shared store.
//
//	jobID := testutil.UniqueID("job")        // "job-1", "job-2", ...
//	machineID := testutil.UniqueID("washer") // "washer-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
