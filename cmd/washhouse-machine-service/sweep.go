// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"time"

	"github.com/washhouse-systems/washhouse/lib/machine"
)

// runHoldSweeper periodically releases reservations that were never
// started. Runs until the context is cancelled. The caller skips
// starting the sweeper entirely when hold expiry is disabled.
func (s *MachineService) runHoldSweeper(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("hold sweeper running",
		"timeout", s.holdTimeout,
		"interval", interval,
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireHolds(ctx); err != nil {
				s.logger.Error("hold sweep failed", "error", err)
			}
		}
	}
}

// ExpireHolds releases every reservation older than the hold timeout
// and returns the released machines. A zero timeout disables expiry
// and releases nothing. Also exposed as an action so an operator can
// force a sweep without waiting for the ticker.
func (s *MachineService) ExpireHolds(ctx context.Context) ([]machine.Record, error) {
	if s.holdTimeout <= 0 {
		return nil, nil
	}

	cutoff := s.clock.Now().Add(-s.holdTimeout)
	released, err := s.store.ExpireHolds(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	for _, record := range released {
		s.cache.Put(record)
		s.logger.Info("hold expired",
			"machine", record.ID,
			"location", record.Location,
		)
	}
	return released, nil
}
