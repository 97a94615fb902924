// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"time"

	"github.com/washhouse-systems/washhouse/lib/service"
)

// CycleGateway starts a wash cycle on the physical machine. The
// machine service treats the gateway as a black box: any error —
// refusal, fault report, timeout, broken socket — means the cycle did
// not verifiably start, and the machine is marked ERROR.
//
// StartCycle must not be called concurrently for the same machine;
// the service serializes per-machine lifecycle operations before
// reaching the gateway.
type CycleGateway interface {
	StartCycle(ctx context.Context, machineID string) error
}

// GatewayFunc adapts a plain function to the CycleGateway interface.
type GatewayFunc func(ctx context.Context, machineID string) error

func (f GatewayFunc) StartCycle(ctx context.Context, machineID string) error {
	return f(ctx, machineID)
}

// controllerGateway drives the facility's cycle controller daemon
// over its Unix socket. Each start is one request-response exchange,
// bounded by the configured timeout: a controller that does not
// answer in time counts as a hardware failure, because the cycle
// cannot be confirmed either way.
type controllerGateway struct {
	client  *service.ServiceClient
	timeout time.Duration
}

// newControllerGateway builds a gateway that authenticates to the
// controller with the token at tokenPath.
func newControllerGateway(socketPath, tokenPath string, timeout time.Duration) (*controllerGateway, error) {
	client, err := service.NewServiceClient(socketPath, tokenPath)
	if err != nil {
		return nil, err
	}
	return &controllerGateway{client: client, timeout: timeout}, nil
}

func (g *controllerGateway) StartCycle(ctx context.Context, machineID string) error {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	return g.client.Call(callCtx, "start-cycle", map[string]any{
		"machine": machineID,
	}, nil)
}
