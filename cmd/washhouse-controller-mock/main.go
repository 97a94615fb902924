// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Washhouse-controller-mock stands in for the facility's cycle
// controller in integration tests and local development. The machine
// service talks to it over the same Unix socket protocol as the real
// controller hardware bridge; the mock confirms every start by
// default, records each command in memory, and can be scripted to
// fail upcoming starts so callers can exercise the hardware failure
// path end to end.
//
// The binary exposes four actions:
//   - status (unauthenticated): uptime plus command and failure counts
//   - start-cycle (authenticated): confirm a cycle start, or fail if scripted
//   - set-failure (authenticated): make the next N starts report a fault
//   - list-commands (authenticated): every command received, in order
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/washhouse-systems/washhouse/lib/accesstoken"
	"github.com/washhouse-systems/washhouse/lib/clock"
	"github.com/washhouse-systems/washhouse/lib/codec"
	"github.com/washhouse-systems/washhouse/lib/process"
	"github.com/washhouse-systems/washhouse/lib/service"
	"github.com/washhouse-systems/washhouse/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var socketPath string
	var publicKeyPath string
	var audience string
	var showVersion bool
	flag.StringVar(&socketPath, "socket", "", "path for the controller's Unix socket (required)")
	flag.StringVar(&publicKeyPath, "public-key", "", "path to the token verification public key (required)")
	flag.StringVar(&audience, "audience", "controller", "audience accepted in presented tokens")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("washhouse-controller-mock")
		return nil
	}
	if socketPath == "" {
		return errors.New("--socket is required")
	}
	if publicKeyPath == "" {
		return errors.New("--public-key is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	clk := clock.Real()

	publicKey, err := accesstoken.LoadPublicKey(publicKeyPath)
	if err != nil {
		return fmt.Errorf("loading token verification key: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mock := &controllerMock{
		clock:     clk,
		startedAt: clk.Now(),
	}

	authConfig := &service.AuthConfig{
		PublicKey: publicKey,
		Audience:  audience,
		Blacklist: accesstoken.NewBlacklist(),
		Clock:     clk,
	}

	socketServer := service.NewSocketServer(socketPath, logger, authConfig)
	socketServer.RegisterRevocationHandler()

	socketServer.Handle("status", mock.handleStatus)
	socketServer.HandleAuth("start-cycle", mock.handleStartCycle)
	socketServer.HandleAuth("set-failure", mock.handleSetFailure)
	socketServer.HandleAuth("list-commands", mock.handleListCommands)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	logger.Info("controller mock running",
		"socket", socketPath,
		"audience", audience,
	)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	return nil
}

// controllerMock confirms cycle starts and records every command for
// test assertions. Failures are scripted: set-failure arms a counter
// and the next N starts report a hardware fault instead of confirming.
type controllerMock struct {
	clock     clock.Clock
	startedAt time.Time

	mu           sync.Mutex
	commands     []commandRecord
	failuresLeft int

	starts atomic.Uint64
}

// commandRecord is one received start command.
type commandRecord struct {
	Machine    string `cbor:"machine"`
	ReceivedAt int64  `cbor:"received_at"`
	Failed     bool   `cbor:"failed"`
}

// mockStatusResponse is the CBOR response for the unauthenticated
// "status" action.
type mockStatusResponse struct {
	UptimeSeconds float64 `cbor:"uptime_seconds"`
	Starts        uint64  `cbor:"starts"`
	FailuresLeft  int     `cbor:"failures_left"`
	Commands      int     `cbor:"commands"`
}

func (m *controllerMock) handleStatus(_ context.Context, _ []byte) (any, error) {
	m.mu.Lock()
	commandCount := len(m.commands)
	failuresLeft := m.failuresLeft
	m.mu.Unlock()

	return mockStatusResponse{
		UptimeSeconds: m.clock.Now().Sub(m.startedAt).Seconds(),
		Starts:        m.starts.Load(),
		FailuresLeft:  failuresLeft,
		Commands:      commandCount,
	}, nil
}

// startCycleRequest matches the request the machine service's gateway
// sends.
type startCycleRequest struct {
	Machine string `cbor:"machine"`
}

// startCycleResponse confirms a started cycle.
type startCycleResponse struct {
	Machine   string `cbor:"machine"`
	StartedAt int64  `cbor:"started_at"`
}

func (m *controllerMock) handleStartCycle(_ context.Context, _ *accesstoken.Token, raw []byte) (any, error) {
	var request startCycleRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Machine == "" {
		return nil, fmt.Errorf("missing required field: machine")
	}

	now := m.clock.Now().Unix()

	m.mu.Lock()
	failed := m.failuresLeft > 0
	if failed {
		m.failuresLeft--
	}
	m.commands = append(m.commands, commandRecord{
		Machine:    request.Machine,
		ReceivedAt: now,
		Failed:     failed,
	})
	m.mu.Unlock()
	m.starts.Add(1)

	if failed {
		return nil, &service.Error{
			Code:    service.CodeHardwareError,
			Message: fmt.Sprintf("scripted fault: cycle start refused for %s", request.Machine),
		}
	}

	return startCycleResponse{
		Machine:   request.Machine,
		StartedAt: now,
	}, nil
}

// setFailureRequest arms the scripted failure counter.
type setFailureRequest struct {
	Count int `cbor:"count"`
}

// setFailureResponse reports the armed counter.
type setFailureResponse struct {
	FailuresLeft int `cbor:"failures_left"`
}

func (m *controllerMock) handleSetFailure(_ context.Context, _ *accesstoken.Token, raw []byte) (any, error) {
	var request setFailureRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Count < 0 {
		return nil, fmt.Errorf("count must be non-negative, got %d", request.Count)
	}

	m.mu.Lock()
	m.failuresLeft = request.Count
	m.mu.Unlock()

	return setFailureResponse{FailuresLeft: request.Count}, nil
}

// listCommandsResponse is the CBOR response for "list-commands".
type listCommandsResponse struct {
	Commands []commandRecord `cbor:"commands"`
	Count    int             `cbor:"count"`
}

func (m *controllerMock) handleListCommands(_ context.Context, _ *accesstoken.Token, _ []byte) (any, error) {
	m.mu.Lock()
	commands := make([]commandRecord, len(m.commands))
	copy(commands, m.commands)
	m.mu.Unlock()

	return listCommandsResponse{
		Commands: commands,
		Count:    len(commands),
	}, nil
}
