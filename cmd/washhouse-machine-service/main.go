// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/washhouse-systems/washhouse/lib/accesstoken"
	"github.com/washhouse-systems/washhouse/lib/clock"
	"github.com/washhouse-systems/washhouse/lib/config"
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
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "path to washhouse.yaml (overrides WASHHOUSE_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("washhouse-machine-service")
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	clk := clock.Real()

	publicKey, err := accesstoken.LoadPublicKey(cfg.Auth.PublicKeyPath)
	if err != nil {
		return fmt.Errorf("loading token verification key: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := OpenStore(StoreConfig{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	cache, err := newRecordCache(cfg.Cache.Size)
	if err != nil {
		return err
	}

	gateway, err := newControllerGateway(cfg.Controller.SocketPath, cfg.Controller.TokenPath, cfg.StartTimeout())
	if err != nil {
		return fmt.Errorf("controller gateway: %w", err)
	}

	machineService := &MachineService{
		store:       store,
		cache:       cache,
		gateway:     gateway,
		clock:       clk,
		logger:      logger,
		startedAt:   clk.Now(),
		holdTimeout: cfg.HoldTimeout(),
	}

	authConfig := &service.AuthConfig{
		PublicKey: publicKey,
		Audience:  cfg.Service.Audience,
		Blacklist: accesstoken.NewBlacklist(),
		Clock:     clk,
	}

	socketServer := service.NewSocketServer(cfg.Service.SocketPath, logger, authConfig)
	socketServer.RegisterRevocationHandler()
	machineService.registerActions(socketServer)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- socketServer.Serve(ctx)
	}()

	if machineService.holdTimeout > 0 {
		go machineService.runHoldSweeper(ctx, cfg.SweepInterval())
	} else {
		logger.Info("hold expiry disabled")
	}

	logger.Info("machine service running",
		"socket", cfg.Service.SocketPath,
		"store", cfg.Store.Path,
		"audience", cfg.Service.Audience,
		"hold_timeout", machineService.holdTimeout,
	)

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down")

	// Wait for the socket server to drain active connections.
	if err := <-socketDone; err != nil {
		logger.Error("socket server error", "error", err)
	}

	return nil
}

// MachineService is the core state for the machine lifecycle service.
// The store is authoritative; the cache is advisory and refreshed
// after every store write. The gateway is the only path to physical
// hardware.
type MachineService struct {
	store   *Store
	cache   *recordCache
	gateway CycleGateway
	clock   clock.Clock
	logger  *slog.Logger

	startedAt time.Time

	// holdTimeout is how long a reservation may sit unstarted before
	// the sweeper releases it. Zero disables hold expiry.
	holdTimeout time.Duration

	// opLocks serializes lifecycle operations per machine ID (value
	// type *sync.Mutex). A start's gateway call and the status write
	// that follows must not interleave with another lifecycle
	// operation on the same machine. Entries are never removed: the
	// fleet is bounded by physical machines, and a mutex per machine
	// is cheaper than managing eviction.
	opLocks sync.Map
}

// lockMachine acquires the per-machine operation lock and returns the
// unlock function.
func (s *MachineService) lockMachine(id string) func() {
	entry, _ := s.opLocks.LoadOrStore(id, &sync.Mutex{})
	lock := entry.(*sync.Mutex)
	lock.Lock()
	return lock.Unlock
}
