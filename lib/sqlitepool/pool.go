// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool

import (
	"context"
	"fmt"
	"log/slog"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// defaultPoolSize is used when Config.PoolSize is zero or negative.
// SQLite serializes writes regardless of pool size, so extra
// connections only help concurrent readers; four covers the machine
// service's kiosk read traffic alongside the sweeper's writes.
const defaultPoolSize = 4

// ledgerPragmas are applied to every connection before the schema.
//
// WAL keeps reads from blocking the single writer. synchronous=NORMAL
// gives process-crash durability without an fsync per commit; the
// physical fleet is the ultimate arbiter for anything lost to a power
// failure. foreign_keys stays off so audit rows outlive a machine row
// removed by hand. busy_timeout absorbs writer contention instead of
// surfacing SQLITE_BUSY to handlers.
var ledgerPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA foreign_keys=OFF",
	"PRAGMA temp_store=MEMORY",
}

// Config holds the parameters for opening a SQLite connection pool.
// Path is required; everything else has a default.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist; the file is created on first open.
	// ":memory:" works for tests, but only with PoolSize 1 — each
	// in-memory connection is its own database.
	Path string

	// PoolSize is the number of connections in the pool. Zero or
	// negative means defaultPoolSize.
	PoolSize int

	// Schema is an idempotent SQL script (CREATE TABLE IF NOT EXISTS
	// and friends) applied to every connection after the pragmas.
	// Running it per connection is what makes a fresh database ready
	// on first Take without a separate migration step. Empty means no
	// schema.
	Schema string

	// Logger receives pool open and close messages. If nil, a no-op
	// logger is used.
	Logger *slog.Logger
}

// Pool is a fixed-size pool of SQLite connections initialized with
// the ledger pragmas and schema. It wraps sqlitex.Pool and exposes
// the same Take/Put API.
//
// Pool is safe for concurrent use. Individual connections are not —
// each goroutine must Take its own connection and Put it back when
// done.
type Pool struct {
	inner  *sqlitex.Pool
	logger *slog.Logger
	path   string
}

// Open creates a connection pool for the database at cfg.Path,
// creating the file if it does not exist. Connections are initialized
// lazily on first Take: pragmas first, then the schema script.
//
// The caller must Close the pool when done.
func Open(cfg Config) (*Pool, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitepool: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = defaultPoolSize
	}

	inner, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: cfg.prepare,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: opening %s: %w", cfg.Path, err)
	}

	logger.Info("sqlite pool opened",
		"path", cfg.Path,
		"pool_size", poolSize,
	)

	return &Pool{
		inner:  inner,
		logger: logger,
		path:   cfg.Path,
	}, nil
}

// prepare runs once per connection, on its first use.
func (cfg Config) prepare(conn *sqlite.Conn) error {
	for _, pragma := range ledgerPragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitepool: %s: %w", pragma, err)
		}
	}
	if cfg.Schema != "" {
		if err := sqlitex.ExecuteScript(conn, cfg.Schema, nil); err != nil {
			return fmt.Errorf("sqlitepool: applying schema: %w", err)
		}
	}
	return nil
}

// Take borrows a connection from the pool. Blocks until a connection
// is available or ctx is cancelled. The caller MUST call Put when done
// with the connection, typically via defer:
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
func (p *Pool) Take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitepool: take: %w", err)
	}
	return conn, nil
}

// Put returns a connection to the pool. Safe to call with nil (no-op).
// After Put, the caller must not use the connection.
func (p *Pool) Put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

// Close closes all connections in the pool. Blocks until all borrowed
// connections are returned. After Close, Take returns an error.
func (p *Pool) Close() error {
	if err := p.inner.Close(); err != nil {
		p.logger.Error("sqlite pool close error",
			"path", p.path,
			"error", err,
		)
		return fmt.Errorf("sqlitepool: closing %s: %w", p.path, err)
	}
	p.logger.Info("sqlite pool closed", "path", p.path)
	return nil
}
