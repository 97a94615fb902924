// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the Washhouse-standard SQLite connection
// pool.
//
// Every Washhouse service that needs local structured storage uses
// this package. It wraps zombiezen.com/go/sqlite with the pragmas the
// machine ledger runs on and applies the service's schema script to
// each connection, so a fresh database is ready on first Take.
//
// The pool is built on zombiezen's sqlitex.Pool, which manages a
// fixed-size set of connections. Callers [Pool.Take] a connection,
// perform work, and [Pool.Put] it back. Connections are NOT safe for
// concurrent use — each goroutine must hold its own connection for the
// duration of its work.
//
// # Pragmas
//
// Every connection in the pool is initialized with these pragmas:
//
//   - journal_mode=WAL: write-ahead logging for concurrent readers and
//     a single writer. Reads never block writes; writes never block
//     reads.
//   - synchronous=NORMAL: transactions survive process crashes. Not
//     durable across OS crashes or power failure — acceptable for the
//     machine ledger because the physical fleet is the ultimate
//     arbiter: a lost tail of transitions is repaired by the operator
//     reconciling records against the floor (finish-cycle and
//     reset-machine), and WAL mode guarantees the database itself is
//     never corrupted.
//   - busy_timeout=5000: wait up to 5 seconds for a write lock instead
//     of returning SQLITE_BUSY immediately.
//   - foreign_keys=OFF: Washhouse services manage referential
//     integrity explicitly. The transitions audit table references
//     machines by ID, but audit rows must survive even if a machine
//     row is ever removed by hand.
//   - temp_store=MEMORY: temporary tables and indexes in memory.
//
// A fleet-sized ledger is a few thousand rows, so there is no page
// cache or mmap tuning here — SQLite's defaults already keep the whole
// database hot.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:     "/var/lib/washhouse/machines.db",
//	    PoolSize: 8,
//	    Schema:   schema, // idempotent CREATE TABLE IF NOT EXISTS script
//	    Logger:   logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// # Design
//
// This package is intentionally thin: it applies standard pragmas and
// exposes the underlying zombiezen types directly. There is no attempt
// to abstract away SQLite's connection model or invent a query builder.
// Services write SQL, use sqlitex.Execute for cached statements, and
// manage transactions with sqlitex.ImmediateTransaction. The goal is a
// shared foundation (one dependency, one set of pragmas, one pool
// pattern) without an abstraction layer that fights SQLite's strengths.
package sqlitepool
