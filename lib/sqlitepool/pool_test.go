// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/washhouse-systems/washhouse/lib/sqlitepool"
)

const testSchema = `
	CREATE TABLE IF NOT EXISTS machines (
		id       TEXT PRIMARY KEY,
		location TEXT NOT NULL
	);
`

func TestOpenAppliesPragmas(t *testing.T) {
	pool := openTestPool(t, "")

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	if mode := queryPragmaText(t, conn, "journal_mode"); mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	// synchronous=NORMAL reads back as 1.
	if sync := queryPragmaText(t, conn, "synchronous"); sync != "1" {
		t.Errorf("synchronous = %q, want 1", sync)
	}
	if fk := queryPragmaText(t, conn, "foreign_keys"); fk != "0" {
		t.Errorf("foreign_keys = %q, want 0", fk)
	}
}

func TestSchemaReadyOnFirstTake(t *testing.T) {
	pool := openTestPool(t, testSchema)

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	// No separate migration step: the table is usable immediately.
	err = sqlitex.Execute(conn, "INSERT INTO machines (id, location) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"lr-201/washer-01", "lr-201"},
	})
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}
}

func TestSchemaAppliedPerConnection(t *testing.T) {
	pool := openTestPool(t, testSchema)
	ctx := context.Background()

	// Hold the first connection so the second Take initializes a
	// fresh one. The idempotent script must not trip over the table
	// the first connection already created.
	first, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take first: %v", err)
	}
	defer pool.Put(first)

	second, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take second: %v", err)
	}
	defer pool.Put(second)

	err = sqlitex.Execute(second, "INSERT INTO machines (id, location) VALUES (?, ?)", &sqlitex.ExecOptions{
		Args: []any{"lr-202/washer-01", "lr-202"},
	})
	if err != nil {
		t.Fatalf("INSERT on second connection: %v", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	pool := openTestPool(t, testSchema)
	ctx := context.Background()

	conn, err := pool.Take(ctx)
	if err != nil {
		t.Fatalf("Take for setup: %v", err)
	}
	for i := range 5 {
		err = sqlitex.Execute(conn, "INSERT INTO machines (id, location) VALUES (?, ?)", &sqlitex.ExecOptions{
			Args: []any{fmt.Sprintf("lr-201/washer-%02d", i+1), "lr-201"},
		})
		if err != nil {
			t.Fatalf("INSERT: %v", err)
		}
	}
	pool.Put(conn)

	const goroutineCount = 8
	var waitGroup sync.WaitGroup
	failures := make(chan error, goroutineCount)

	for range goroutineCount {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()

			conn, err := pool.Take(ctx)
			if err != nil {
				failures <- err
				return
			}
			defer pool.Put(conn)

			var count int64
			err = sqlitex.Execute(conn, "SELECT COUNT(*) FROM machines", &sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					count = stmt.ColumnInt64(0)
					return nil
				},
			})
			if err != nil {
				failures <- err
				return
			}
			if count != 5 {
				failures <- fmt.Errorf("count = %d, want 5", count)
			}
		}()
	}

	waitGroup.Wait()
	close(failures)

	for err := range failures {
		t.Error(err)
	}
}

func TestEmptyPathRejected(t *testing.T) {
	_, err := sqlitepool.Open(sqlitepool.Config{})
	if err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestContextCancellation(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}

	// The only connection is borrowed, so a second Take blocks; a
	// cancelled context must fail it instead of deadlocking.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = pool.Take(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}

	pool.Put(conn)
}

// openTestPool creates a pool backed by a temporary database file.
// The pool is closed automatically when the test completes.
func openTestPool(t *testing.T, schema string) *sqlitepool.Pool {
	t.Helper()

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "test.db"),
		PoolSize: 4,
		Schema:   schema,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

// queryPragmaText reads a pragma's current value as text.
func queryPragmaText(t *testing.T, conn *sqlite.Conn, name string) string {
	t.Helper()

	var value string
	err := sqlitex.Execute(conn, "PRAGMA "+name, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			value = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("PRAGMA %s: %v", name, err)
	}
	return value
}
