// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/washhouse-systems/washhouse/lib/clock"
	"github.com/washhouse-systems/washhouse/lib/machine"
	"github.com/washhouse-systems/washhouse/lib/sqlitepool"
)

// Store errors. Callers branch on these to classify failures for the
// socket protocol, so they are sentinels rather than formatted text.
var (
	// ErrMachineNotFound: no machine with the requested ID.
	ErrMachineNotFound = errors.New("machine not found")

	// ErrMachineExists: provisioning a machine ID that is already in
	// the ledger.
	ErrMachineExists = errors.New("machine already exists")

	// ErrNoAvailableMachine: a reservation found no AVAILABLE machine
	// at the requested location.
	ErrNoAvailableMachine = errors.New("no available machine")

	// ErrStatusChanged: a transition found the machine in a different
	// state than the caller expected. The Transition method returns
	// the machine's current record alongside this error so the caller
	// can report what it actually found.
	ErrStatusChanged = errors.New("machine status changed")
)

// schema is applied to every pool connection on open. All statements
// are idempotent, so re-running on each connection is harmless.
//
// The machines table is the authoritative ledger: one row per
// machine, current state only. History lives in the transitions
// table, appended in the same transaction as every status write.
const schema = `
	CREATE TABLE IF NOT EXISTS machines (
		id          TEXT PRIMARY KEY,
		location    TEXT NOT NULL,
		job_id      TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		reserved_at INTEGER NOT NULL DEFAULT 0,
		updated_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_machines_location
		ON machines(location, status, id);

	CREATE TABLE IF NOT EXISTS transitions (
		event_id    TEXT PRIMARY KEY,
		machine_id  TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status   TEXT NOT NULL,
		job_id      TEXT NOT NULL DEFAULT '',
		reason      TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_machine
		ON transitions(machine_id, created_at);
`

// machineColumns is the column list every machine query selects, in
// the order scanMachine expects.
const machineColumns = "id, location, job_id, status, reserved_at, updated_at"

// Store is the authoritative SQLite ledger of machine state. Every
// status write happens inside a single IMMEDIATE transaction together
// with its audit event, so concurrent writers serialize at the
// database and the transitions table never drifts from the machines
// table.
type Store struct {
	pool   *sqlitepool.Pool
	clock  clock.Clock
	logger *slog.Logger
}

// StoreConfig holds the parameters for opening the machine ledger.
type StoreConfig struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to
	// 4 if zero or negative.
	PoolSize int

	// Clock provides timestamps for status writes and audit events.
	Clock clock.Clock

	// Logger receives operational messages.
	Logger *slog.Logger
}

// OpenStore opens the machine ledger, creating the database file and
// schema if they do not exist.
func OpenStore(cfg StoreConfig) (*Store, error) {
	if cfg.Clock == nil {
		return nil, fmt.Errorf("machine store: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("machine store: Logger is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     cfg.Path,
		PoolSize: poolSize,
		Schema:   schema,
		Logger:   cfg.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("machine store: %w", err)
	}

	return &Store{
		pool:   pool,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	return s.pool.Close()
}

// CreateMachine adds a machine to the ledger in status AVAILABLE with
// no job bound. Returns ErrMachineExists if the ID is already taken.
// The provisioning event is recorded in the audit trail with an empty
// from-status.
func (s *Store) CreateMachine(ctx context.Context, id, location string) (record machine.Record, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: create %s: %w", id, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	_, found, err := getMachine(conn, id)
	if err != nil {
		return machine.Record{}, err
	}
	if found {
		return machine.Record{}, fmt.Errorf("machine store: %s: %w", id, ErrMachineExists)
	}

	now := s.clock.Now().Unix()
	record = machine.Record{
		ID:        id,
		Location:  location,
		Status:    machine.StatusAvailable,
		UpdatedAt: now,
	}

	err = sqlitex.Execute(conn,
		"INSERT INTO machines (id, location, job_id, status, reserved_at, updated_at) VALUES (?, ?, '', ?, 0, ?)",
		&sqlitex.ExecOptions{
			Args: []any{id, location, string(machine.StatusAvailable), now},
		})
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: inserting %s: %w", id, err)
	}

	if err = s.insertTransition(conn, id, "", machine.StatusAvailable, "", "provisioned", now); err != nil {
		return machine.Record{}, err
	}

	return record, nil
}

// GetMachine returns the authoritative record for one machine.
func (s *Store) GetMachine(ctx context.Context, id string) (machine.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: get %s: %w", id, err)
	}
	defer s.pool.Put(conn)

	record, found, err := getMachine(conn, id)
	if err != nil {
		return machine.Record{}, err
	}
	if !found {
		return machine.Record{}, fmt.Errorf("machine store: %s: %w", id, ErrMachineNotFound)
	}
	return record, nil
}

// ListAtLocation returns every machine at one location, ordered by
// machine ID. The ordering is part of the reservation contract: the
// reservation picks the first AVAILABLE machine in this same order.
func (s *Store) ListAtLocation(ctx context.Context, location string) ([]machine.Record, error) {
	return s.listMachines(ctx, "SELECT "+machineColumns+" FROM machines WHERE location = ? ORDER BY id", location)
}

// ListMachines returns every machine in the ledger, ordered by
// location then machine ID.
func (s *Store) ListMachines(ctx context.Context) ([]machine.Record, error) {
	return s.listMachines(ctx, "SELECT "+machineColumns+" FROM machines ORDER BY location, id")
}

func (s *Store) listMachines(ctx context.Context, query string, args ...any) ([]machine.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("machine store: list: %w", err)
	}
	defer s.pool.Put(conn)

	var records []machine.Record
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			record, scanErr := scanMachine(stmt)
			if scanErr != nil {
				return scanErr
			}
			records = append(records, record)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("machine store: list: %w", err)
	}
	return records, nil
}

// ReserveAvailable atomically binds a job to the first AVAILABLE
// machine at the location, in machine-ID order. The select, the
// status write, and the audit event happen in one IMMEDIATE
// transaction: under concurrent reservations each machine is handed
// to exactly one caller, and the losers move on to the next machine
// or get ErrNoAvailableMachine.
func (s *Store) ReserveAvailable(ctx context.Context, location, jobID string) (record machine.Record, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: reserve at %s: %w", location, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	found := false
	err = sqlitex.Execute(conn,
		"SELECT "+machineColumns+" FROM machines WHERE location = ? AND status = ? ORDER BY id LIMIT 1",
		&sqlitex.ExecOptions{
			Args: []any{location, string(machine.StatusAvailable)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var scanErr error
				record, scanErr = scanMachine(stmt)
				if scanErr != nil {
					return scanErr
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: selecting available machine at %s: %w", location, err)
	}
	if !found {
		return machine.Record{}, fmt.Errorf("machine store: %s: %w", location, ErrNoAvailableMachine)
	}

	now := s.clock.Now().Unix()
	err = sqlitex.Execute(conn,
		"UPDATE machines SET status = ?, job_id = ?, reserved_at = ?, updated_at = ? WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{string(machine.StatusAwaitingDropoff), jobID, now, now, record.ID},
		})
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: reserving %s: %w", record.ID, err)
	}

	if err = s.insertTransition(conn, record.ID, machine.StatusAvailable, machine.StatusAwaitingDropoff, jobID, "reserved", now); err != nil {
		return machine.Record{}, err
	}

	record.Status = machine.StatusAwaitingDropoff
	record.JobID = jobID
	record.ReservedAt = now
	record.UpdatedAt = now
	return record, nil
}

// TransitionOptions adjusts how Transition rewrites the record.
type TransitionOptions struct {
	// ClearJob unbinds the job as part of the transition. The audit
	// event still records the job that was bound when the transition
	// happened.
	ClearJob bool

	// ExpectJob, when non-empty, makes the transition conditional on
	// the machine still being bound to this job. A mismatch returns
	// ErrStatusChanged exactly like a status mismatch: the machine
	// the caller was operating on is gone, and something else now
	// holds the slot.
	ExpectJob string

	// Reason is recorded in the audit event.
	Reason string
}

// Transition moves a machine from one status to another, checking
// that the machine is still in the expected from-status at write
// time. On a mismatch the returned record is the machine's current
// state and the error wraps ErrStatusChanged.
//
// Transitions into AWAITING_DROPOFF are rejected: reservation is the
// only way in, and it goes through ReserveAvailable. Every transition
// out of AWAITING_DROPOFF clears the reservation timestamp.
func (s *Store) Transition(ctx context.Context, id string, from, to machine.Status, opts TransitionOptions) (record machine.Record, err error) {
	if to == machine.StatusAwaitingDropoff {
		return machine.Record{}, fmt.Errorf("machine store: transitions into %s go through ReserveAvailable", machine.StatusAwaitingDropoff)
	}
	if err := machine.ValidateTransition(from, to); err != nil {
		return machine.Record{}, fmt.Errorf("machine store: %w", err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: transition %s: %w", id, err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	current, found, err := getMachine(conn, id)
	if err != nil {
		return machine.Record{}, err
	}
	if !found {
		return machine.Record{}, fmt.Errorf("machine store: %s: %w", id, ErrMachineNotFound)
	}
	if current.Status != from {
		return current, fmt.Errorf("machine store: %s is %s, expected %s: %w", id, current.Status, from, ErrStatusChanged)
	}
	if opts.ExpectJob != "" && current.JobID != opts.ExpectJob {
		return current, fmt.Errorf("machine store: %s is bound to job %q, expected %q: %w", id, current.JobID, opts.ExpectJob, ErrStatusChanged)
	}

	job := current.JobID
	if opts.ClearJob {
		job = ""
	}

	now := s.clock.Now().Unix()
	err = sqlitex.Execute(conn,
		"UPDATE machines SET status = ?, job_id = ?, reserved_at = 0, updated_at = ? WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{string(to), job, now, id},
		})
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: updating %s: %w", id, err)
	}

	if err = s.insertTransition(conn, id, from, to, current.JobID, opts.Reason, now); err != nil {
		return machine.Record{}, err
	}

	record = current
	record.Status = to
	record.JobID = job
	record.ReservedAt = 0
	record.UpdatedAt = now
	return record, nil
}

// ExpireHolds releases every AWAITING_DROPOFF machine whose
// reservation is older than the cutoff, returning them to AVAILABLE
// with the job unbound. All releases happen in one transaction; the
// returned records reflect the post-release state, in machine-ID
// order.
func (s *Store) ExpireHolds(ctx context.Context, cutoff time.Time) (released []machine.Record, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("machine store: expire holds: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return nil, fmt.Errorf("machine store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	var expired []machine.Record
	err = sqlitex.Execute(conn,
		"SELECT "+machineColumns+" FROM machines WHERE status = ? AND reserved_at > 0 AND reserved_at < ? ORDER BY id",
		&sqlitex.ExecOptions{
			Args: []any{string(machine.StatusAwaitingDropoff), cutoff.Unix()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record, scanErr := scanMachine(stmt)
				if scanErr != nil {
					return scanErr
				}
				expired = append(expired, record)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("machine store: selecting expired holds: %w", err)
	}

	now := s.clock.Now().Unix()
	for _, hold := range expired {
		err = sqlitex.Execute(conn,
			"UPDATE machines SET status = ?, job_id = '', reserved_at = 0, updated_at = ? WHERE id = ?",
			&sqlitex.ExecOptions{
				Args: []any{string(machine.StatusAvailable), now, hold.ID},
			})
		if err != nil {
			return nil, fmt.Errorf("machine store: releasing hold on %s: %w", hold.ID, err)
		}

		if err = s.insertTransition(conn, hold.ID, machine.StatusAwaitingDropoff, machine.StatusAvailable, hold.JobID, "hold-expired", now); err != nil {
			return nil, err
		}

		hold.Status = machine.StatusAvailable
		hold.JobID = ""
		hold.ReservedAt = 0
		hold.UpdatedAt = now
		released = append(released, hold)
	}

	return released, nil
}

// MachineHistory returns the machine's audit trail, newest first.
// A limit of zero or less means 50 events. Returns ErrMachineNotFound
// for machines that were never provisioned — an existing machine with
// no history is impossible, because provisioning itself is an event.
func (s *Store) MachineHistory(ctx context.Context, id string, limit int) ([]machine.TransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("machine store: history for %s: %w", id, err)
	}
	defer s.pool.Put(conn)

	_, found, err := getMachine(conn, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("machine store: %s: %w", id, ErrMachineNotFound)
	}

	var events []machine.TransitionEvent
	err = sqlitex.Execute(conn,
		"SELECT event_id, machine_id, from_status, to_status, job_id, reason, created_at FROM transitions WHERE machine_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		&sqlitex.ExecOptions{
			Args: []any{id, limit},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				events = append(events, machine.TransitionEvent{
					EventID:   stmt.ColumnText(0),
					MachineID: stmt.ColumnText(1),
					From:      machine.Status(stmt.ColumnText(2)),
					To:        machine.Status(stmt.ColumnText(3)),
					JobID:     stmt.ColumnText(4),
					Reason:    stmt.ColumnText(5),
					CreatedAt: stmt.ColumnInt64(6),
				})
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("machine store: reading history for %s: %w", id, err)
	}
	return events, nil
}

// StoreStats summarizes the ledger for the status endpoint.
type StoreStats struct {
	TotalMachines     int64            `json:"total_machines"`
	ByStatus          map[string]int64 `json:"machines_by_status"`
	Locations         int64            `json:"locations"`
	TransitionEvents  int64            `json:"transition_events"`
	DatabaseSizeBytes int64            `json:"database_size_bytes"`
}

// Stats returns ledger-wide counts and the database file size.
func (s *Store) Stats(ctx context.Context) (StoreStats, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return StoreStats{}, fmt.Errorf("machine store: stats: %w", err)
	}
	defer s.pool.Put(conn)

	stats := StoreStats{ByStatus: make(map[string]int64)}

	err = sqlitex.Execute(conn,
		"SELECT status, COUNT(*) FROM machines GROUP BY status",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				count := stmt.ColumnInt64(1)
				stats.ByStatus[stmt.ColumnText(0)] = count
				stats.TotalMachines += count
				return nil
			},
		})
	if err != nil {
		return StoreStats{}, fmt.Errorf("machine store: counting machines: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT COUNT(DISTINCT location) FROM machines",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.Locations = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return StoreStats{}, fmt.Errorf("machine store: counting locations: %w", err)
	}

	err = sqlitex.Execute(conn,
		"SELECT COUNT(*) FROM transitions",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.TransitionEvents = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return StoreStats{}, fmt.Errorf("machine store: counting transitions: %w", err)
	}

	// Database size via page_count * page_size.
	err = sqlitex.Execute(conn,
		"SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				stats.DatabaseSizeBytes = stmt.ColumnInt64(0)
				return nil
			},
		})
	if err != nil {
		return StoreStats{}, fmt.Errorf("machine store: database size: %w", err)
	}

	return stats, nil
}

// insertTransition appends an audit event. Must be called inside the
// same transaction as the status write it describes.
func (s *Store) insertTransition(conn *sqlite.Conn, machineID string, from, to machine.Status, jobID, reason string, now int64) error {
	err := sqlitex.Execute(conn,
		"INSERT INTO transitions (event_id, machine_id, from_status, to_status, job_id, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		&sqlitex.ExecOptions{
			Args: []any{uuid.NewString(), machineID, string(from), string(to), jobID, reason, now},
		})
	if err != nil {
		return fmt.Errorf("machine store: recording transition for %s: %w", machineID, err)
	}
	return nil
}

// getMachine reads one machine on an already-borrowed connection.
// Callers inside a transaction see their own uncommitted writes.
func getMachine(conn *sqlite.Conn, id string) (machine.Record, bool, error) {
	var record machine.Record
	found := false
	err := sqlitex.Execute(conn,
		"SELECT "+machineColumns+" FROM machines WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var scanErr error
				record, scanErr = scanMachine(stmt)
				if scanErr != nil {
					return scanErr
				}
				found = true
				return nil
			},
		})
	if err != nil {
		return machine.Record{}, false, fmt.Errorf("machine store: reading %s: %w", id, err)
	}
	return record, found, nil
}

// scanMachine builds a Record from a row selected with
// machineColumns. The stored status is parsed strictly: an unknown
// value is corruption, not data.
func scanMachine(stmt *sqlite.Stmt) (machine.Record, error) {
	status, err := machine.ParseStatus(stmt.ColumnText(3))
	if err != nil {
		return machine.Record{}, fmt.Errorf("machine store: row for %s: %w", stmt.ColumnText(0), err)
	}
	return machine.Record{
		ID:         stmt.ColumnText(0),
		Location:   stmt.ColumnText(1),
		JobID:      stmt.ColumnText(2),
		Status:     status,
		ReservedAt: stmt.ColumnInt64(4),
		UpdatedAt:  stmt.ColumnInt64(5),
	}, nil
}
