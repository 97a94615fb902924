// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// washhouse-machine-service is the daemon that owns laundry machine
// state: which machines exist, which are available, which job holds
// which machine, and whether a cycle is running.
//
// State lives in a SQLite ledger; an in-process LRU cache accelerates
// reads. Every status change is written to the ledger together with
// an audit event in one transaction. Starting a cycle goes through
// the facility's cycle controller daemon — the hardware call must
// succeed before the service records the machine as RUNNING, and a
// hardware failure records it as ERROR.
//
// Clients speak a CBOR request-response protocol over a Unix socket.
// Mutating actions require an Ed25519-signed access token whose
// grants cover the action and, where applicable, the machine's
// location. A background sweeper releases reservations that were
// never started within the configured hold timeout.
package main
