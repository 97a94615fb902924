// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package machine implements the "washhouse machine" command group:
// reserving, starting, finishing, and inspecting laundry machines via
// the machine service socket.
//
// Every command connects with the shared --socket and --token-file
// flags (environment fallbacks WASHHOUSE_SOCKET and WASHHOUSE_TOKEN)
// and supports --json for machine-readable output. Mutation commands
// print a one-line confirmation to stderr; queries render tables to
// stdout.
package machine
