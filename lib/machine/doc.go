// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package machine defines the domain vocabulary shared by the machine
// service, its clients, and the CLI: the machine [Record], the closed
// [Status] space, the transition rules, and identifier validation.
//
// The package is pure data and rules. It performs no I/O and holds no
// state: authoritative records live in the machine service's store,
// and every mutation there is checked against [ValidateTransition]
// before it commits.
//
// # Identifiers
//
// Machine and location identifiers are operator-assigned and follow
// the same grammar: 1-64 characters from a-z, 0-9, and the symbols
// . _ - /, with slash-separated segments that must be non-empty and
// must not start with a dot. Multi-segment machine identifiers
// ("lr-201/washer-04") are an operator convention; the service treats
// the identifier as opaque and never interprets segments.
//
// Job identifiers are caller-supplied references into the caller's
// own systems and are checked for shape only (non-empty, at most 128
// bytes, printable ASCII).
package machine
