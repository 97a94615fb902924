// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Washhouse
// service binaries. Fatal centralizes the one legitimate raw-stderr
// pattern that exists before the structured logger is initialized:
// reporting an unrecoverable error from run() in main(). All other
// output in service binaries goes through log/slog.
package process
