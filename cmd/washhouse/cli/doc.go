// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the washhouse
// unified CLI.
//
// The central type is [Command], which represents a named subcommand
// with optional nested [Command.Subcommands], a [pflag.FlagSet]
// factory, and a Run function. Commands are assembled into a tree in
// cmd/washhouse/commands and dispatched via [Command.Execute], which
// handles flag parsing, subcommand routing, and structured help
// output with examples.
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against all known names and
// suggests the closest match (threshold: distance <= 3). This is
// implemented in suggest.go.
//
// [ServiceConnection] carries the --socket and --token-file flags
// shared by every command that talks to a washhouse service, with
// defaults drawn from environment variables and well-known paths.
// [JSONOutput] adds the --json flag and indented-JSON emission for
// commands with machine-readable output.
package cli
