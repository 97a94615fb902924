// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Washhouse
// services.
//
// Configuration is loaded from a single file specified by either the
// WASHHOUSE_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There are no fallbacks, no ~/.config
// discovery, and no automatic file search. This ensures deterministic,
// auditable configuration with no hidden overrides.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${WASHHOUSE_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Durations (hold timeout, sweep interval, cycle-start timeout) are
// stored as time.ParseDuration strings ("15m", "90s"). [Config.Validate]
// rejects malformed values so consumers can parse without surprises.
//
// Key exports:
//
//   - [Config] -- master struct with Service, Store, Cache, Holds,
//     Controller, and Auth sections
//   - [Default] -- returns a Config with standalone-deployment defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Washhouse packages.
package config
