// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the Washhouse machine service.
type Config struct {
	// Service configures the daemon's own socket API.
	Service ServiceConfig `yaml:"service"`

	// Store configures the authoritative SQLite ledger.
	Store StoreConfig `yaml:"store"`

	// Cache configures the in-process record cache.
	Cache CacheConfig `yaml:"cache"`

	// Holds configures reservation-hold expiry.
	Holds HoldsConfig `yaml:"holds"`

	// Controller configures the connection to the facility's cycle
	// controller.
	Controller ControllerConfig `yaml:"controller"`

	// Auth configures access-token verification.
	Auth AuthConfig `yaml:"auth"`
}

// ServiceConfig configures the daemon's Unix socket.
type ServiceConfig struct {
	// SocketPath is where the daemon listens.
	// Default: /run/washhouse/machine.sock
	SocketPath string `yaml:"socket_path"`

	// Audience is the token audience this service accepts. Tokens
	// minted for other services are rejected.
	// Default: machine
	Audience string `yaml:"audience"`
}

// StoreConfig configures the authoritative ledger database.
type StoreConfig struct {
	// Path is the SQLite database file.
	// Default: /var/lib/washhouse/machines.db
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Zero means one connection
	// per CPU.
	PoolSize int `yaml:"pool_size"`
}

// CacheConfig configures the advisory record cache.
type CacheConfig struct {
	// Size is the maximum number of machine records held in memory.
	// Default: 1024
	Size int `yaml:"size"`
}

// HoldsConfig configures reservation-hold expiry. A machine reserved
// but never started holds its slot until the sweeper releases it.
type HoldsConfig struct {
	// Timeout is how long a reservation may sit in AWAITING_DROPOFF
	// before the sweeper releases it. "0" disables hold expiry
	// entirely. Default: 15m
	Timeout string `yaml:"timeout"`

	// SweepInterval is how often the sweeper scans for expired holds.
	// Default: 1m
	SweepInterval string `yaml:"sweep_interval"`
}

// ControllerConfig configures the facility cycle controller.
type ControllerConfig struct {
	// SocketPath is the controller daemon's Unix socket.
	// Default: /run/washhouse/controller.sock
	SocketPath string `yaml:"socket_path"`

	// TokenPath is the access token the machine service presents when
	// calling the controller. The controller verifies it against the
	// same signing key as every other Washhouse token.
	// Default: /etc/washhouse/controller.token
	TokenPath string `yaml:"token_path"`

	// StartTimeout bounds a single start-cycle call to the controller.
	// A controller that does not answer within this window counts as
	// a hardware failure. Must stay below the service client's 45s
	// response deadline or the transport cuts the call first.
	// Default: 30s
	StartTimeout string `yaml:"start_timeout"`
}

// AuthConfig configures access-token verification.
type AuthConfig struct {
	// PublicKeyPath is the Ed25519 public key file that verifies
	// token and revocation signatures. The private half stays on the
	// operator's minting host.
	// Default: /etc/washhouse/token-signing-key.pub
	PublicKeyPath string `yaml:"public_key_path"`
}

// Default returns the default configuration. These defaults are used
// as a base before loading the config file. They exist primarily to
// ensure all fields have sensible zero-values, not as a fallback —
// the config file is required.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			SocketPath: "/run/washhouse/machine.sock",
			Audience:   "machine",
		},
		Store: StoreConfig{
			Path:     "/var/lib/washhouse/machines.db",
			PoolSize: 0,
		},
		Cache: CacheConfig{
			Size: 1024,
		},
		Holds: HoldsConfig{
			Timeout:       "15m",
			SweepInterval: "1m",
		},
		Controller: ControllerConfig{
			SocketPath:   "/run/washhouse/controller.sock",
			TokenPath:    "/etc/washhouse/controller.token",
			StartTimeout: "30s",
		},
		Auth: AuthConfig{
			PublicKeyPath: "/etc/washhouse/token-signing-key.pub",
		},
	}
}

// Load loads configuration from the WASHHOUSE_CONFIG environment
// variable.
//
// This is the only way to load configuration without an explicit
// path. There are no fallbacks or defaults — if WASHHOUSE_CONFIG is
// not set, this fails. This ensures deterministic, auditable
// configuration with no hidden overrides.
func Load() (*Config, error) {
	configPath := os.Getenv("WASHHOUSE_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WASHHOUSE_CONFIG environment variable not set; " +
			"set it to the path of your washhouse.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment
// variables do not override config values. The only expansion
// performed is ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.expandVariables()

	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Service.SocketPath = expandVars(c.Service.SocketPath, vars)
	c.Store.Path = expandVars(c.Store.Path, vars)
	c.Controller.SocketPath = expandVars(c.Controller.SocketPath, vars)
	c.Controller.TokenPath = expandVars(c.Controller.TokenPath, vars)
	c.Auth.PublicKeyPath = expandVars(c.Auth.PublicKeyPath, vars)
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together so a broken file can be fixed in one pass.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.SocketPath == "" {
		errs = append(errs, fmt.Errorf("service.socket_path is required"))
	}
	if c.Service.Audience == "" {
		errs = append(errs, fmt.Errorf("service.audience is required"))
	}

	if c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path is required"))
	}
	if c.Store.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("store.pool_size must not be negative"))
	}

	if c.Cache.Size <= 0 {
		errs = append(errs, fmt.Errorf("cache.size must be positive"))
	}

	if timeout, err := time.ParseDuration(c.Holds.Timeout); err != nil {
		errs = append(errs, fmt.Errorf("holds.timeout: %w", err))
	} else if timeout < 0 {
		errs = append(errs, fmt.Errorf("holds.timeout must not be negative (use \"0\" to disable)"))
	}
	if interval, err := time.ParseDuration(c.Holds.SweepInterval); err != nil {
		errs = append(errs, fmt.Errorf("holds.sweep_interval: %w", err))
	} else if interval <= 0 {
		errs = append(errs, fmt.Errorf("holds.sweep_interval must be positive"))
	}

	if c.Controller.SocketPath == "" {
		errs = append(errs, fmt.Errorf("controller.socket_path is required"))
	}
	if c.Controller.TokenPath == "" {
		errs = append(errs, fmt.Errorf("controller.token_path is required"))
	}
	if timeout, err := time.ParseDuration(c.Controller.StartTimeout); err != nil {
		errs = append(errs, fmt.Errorf("controller.start_timeout: %w", err))
	} else if timeout <= 0 {
		errs = append(errs, fmt.Errorf("controller.start_timeout must be positive"))
	}

	if c.Auth.PublicKeyPath == "" {
		errs = append(errs, fmt.Errorf("auth.public_key_path is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HoldTimeout returns holds.timeout as a duration. Zero disables hold
// expiry. Call Validate first; an unparseable value reads as zero.
func (c *Config) HoldTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Holds.Timeout)
	if err != nil {
		return 0
	}
	return timeout
}

// SweepInterval returns holds.sweep_interval as a duration. Call
// Validate first; an unparseable value reads as zero.
func (c *Config) SweepInterval() time.Duration {
	interval, err := time.ParseDuration(c.Holds.SweepInterval)
	if err != nil {
		return 0
	}
	return interval
}

// StartTimeout returns controller.start_timeout as a duration. Call
// Validate first; an unparseable value reads as zero.
func (c *Config) StartTimeout() time.Duration {
	timeout, err := time.ParseDuration(c.Controller.StartTimeout)
	if err != nil {
		return 0
	}
	return timeout
}

// EnsureDirs creates the directories that hold the database file and
// the service socket if they don't exist.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		filepath.Dir(c.Store.Path),
		filepath.Dir(c.Service.SocketPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	return nil
}
