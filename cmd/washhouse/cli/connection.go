// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/lib/service"
)

// ServiceConnection manages socket and token flags for CLI commands
// that connect to washhouse services. Commands connect using --socket
// and --token-file; defaults come from environment variables when set,
// otherwise from the well-known paths configured at construction time.
//
// Not used directly: each service defines a wrapper type (e.g., the
// machine connection in the machine command group) that embeds
// ServiceConnection and overrides AddFlags to supply the
// service-specific configuration. This allows zero-value construction
// in params structs while keeping the shared logic here. Create
// configured instances with [NewServiceConnection].
type ServiceConnection struct {
	SocketPath string
	TokenPath  string

	// Unexported configuration set at construction time.
	serviceRole   string
	socketEnv     string
	tokenEnv      string
	defaultSocket string
	defaultToken  string
}

// ServiceConnectionConfig configures a [ServiceConnection] for a
// specific service role.
type ServiceConnectionConfig struct {
	// Role is the service role name used in flag help text (e.g.,
	// "machine", "controller").
	Role string

	// SocketEnvVar is the environment variable name for overriding
	// the default socket path (e.g., "WASHHOUSE_SOCKET").
	SocketEnvVar string

	// TokenEnvVar is the environment variable name for overriding
	// the default token file path (e.g., "WASHHOUSE_TOKEN").
	TokenEnvVar string

	// DefaultSocket is the well-known socket path used when the
	// environment variable is unset (e.g.,
	// "/run/washhouse/machine.sock").
	DefaultSocket string

	// DefaultToken is the well-known token file path used when the
	// environment variable is unset (e.g.,
	// "/etc/washhouse/operator.token").
	DefaultToken string
}

// NewServiceConnection creates a ServiceConnection configured for a
// specific service role. The returned value is ready to embed in a
// command params struct; call AddFlags during flag registration.
func NewServiceConnection(config ServiceConnectionConfig) ServiceConnection {
	return ServiceConnection{
		serviceRole:   config.Role,
		socketEnv:     config.SocketEnvVar,
		tokenEnv:      config.TokenEnvVar,
		defaultSocket: config.DefaultSocket,
		defaultToken:  config.DefaultToken,
	}
}

// AddFlags registers --socket and --token-file flags. Defaults come
// from environment variables if set, otherwise from the well-known
// paths configured at construction time.
func (c *ServiceConnection) AddFlags(flagSet *pflag.FlagSet) {
	socketDefault := c.defaultSocket
	if envSocket := os.Getenv(c.socketEnv); envSocket != "" {
		socketDefault = envSocket
	}
	tokenDefault := c.defaultToken
	if envToken := os.Getenv(c.tokenEnv); envToken != "" {
		tokenDefault = envToken
	}

	flagSet.StringVar(&c.SocketPath, "socket", socketDefault, c.serviceRole+" service socket path")
	flagSet.StringVar(&c.TokenPath, "token-file", tokenDefault, "path to access token file")
}

// Connect creates an authenticated service client from the connection
// parameters, reading the token from the configured file.
func (c *ServiceConnection) Connect() (*service.ServiceClient, error) {
	return service.NewServiceClient(c.SocketPath, c.TokenPath)
}

// Unauthenticated creates a service client that sends no token. Only
// useful for actions registered without authentication, such as
// "status".
func (c *ServiceConnection) Unauthenticated() *service.ServiceClient {
	return service.NewServiceClientFromToken(c.SocketPath, nil)
}
