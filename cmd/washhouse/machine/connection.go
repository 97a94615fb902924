// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package machine

import (
	"context"
	"time"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
)

// machineConnectionConfig is the ServiceConnectionConfig for the
// machine service role. Shared by every command in the group.
var machineConnectionConfig = cli.ServiceConnectionConfig{
	Role:          "machine",
	SocketEnvVar:  "WASHHOUSE_SOCKET",
	TokenEnvVar:   "WASHHOUSE_TOKEN",
	DefaultSocket: "/run/washhouse/machine.sock",
	DefaultToken:  "/etc/washhouse/operator.token",
}

// machineConnection manages connection parameters for machine
// commands. Embeds [cli.ServiceConnection] for shared flag
// registration and client construction.
type machineConnection struct {
	cli.ServiceConnection
}

// AddFlags initializes the machine service configuration and registers
// connection flags. Safe to call on a zero-value machineConnection —
// the embedded ServiceConnection is configured before flag
// registration.
func (c *machineConnection) AddFlags(flagSet *pflag.FlagSet) {
	c.ServiceConnection = cli.NewServiceConnection(machineConnectionConfig)
	c.ServiceConnection.AddFlags(flagSet)
}

// callContext returns a context with a timeout for machine service
// calls. Starting a machine waits on the hardware controller, which
// the service bounds with its own start timeout; sixty seconds leaves
// the transport deadline, not this context, as the governing limit.
func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}
