// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package token

import "github.com/washhouse-systems/washhouse/cmd/washhouse/cli"

// Command returns the "token" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "token",
		Summary: "Mint and revoke access tokens",
		Description: `Manage Washhouse access tokens.

Tokens are minted offline against the fleet signing keypair and
handed to callers (kiosks, operators, the machine service itself for
controller calls). Services verify them with the public half of the
keypair; no token state lives on the service until a revocation
arrives.`,
		Subcommands: []*cli.Command{
			keygenCommand(),
			mintCommand(),
			inspectCommand(),
			revokeCommand(),
		},
	}
}
