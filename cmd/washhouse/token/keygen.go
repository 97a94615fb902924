// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/accesstoken"
)

// keygenParams holds the parameters for the keygen command.
type keygenParams struct {
	StateDir string
	Force    bool
}

func keygenCommand() *cli.Command {
	var params keygenParams

	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate the token signing keypair",
		Description: `Generate a new Ed25519 keypair for token signing and write it to the
state directory: "token-signing-key" (private, mode 0600) and
"token-signing-key.pub" (public, mode 0644).

The private key stays on the minting host. Services get only the
public half, via their auth.public_key_path configuration.

Refuses to replace an existing keypair unless --force is given.
Replacing the signing key invalidates every outstanding token.`,
		Usage: "washhouse token keygen [flags]",
		Examples: []cli.Example{
			{
				Description: "Generate the fleet keypair",
				Command:     "washhouse token keygen --state-dir /etc/washhouse",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&params.StateDir, "state-dir", "/etc/washhouse", "directory to write the keypair to")
			flagSet.BoolVar(&params.Force, "force", false, "replace an existing keypair")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			if !params.Force {
				if _, _, err := accesstoken.LoadKeypair(params.StateDir); err == nil {
					return fmt.Errorf("signing keypair already exists in %s (use --force to replace it and invalidate all outstanding tokens)", params.StateDir)
				}
			}

			public, private, err := accesstoken.GenerateKeypair()
			if err != nil {
				return err
			}
			if err := accesstoken.SaveKeypair(params.StateDir, public, private); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "token signing keypair written to %s\n", params.StateDir)
			if params.Force {
				fmt.Fprintf(os.Stderr, "warning: previously minted tokens are no longer valid\n")
			}
			return nil
		},
	}
}
