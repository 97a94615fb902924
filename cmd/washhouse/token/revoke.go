// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/accesstoken"
)

// tokenConnectionConfig points revocations at the machine service by
// default. The revoke-tokens action is registered on every washhouse
// service socket; --socket selects which one to notify.
var tokenConnectionConfig = cli.ServiceConnectionConfig{
	Role:          "machine",
	SocketEnvVar:  "WASHHOUSE_SOCKET",
	TokenEnvVar:   "WASHHOUSE_TOKEN",
	DefaultSocket: "/run/washhouse/machine.sock",
	DefaultToken:  "/etc/washhouse/operator.token",
}

// revokeParams holds the parameters for the revoke command.
type revokeParams struct {
	cli.ServiceConnection
	cli.JSONOutput
	StateDir string
	IDs      []string
	Retain   time.Duration
}

// revokeResponse mirrors the service's revoke-tokens response.
type revokeResponse struct {
	Revoked int `cbor:"revoked"`
}

// revokeResult is the JSON output of the revoke command.
type revokeResult struct {
	Revoked int `json:"revoked"`
}

func revokeCommand() *cli.Command {
	var params revokeParams

	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke tokens on a running service",
		Description: `Sign a revocation list with the fleet keypair and push it to a
running service. The service blacklists the listed token IDs
immediately; a revoked token is rejected on its next use even though
its signature is still valid.

Tokens can be named by file (the ID and natural expiry are read from
the token itself) or by raw ID with --id, for tokens whose files are
gone. Raw IDs stay blacklisted for the --retain window.

The revocation is authenticated by its own signature, not by a client
token, so the command works even when every operator token has been
compromised.`,
		Usage: "washhouse token revoke [token-file ...] [--id <token-id>] [flags]",
		Examples: []cli.Example{
			{
				Description: "Revoke a leaked kiosk token by file",
				Command:     "washhouse token revoke kiosk.token",
			},
			{
				Description: "Revoke by ID from the audit log",
				Command:     "washhouse token revoke --id 07f1c7d4a1f24f5a9b1c2d3e4f506172",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("revoke", pflag.ContinueOnError)
			params.ServiceConnection = cli.NewServiceConnection(tokenConnectionConfig)
			params.ServiceConnection.AddFlags(flagSet)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.StringVar(&params.StateDir, "state-dir", "/etc/washhouse", "directory holding the signing keypair")
			flagSet.StringArrayVar(&params.IDs, "id", nil, "token ID to revoke (repeatable)")
			flagSet.DurationVar(&params.Retain, "retain", 8760*time.Hour, "blacklist retention for raw --id entries")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 && len(params.IDs) == 0 {
				return fmt.Errorf("nothing to revoke: name token files or use --id")
			}

			now := time.Now()
			var entries []accesstoken.RevocationEntry
			for _, path := range args {
				tokenBytes, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading token file: %w", err)
				}
				token, err := accesstoken.Decode(tokenBytes)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				entries = append(entries, accesstoken.RevocationEntry{
					TokenID:   token.ID,
					ExpiresAt: token.ExpiresAt,
				})
			}
			for _, id := range params.IDs {
				entries = append(entries, accesstoken.RevocationEntry{
					TokenID:   id,
					ExpiresAt: now.Add(params.Retain).Unix(),
				})
			}

			_, private, err := accesstoken.LoadKeypair(params.StateDir)
			if err != nil {
				return fmt.Errorf("loading signing keypair from %s: %w", params.StateDir, err)
			}

			signed, err := accesstoken.SignRevocation(private, &accesstoken.RevocationRequest{
				Entries:  entries,
				IssuedAt: now.Unix(),
			})
			if err != nil {
				return err
			}

			client := params.Unauthenticated()

			ctx, cancel := callContext()
			defer cancel()

			var response revokeResponse
			fields := map[string]any{"revocation": signed}
			if err := client.Call(ctx, "revoke-tokens", fields, &response); err != nil {
				return err
			}

			if done, err := params.EmitJSON(revokeResult(response)); done {
				return err
			}

			fmt.Fprintf(os.Stderr, "revoked %d token(s)\n", response.Revoked)
			return nil
		},
	}
}

// callContext returns a context with a timeout for the revocation
// push. Blacklist insertion is fast; the timeout only guards against
// an unresponsive socket.
func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}
