// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/accesstoken"
)

// inspectParams holds the parameters for the inspect command.
type inspectParams struct {
	cli.JSONOutput
	PublicKey string
}

// tokenInfo is the JSON output of the inspect command.
type tokenInfo struct {
	Subject      string   `json:"subject"`
	Audience     string   `json:"audience"`
	ID           string   `json:"id"`
	IssuedAt     int64    `json:"issued_at"`
	ExpiresAt    int64    `json:"expires_at"`
	Grants       []string `json:"grants"`
	Verification string   `json:"verification,omitempty"`
}

func inspectCommand() *cli.Command {
	var params inspectParams

	return &cli.Command{
		Name:    "inspect",
		Summary: "Decode and display a token file",
		Description: `Decode a token file and display its subject, audience, grants, and
validity window.

Without --public-key the payload is decoded but not verified; the
display says nothing about whether the token is genuine. With
--public-key the signature is checked and the verification result is
reported.`,
		Usage: "washhouse token inspect <token-file> [flags]",
		Examples: []cli.Example{
			{
				Description: "See what a kiosk token grants",
				Command:     "washhouse token inspect kiosk.token",
			},
			{
				Description: "Verify against the fleet public key",
				Command:     "washhouse token inspect kiosk.token --public-key /etc/washhouse/token-signing-key.pub",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
			params.JSONOutput.AddFlags(flagSet)
			flagSet.StringVar(&params.PublicKey, "public-key", "", "verify the signature against this public key")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("token file is required\n\nUsage: washhouse token inspect <token-file>")
			}

			tokenBytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading token file: %w", err)
			}
			token, err := accesstoken.Decode(tokenBytes)
			if err != nil {
				return err
			}

			verification := ""
			if params.PublicKey != "" {
				publicKey, err := accesstoken.LoadPublicKey(params.PublicKey)
				if err != nil {
					return err
				}
				_, verifyErr := accesstoken.Verify(publicKey, tokenBytes)
				switch {
				case verifyErr == nil:
					verification = "valid"
				case errors.Is(verifyErr, accesstoken.ErrTokenExpired):
					verification = "expired (signature valid)"
				default:
					verification = "invalid: " + verifyErr.Error()
				}
			}

			grants := make([]string, len(token.Grants))
			for i, grant := range token.Grants {
				grants[i] = formatGrant(grant)
			}

			if done, err := params.EmitJSON(tokenInfo{
				Subject:      token.Subject,
				Audience:     token.Audience,
				ID:           token.ID,
				IssuedAt:     token.IssuedAt,
				ExpiresAt:    token.ExpiresAt,
				Grants:       grants,
				Verification: verification,
			}); done {
				return err
			}

			writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "Subject:\t%s\n", token.Subject)
			fmt.Fprintf(writer, "Audience:\t%s\n", token.Audience)
			fmt.Fprintf(writer, "ID:\t%s\n", token.ID)
			fmt.Fprintf(writer, "Issued:\t%s\n", time.Unix(token.IssuedAt, 0).Format(time.RFC3339))
			fmt.Fprintf(writer, "Expires:\t%s\n", time.Unix(token.ExpiresAt, 0).Format(time.RFC3339))
			for _, grant := range grants {
				fmt.Fprintf(writer, "Grant:\t%s\n", grant)
			}
			if verification != "" {
				fmt.Fprintf(writer, "Verification:\t%s\n", verification)
			}
			writer.Flush()
			return nil
		},
	}
}
