// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/washhouse-systems/washhouse/cmd/washhouse/cli"
	"github.com/washhouse-systems/washhouse/lib/accesstoken"
)

// mintParams holds the parameters for the mint command.
type mintParams struct {
	StateDir string
	Subject  string
	Audience string
	Grants   []string
	TTL      time.Duration
	Out      string
}

func mintCommand() *cli.Command {
	var params mintParams

	return &cli.Command{
		Name:    "mint",
		Summary: "Mint a signed access token",
		Description: `Mint an access token signed with the fleet keypair and write it to a
file. The token carries a subject (who it was minted for), an
audience (which service role accepts it), a set of grants, and an
expiry.

Each --grant is "actions@locations": comma-separated action patterns,
optionally followed by "@" and comma-separated location patterns.
Without a location part the grant covers fleet-scoped actions only;
use "@**" for all locations. Patterns use glob syntax with "**"
crossing slashes.`,
		Usage: "washhouse token mint --subject <subject> --grant <actions[@locations]> --out <file> [flags]",
		Examples: []cli.Example{
			{
				Description: "Full-access operator token, valid one week",
				Command:     "washhouse token mint --subject ops/dana --grant 'machine/**@**' --ttl 168h --out dana.token",
			},
			{
				Description: "Kiosk token for one laundry room",
				Command:     "washhouse token mint --subject kiosk/lr-201 --grant 'machine/reserve,machine/start,machine/read@lr-201' --out kiosk.token",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("mint", pflag.ContinueOnError)
			flagSet.StringVar(&params.StateDir, "state-dir", "/etc/washhouse", "directory holding the signing keypair")
			flagSet.StringVar(&params.Subject, "subject", "", "caller identity the token is minted for")
			flagSet.StringVar(&params.Audience, "audience", "machine", "service role the token is scoped to")
			flagSet.StringArrayVar(&params.Grants, "grant", nil, "grant as \"actions[@locations]\" (repeatable)")
			flagSet.DurationVar(&params.TTL, "ttl", 720*time.Hour, "token lifetime")
			flagSet.StringVar(&params.Out, "out", "", "file to write the token to")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if params.Subject == "" {
				return fmt.Errorf("--subject is required")
			}
			if len(params.Grants) == 0 {
				return fmt.Errorf("at least one --grant is required")
			}
			if params.Out == "" {
				return fmt.Errorf("--out is required")
			}
			if params.TTL <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}

			grants := make([]accesstoken.Grant, 0, len(params.Grants))
			for _, spec := range params.Grants {
				grant, err := parseGrant(spec)
				if err != nil {
					return err
				}
				grants = append(grants, grant)
			}

			_, private, err := accesstoken.LoadKeypair(params.StateDir)
			if err != nil {
				return fmt.Errorf("loading signing keypair from %s: %w (run \"washhouse token keygen\" first)", params.StateDir, err)
			}

			id, err := newTokenID()
			if err != nil {
				return err
			}

			now := time.Now()
			token := accesstoken.Token{
				Subject:   params.Subject,
				Audience:  params.Audience,
				Grants:    grants,
				ID:        id,
				IssuedAt:  now.Unix(),
				ExpiresAt: now.Add(params.TTL).Unix(),
			}

			tokenBytes, err := accesstoken.Mint(private, &token)
			if err != nil {
				return err
			}
			if err := os.WriteFile(params.Out, tokenBytes, 0600); err != nil {
				return fmt.Errorf("writing token file: %w", err)
			}

			fmt.Fprintf(os.Stderr, "minted token %s\n", token.ID)
			fmt.Fprintf(os.Stderr, "  Subject:  %s\n", token.Subject)
			fmt.Fprintf(os.Stderr, "  Audience: %s\n", token.Audience)
			fmt.Fprintf(os.Stderr, "  Expires:  %s\n", time.Unix(token.ExpiresAt, 0).Format(time.RFC3339))
			for _, grant := range grants {
				fmt.Fprintf(os.Stderr, "  Grant:    %s\n", formatGrant(grant))
			}
			fmt.Fprintf(os.Stderr, "  Written:  %s\n", params.Out)
			return nil
		},
	}
}

// parseGrant parses an "actions[@locations]" grant specification.
func parseGrant(spec string) (accesstoken.Grant, error) {
	actionPart, locationPart, hasLocations := strings.Cut(spec, "@")

	actions := splitPatterns(actionPart)
	if len(actions) == 0 {
		return accesstoken.Grant{}, fmt.Errorf("grant %q has no actions", spec)
	}

	grant := accesstoken.Grant{Actions: actions}
	if hasLocations {
		grant.Locations = splitPatterns(locationPart)
		if len(grant.Locations) == 0 {
			return accesstoken.Grant{}, fmt.Errorf("grant %q has an empty location list", spec)
		}
	}
	return grant, nil
}

// splitPatterns splits a comma-separated pattern list, dropping empty
// entries.
func splitPatterns(list string) []string {
	var patterns []string
	for _, pattern := range strings.Split(list, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}

// formatGrant renders a grant in the same "actions@locations" syntax
// mint accepts.
func formatGrant(grant accesstoken.Grant) string {
	actions := strings.Join(grant.Actions, ",")
	if len(grant.Locations) == 0 {
		return actions
	}
	return actions + "@" + strings.Join(grant.Locations, ",")
}

// newTokenID returns a fresh random token identifier (16 bytes, hex).
func newTokenID() (string, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("generating token ID: %w", err)
	}
	return hex.EncodeToString(idBytes), nil
}
