// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package accesstoken

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/washhouse-systems/washhouse/lib/codec"
)

// signatureSize is the fixed size of an Ed25519 signature.
const signatureSize = ed25519.SignatureSize // 64 bytes

// Grant is one authorization rule embedded in a token. A grant allows
// the listed actions, optionally restricted to the listed locations.
type Grant struct {
	// Actions is a list of action patterns (glob syntax, see
	// MatchPattern). Actions are slash-separated, e.g.
	// "machine/reserve", "machine/*", "machine/**".
	Actions []string `cbor:"1,keyasint"`

	// Locations is a list of location patterns (glob syntax). An
	// action invoked against a specific location is allowed only if
	// a pattern here matches it. A grant with no Locations covers
	// fleet-scoped actions only, never location-scoped ones; use
	// "**" for an unrestricted grant.
	Locations []string `cbor:"2,keyasint,omitempty"`
}

// Token is the CBOR-encoded payload of an access token.
type Token struct {
	// Subject is the caller identity the operator minted this token
	// for (e.g., "kiosk/lr-201", "ops/dana"). Opaque to the service
	// beyond logging and audit.
	Subject string `cbor:"1,keyasint"`

	// Audience is the service role this token is scoped to. The
	// machine service accepts only audience "machine"; a token
	// minted for one service role cannot be replayed against
	// another.
	Audience string `cbor:"2,keyasint"`

	// Grants are the authorization rules for this caller.
	Grants []Grant `cbor:"3,keyasint,omitempty"`

	// ID is a unique token identifier (hex string). Used for
	// emergency revocation via the Blacklist.
	ID string `cbor:"4,keyasint"`

	// IssuedAt is a Unix timestamp (seconds) of when the token was
	// minted.
	IssuedAt int64 `cbor:"5,keyasint"`

	// ExpiresAt is a Unix timestamp (seconds) after which the token
	// is no longer valid.
	ExpiresAt int64 `cbor:"6,keyasint"`
}

// Errors returned by Verify and related functions.
var (
	ErrTokenTooShort    = errors.New("accesstoken: token too short for signature")
	ErrInvalidSignature = errors.New("accesstoken: invalid Ed25519 signature")
	ErrTokenExpired     = errors.New("accesstoken: token has expired")
	ErrAudienceMismatch = errors.New("accesstoken: audience does not match")
	ErrTokenRevoked     = errors.New("accesstoken: token has been revoked")
)

// Mint signs a Token with the signing private key and returns the raw
// wire-format bytes: CBOR-encoded payload followed by the 64-byte
// Ed25519 signature.
func Mint(privateKey ed25519.PrivateKey, token *Token) ([]byte, error) {
	payload, err := codec.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("accesstoken: encoding token payload: %w", err)
	}

	signature := ed25519.Sign(privateKey, payload)

	// Concatenate payload and signature.
	result := make([]byte, len(payload)+signatureSize)
	copy(result, payload)
	copy(result[len(payload):], signature)

	return result, nil
}

// Verify splits the raw token bytes, verifies the Ed25519 signature,
// CBOR-decodes the payload, and checks expiry. Returns the decoded
// Token on success.
//
// The caller should additionally check the Audience field against the
// expected service role and consult the Blacklist for revoked token
// IDs.
func Verify(publicKey ed25519.PublicKey, tokenBytes []byte) (*Token, error) {
	return VerifyAt(publicKey, tokenBytes, time.Now())
}

// VerifyAt is like Verify but accepts an explicit time for expiry
// checks. This supports deterministic testing.
func VerifyAt(publicKey ed25519.PublicKey, tokenBytes []byte, now time.Time) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	splitPoint := len(tokenBytes) - signatureSize
	payload := tokenBytes[:splitPoint]
	signature := tokenBytes[splitPoint:]

	if !ed25519.Verify(publicKey, payload, signature) {
		return nil, ErrInvalidSignature
	}

	var token Token
	if err := codec.Unmarshal(payload, &token); err != nil {
		return nil, fmt.Errorf("accesstoken: decoding token payload: %w", err)
	}

	if now.Unix() >= token.ExpiresAt {
		return nil, ErrTokenExpired
	}

	return &token, nil
}

// Decode splits and decodes a token payload without verifying the
// signature or expiry. For inspection and display only — never
// authorize a caller with an unverified token.
func Decode(tokenBytes []byte) (*Token, error) {
	if len(tokenBytes) <= signatureSize {
		return nil, ErrTokenTooShort
	}

	var token Token
	if err := codec.Unmarshal(tokenBytes[:len(tokenBytes)-signatureSize], &token); err != nil {
		return nil, fmt.Errorf("accesstoken: decoding token payload: %w", err)
	}
	return &token, nil
}

// VerifyForService combines Verify with an audience check. This is
// the standard verification path for services: verify signature,
// check expiry, and confirm the token is scoped to this service.
func VerifyForService(publicKey ed25519.PublicKey, tokenBytes []byte, expectedAudience string) (*Token, error) {
	return VerifyForServiceAt(publicKey, tokenBytes, expectedAudience, time.Now())
}

// VerifyForServiceAt is like VerifyForService but accepts an explicit time.
func VerifyForServiceAt(publicKey ed25519.PublicKey, tokenBytes []byte, expectedAudience string, now time.Time) (*Token, error) {
	token, err := VerifyAt(publicKey, tokenBytes, now)
	if err != nil {
		return nil, err
	}

	if token.Audience != expectedAudience {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrAudienceMismatch, token.Audience, expectedAudience)
	}

	return token, nil
}

// GrantsAllow checks whether a grant set authorizes an action,
// optionally against a specific location.
//
// For fleet-scoped actions (empty location), the grant's locations
// must be unrestricted: either empty (a deliberately fleet-only
// grant) or containing the universal pattern "**". A grant restricted
// to specific locations never authorizes a fleet-scoped action — a
// token minted for one facility cannot run an unfiltered listing over
// every facility.
//
// For location-scoped actions, both the action and the location
// patterns must match; a grant with no Locations never matches a
// location-scoped action.
func GrantsAllow(grants []Grant, action, location string) bool {
	fleetScoped := location == ""
	for _, grant := range grants {
		if !MatchAnyPattern(grant.Actions, action) {
			continue
		}
		if fleetScoped {
			if len(grant.Locations) == 0 || slices.Contains(grant.Locations, "**") {
				return true
			}
			continue
		}
		if len(grant.Locations) == 0 {
			continue
		}
		if MatchAnyPattern(grant.Locations, location) {
			return true
		}
	}
	return false
}

// GrantsAllowAction checks whether any grant carries the action at
// all, ignoring locations. This is a pre-check for handlers that must
// look up the target before its location is known; it is never
// sufficient to authorize an action on its own.
func GrantsAllowAction(grants []Grant, action string) bool {
	for _, grant := range grants {
		if MatchAnyPattern(grant.Actions, action) {
			return true
		}
	}
	return false
}
