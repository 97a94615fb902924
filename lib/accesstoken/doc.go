// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package accesstoken implements Ed25519-signed bearer tokens for
// authenticating callers to the Washhouse machine service over its
// shared Unix socket.
//
// The machine service listens on one socket shared by kiosk agents,
// facility tooling, and the operator CLI. Connections carry no
// inherent caller identity, so every authenticated request presents a
// token. The operator mints tokens with "washhouse token mint" using
// the service's signing key; the service verifies them
// cryptographically on each request without any callback to the
// minting side.
//
// A token proves the caller's identity (Subject) and carries
// pre-resolved authorization grants: which actions the caller may
// invoke, optionally restricted to which locations. Grant patterns
// use hierarchical globs; see [MatchPattern].
//
// # Wire format
//
// A token is raw bytes: CBOR-encoded payload followed by a 64-byte
// Ed25519 signature over the payload bytes.
//
//	[CBOR payload bytes] [64-byte Ed25519 signature]
//
// The split point is always len(token) - 64. No header, no length
// prefix, no base64. The algorithm is fixed and the signature size is
// constant. The payload uses Core Deterministic Encoding (lib/codec),
// so mint and verify agree on the exact byte sequence.
//
// # Lifecycle
//
//   - The operator generates a signing keypair once per deployment
//     ("washhouse token keygen"); the service loads the public key at
//     startup.
//   - Tokens are minted with an explicit TTL. TTL length is operator
//     policy: short for ad-hoc CLI use, longer for installed kiosks.
//   - The service rejects expired tokens unconditionally.
//   - Emergency revocation: "washhouse token revoke" pushes a signed
//     [RevocationRequest] to the running service, which adds the token
//     IDs to its [Blacklist]. Blacklist entries clean themselves up
//     once the revoked token's natural expiry passes.
//
// # Dependencies
//
// This package depends on crypto/ed25519 for signing, lib/codec for
// CBOR encoding, and standard library packages only. Services and the
// CLI import it without pulling in any other Washhouse subsystem.
package accesstoken
