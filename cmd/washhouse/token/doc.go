// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package token implements the "washhouse token" command group:
// generating the fleet signing keypair and minting, inspecting, and
// revoking access tokens.
//
// Minting is an offline operation against the signing private key; no
// service connection is involved. Revocation signs a revocation list
// with the same key and pushes it to a running service, which
// blacklists the listed token IDs until their natural expiry.
package token
