// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Washhouse's standard CBOR encoding
// configuration.
//
// Washhouse uses two serialization formats with a clear boundary:
//
//   - JSON for external interfaces: CLI --json output.
//   - CBOR for internal protocols: service socket communication,
//     access token payloads, and signed revocation requests.
//
// This package provides the shared CBOR encoding and decoding modes
// so that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces
// identical bytes — a hard requirement for Ed25519-signed token
// payloads, where mint and verify must agree on the exact byte
// sequence.
//
// For buffer-oriented operations (tokens, files):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: the type is ONLY ever serialized as CBOR (socket
//     protocol envelopes, token payloads, revocation requests).
//   - `json` tag: the type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats (machine records shown in CLI
//     --json output travel the socket this way).
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents the contract.
package codec
