// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the Unix-socket protocol plumbing shared by
// Washhouse services.
//
// A Washhouse service is a standalone binary exposing a CBOR protocol
// on a Unix domain socket. Requests are single CBOR maps; the "action"
// field routes to a registered handler, and the optional "token" field
// carries an Ed25519 access token for authenticated actions. Responses
// use a uniform envelope:
//
//	{ok: bool, code: string, error: string, data: <cbor>}
//
// Code classifies failures (not_found, invalid_state, hardware_error,
// unauthorized, unroutable, internal) so clients branch on the
// category instead of parsing messages. Handlers produce classified
// failures with Errorf; unclassified handler errors are reported as
// internal.
//
// # Server
//
// SocketServer dispatches one request per connection. Handle registers
// unauthenticated actions (health checks), HandleAuth registers
// actions that require a verified token, and HandleAuthStream hands
// the connection to the handler after verification for long-lived
// subscription streams. Token verification fails closed: a request
// for an authenticated action with a missing, malformed, expired, or
// revoked token is rejected before the handler runs. Grant checks are
// the handler's job — the server establishes who is calling, the
// handler decides whether they may.
//
// RegisterRevocationHandler adds the standard "revoke-tokens" action
// so operators can invalidate leaked tokens fleet-wide without
// restarting services.
//
// # Client
//
// ServiceClient wraps the request side: one connection per Call, the
// token injected automatically, failure envelopes surfaced as
// *ServiceError with the server's code.
package service
