// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "fmt"

// Result codes carried in the response envelope's "code" field.
// Clients branch on the code; the "error" field is the human-readable
// message and is not stable API.
const (
	// CodeNotFound: the named machine (or other entity) does not exist.
	CodeNotFound = "not_found"

	// CodeInvalidState: the entity exists but its current status does
	// not permit the requested operation.
	CodeInvalidState = "invalid_state"

	// CodeHardwareError: the physical machine rejected or failed the
	// requested cycle. The service state reflects the failure.
	CodeHardwareError = "hardware_error"

	// CodeUnauthorized: missing, invalid, expired, or revoked token,
	// or a token whose grants do not cover the action.
	CodeUnauthorized = "unauthorized"

	// CodeUnroutable: the request could not be dispatched to any
	// handler (unknown action, missing action field, undecodable
	// request).
	CodeUnroutable = "unroutable"

	// CodeInternal: the handler failed in a way it did not classify.
	CodeInternal = "internal"
)

// Error is a classified failure returned by action handlers. The
// server copies Code into the response envelope so clients can react
// to the category without parsing the message. Handler errors that
// are not *Error are reported as CodeInternal.
//
// Detail, when non-nil, is marshaled into the envelope's "data" field.
// Failures that leave the caller needing state — a start refused
// because the machine moved, a cycle failure that marked the machine
// ERROR — attach the current record here so the caller does not need
// a second round trip to learn what it is looking at.
type Error struct {
	Code    string
	Message string
	Detail  any
}

func (e *Error) Error() string {
	return e.Message
}

// Errorf builds an Error with the given code and formatted message
// and no detail payload.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}
