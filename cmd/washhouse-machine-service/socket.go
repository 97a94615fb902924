// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/washhouse-systems/washhouse/lib/accesstoken"
	"github.com/washhouse-systems/washhouse/lib/codec"
	"github.com/washhouse-systems/washhouse/lib/machine"
	"github.com/washhouse-systems/washhouse/lib/service"
)

// Grant patterns checked against token grants. Reservation, starts,
// and reads are location-scoped: the grant must carry a location
// pattern covering the machine's location ("**" for everywhere).
// Fleet-wide actions (unfiltered listing, expire-holds) require a
// grant whose locations are unrestricted — a token scoped to one
// facility cannot see or sweep the others.
const (
	grantReserve = "machine/reserve"
	grantStart   = "machine/start"
	grantRead    = "machine/read"
	grantAdmin   = "machine/admin"
)

// registerActions registers all socket API actions on the server.
// The "status" action is unauthenticated; everything else requires a
// valid access token. Token revocation ("revoke-tokens") is wired by
// the server itself.
func (s *MachineService) registerActions(server *service.SocketServer) {
	server.Handle("status", s.handleStatus)
	server.HandleAuth("reserve-machine", s.handleReserveMachine)
	server.HandleAuth("start-machine", s.handleStartMachine)
	server.HandleAuth("finish-cycle", s.handleFinishCycle)
	server.HandleAuth("get-machine", s.handleGetMachine)
	server.HandleAuth("list-machines", s.handleListMachines)
	server.HandleAuth("machine-history", s.handleMachineHistory)
	server.HandleAuth("provision-machine", s.handleProvisionMachine)
	server.HandleAuth("reset-machine", s.handleResetMachine)
	server.HandleAuth("expire-holds", s.handleExpireHolds)
}

// --- Authorization helper ---

// requireGrant checks that the token carries a grant for the action,
// scoped to the location when one is given. An empty location marks
// the action fleet-scoped, which needs a location-unrestricted grant.
// Returns nil if authorized, or a classified error suitable for the
// client.
func requireGrant(token *accesstoken.Token, action, location string) error {
	if !accesstoken.GrantsAllow(token.Grants, action, location) {
		if location == "" {
			return service.Errorf(service.CodeUnauthorized, "access denied: missing grant for %s", action)
		}
		return service.Errorf(service.CodeUnauthorized, "access denied: missing grant for %s at %s", action, location)
	}
	return nil
}

// --- Error classification ---

// classifyError maps engine and store errors onto the protocol's
// result codes. State-conflict and hardware failures attach the
// machine's record as the failure detail, so the caller sees what the
// machine actually is without a second request. subject names the
// machine or location for the client-facing message. Unrecognized
// errors pass through and are reported as internal.
func classifyError(err error, subject string) error {
	var invalidState *InvalidStateError
	if errors.As(err, &invalidState) {
		return &service.Error{
			Code:    service.CodeInvalidState,
			Message: invalidState.Error(),
			Detail:  invalidState.Record,
		}
	}

	var cycleFailure *CycleError
	if errors.As(err, &cycleFailure) {
		return &service.Error{
			Code:    service.CodeHardwareError,
			Message: cycleFailure.Error(),
			Detail:  cycleFailure.Record,
		}
	}

	switch {
	case errors.Is(err, ErrMachineNotFound):
		return service.Errorf(service.CodeNotFound, "machine %s not found", subject)
	case errors.Is(err, ErrNoAvailableMachine):
		return service.Errorf(service.CodeNotFound, "no available machine at %s", subject)
	case errors.Is(err, ErrMachineExists):
		return service.Errorf(service.CodeInvalidState, "machine %s already exists", subject)
	}

	return err
}

// --- Unauthenticated actions ---

// statusResponse is the response to the "status" action.
type statusResponse struct {
	UptimeSeconds      int              `cbor:"uptime_seconds"`
	TotalMachines      int64            `cbor:"total_machines"`
	MachinesByStatus   map[string]int64 `cbor:"machines_by_status"`
	Locations          int64            `cbor:"locations"`
	HoldTimeoutSeconds int              `cbor:"hold_timeout_seconds"`
}

// handleStatus reports liveness plus fleet-level counts. Machine
// counts per status are the facility's public wallboard numbers, not
// secrets, so this stays unauthenticated.
func (s *MachineService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return nil, err
	}

	uptime := s.clock.Now().Sub(s.startedAt)
	return statusResponse{
		UptimeSeconds:      int(uptime.Seconds()),
		TotalMachines:      stats.TotalMachines,
		MachinesByStatus:   stats.ByStatus,
		Locations:          stats.Locations,
		HoldTimeoutSeconds: int(s.holdTimeout.Seconds()),
	}, nil
}

// --- Reservation ---

// reserveMachineRequest asks for any available machine at a location.
type reserveMachineRequest struct {
	Location string `cbor:"location"`
	Job      string `cbor:"job"`
}

// handleReserveMachine binds the job to the first available machine
// at the location. Requires "machine/reserve" scoped to the location.
// The response is the reserved machine's record.
func (s *MachineService) handleReserveMachine(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	var request reserveMachineRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Location == "" {
		return nil, fmt.Errorf("missing required field: location")
	}
	if request.Job == "" {
		return nil, fmt.Errorf("missing required field: job")
	}
	if err := requireGrant(token, grantReserve, request.Location); err != nil {
		return nil, err
	}

	record, err := s.Reserve(ctx, request.Location, request.Job)
	if err != nil {
		return nil, classifyError(err, request.Location)
	}
	return record, nil
}

// --- Lifecycle ---

// machineRequest identifies the machine an action targets. Shared by
// every single-machine action.
type machineRequest struct {
	Machine string `cbor:"machine"`
}

// decodeMachineRequest decodes and validates the common
// single-machine request shape.
func decodeMachineRequest(raw []byte) (machineRequest, error) {
	var request machineRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return machineRequest{}, fmt.Errorf("decoding request: %w", err)
	}
	if request.Machine == "" {
		return machineRequest{}, fmt.Errorf("missing required field: machine")
	}
	return request, nil
}

// requireMachineGrant authorizes a single-machine action in two
// steps: the token must carry the action at all (checked before the
// machine is even looked up, so a caller with no grant learns
// nothing), and the grant must then cover the machine's location.
// Machines never change location, so the cached record is safe to
// authorize against. Returns the record for the handler's use.
func (s *MachineService) requireMachineGrant(ctx context.Context, token *accesstoken.Token, action, machineID string) (machine.Record, error) {
	if !accesstoken.GrantsAllowAction(token.Grants, action) {
		return machine.Record{}, service.Errorf(service.CodeUnauthorized, "access denied: missing grant for %s", action)
	}
	record, err := s.GetMachine(ctx, machineID)
	if err != nil {
		return machine.Record{}, classifyError(err, machineID)
	}
	if err := requireGrant(token, action, record.Location); err != nil {
		return machine.Record{}, err
	}
	return record, nil
}

// handleStartMachine starts the wash cycle on a reserved machine.
// Requires "machine/start" scoped to the machine's location. On
// success the response is the RUNNING record; an invalid_state or
// hardware_error failure carries the machine's actual record as the
// failure detail.
func (s *MachineService) handleStartMachine(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	request, err := decodeMachineRequest(raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMachineGrant(ctx, token, grantStart, request.Machine); err != nil {
		return nil, err
	}

	record, err := s.Start(ctx, request.Machine)
	if err != nil {
		return nil, classifyError(err, request.Machine)
	}
	return record, nil
}

// handleFinishCycle returns a RUNNING machine to AVAILABLE. Requires
// "machine/start" scoped to the machine's location — finishing is the
// other end of the same physical interaction as starting.
func (s *MachineService) handleFinishCycle(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	request, err := decodeMachineRequest(raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMachineGrant(ctx, token, grantStart, request.Machine); err != nil {
		return nil, err
	}

	record, err := s.FinishCycle(ctx, request.Machine)
	if err != nil {
		return nil, classifyError(err, request.Machine)
	}
	return record, nil
}

// --- Reads ---

// handleGetMachine returns one machine's record (cache-first).
// Requires "machine/read" scoped to the machine's location.
func (s *MachineService) handleGetMachine(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	request, err := decodeMachineRequest(raw)
	if err != nil {
		return nil, err
	}
	record, err := s.requireMachineGrant(ctx, token, grantRead, request.Machine)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// listMachinesRequest optionally narrows the listing to one location.
type listMachinesRequest struct {
	Location string `cbor:"location"`
}

// listMachinesResponse is the response to the "list-machines" action.
type listMachinesResponse struct {
	Machines []machine.Record `cbor:"machines"`
}

// handleListMachines returns machine records in ledger order.
// Requires "machine/read": scoped to the location when a filter is
// given; the fleet-wide listing needs a location-unrestricted grant.
func (s *MachineService) handleListMachines(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	var request listMachinesRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if err := requireGrant(token, grantRead, request.Location); err != nil {
		return nil, err
	}

	records, err := s.ListMachines(ctx, request.Location)
	if err != nil {
		return nil, classifyError(err, request.Location)
	}
	return listMachinesResponse{Machines: records}, nil
}

// machineHistoryRequest identifies the machine and bounds the event
// count. Limit zero means the server default.
type machineHistoryRequest struct {
	Machine string `cbor:"machine"`
	Limit   int    `cbor:"limit"`
}

// machineHistoryResponse is the response to the "machine-history"
// action. Events are newest first.
type machineHistoryResponse struct {
	Events []machine.TransitionEvent `cbor:"events"`
}

// handleMachineHistory returns a machine's audit trail. Requires
// "machine/read" scoped to the machine's location.
func (s *MachineService) handleMachineHistory(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	var request machineHistoryRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Machine == "" {
		return nil, fmt.Errorf("missing required field: machine")
	}
	if _, err := s.requireMachineGrant(ctx, token, grantRead, request.Machine); err != nil {
		return nil, err
	}

	events, err := s.MachineHistory(ctx, request.Machine, request.Limit)
	if err != nil {
		return nil, classifyError(err, request.Machine)
	}
	return machineHistoryResponse{Events: events}, nil
}

// --- Administration ---

// provisionMachineRequest adds a machine to the fleet.
type provisionMachineRequest struct {
	Machine  string `cbor:"machine"`
	Location string `cbor:"location"`
}

// handleProvisionMachine adds a new machine in status AVAILABLE.
// Requires "machine/admin" scoped to the machine's location.
func (s *MachineService) handleProvisionMachine(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	var request provisionMachineRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	if request.Machine == "" {
		return nil, fmt.Errorf("missing required field: machine")
	}
	if request.Location == "" {
		return nil, fmt.Errorf("missing required field: location")
	}
	if err := requireGrant(token, grantAdmin, request.Location); err != nil {
		return nil, err
	}

	record, err := s.Provision(ctx, request.Machine, request.Location)
	if err != nil {
		return nil, classifyError(err, request.Machine)
	}
	return record, nil
}

// handleResetMachine clears an ERROR machine back to AVAILABLE.
// Requires "machine/admin" scoped to the machine's location.
func (s *MachineService) handleResetMachine(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	request, err := decodeMachineRequest(raw)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMachineGrant(ctx, token, grantAdmin, request.Machine); err != nil {
		return nil, err
	}

	record, err := s.ResetMachine(ctx, request.Machine)
	if err != nil {
		return nil, classifyError(err, request.Machine)
	}
	return record, nil
}

// expireHoldsResponse is the response to the "expire-holds" action.
type expireHoldsResponse struct {
	Released []machine.Record `cbor:"released"`
	Count    int              `cbor:"count"`
}

// handleExpireHolds forces a hold sweep without waiting for the
// ticker. Requires "machine/admin" with an unrestricted location
// grant — the sweep covers every location. Releases nothing when hold
// expiry is disabled.
func (s *MachineService) handleExpireHolds(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
	if err := requireGrant(token, grantAdmin, ""); err != nil {
		return nil, err
	}

	released, err := s.ExpireHolds(ctx)
	if err != nil {
		return nil, err
	}
	return expireHoldsResponse{Released: released, Count: len(released)}, nil
}
