// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/washhouse-systems/washhouse/lib/accesstoken"
	"github.com/washhouse-systems/washhouse/lib/clock"
	"github.com/washhouse-systems/washhouse/lib/codec"
)

// ActionFunc processes an unauthenticated socket request. The raw
// parameter is the full CBOR request (including the "action" field).
// The handler decodes action-specific fields from this raw message.
//
// Return a value to include in the success response, or an error for
// a failure response. If the returned value is nil, the response
// contains only {ok: true}. If non-nil, the value is marshaled as
// CBOR and placed in the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// AuthActionFunc processes an authenticated socket request. The server
// verifies the request's token before the handler runs; the handler
// receives the verified token and checks grants for its own action.
type AuthActionFunc func(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error)

// StreamFunc serves a long-lived authenticated stream. After token
// verification the server clears the connection's I/O deadlines and
// hands it to the handler, which writes CBOR values at its own pace.
// The handler owns the connection until it returns; ctx is cancelled
// when the server shuts down.
type StreamFunc func(ctx context.Context, token *accesstoken.Token, raw []byte, conn net.Conn)

// Response is the wire-format envelope for all socket protocol
// responses. Handlers return a result value (or nil) and an error;
// the server wraps these into a Response before encoding.
//
// Code classifies failures (see the Code constants) and is empty on
// success.
type Response struct {
	OK    bool             `cbor:"ok"`
	Code  string           `cbor:"code,omitempty"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// AuthConfig carries the verification material for authenticated
// actions. All fields are required when any authenticated handler is
// registered.
type AuthConfig struct {
	// PublicKey verifies token and revocation signatures.
	PublicKey ed25519.PublicKey

	// Audience is this service's name. Tokens minted for a different
	// audience are rejected.
	Audience string

	// Blacklist holds revoked token IDs. Shared with the revocation
	// handler, which adds entries at runtime.
	Blacklist *accesstoken.Blacklist

	// Clock supplies the time for expiry checks.
	Clock clock.Clock
}

// SocketServer serves a CBOR request-response protocol on a Unix
// socket. Each connection handles exactly one request-response cycle:
// the client writes a CBOR value, the server processes it and writes
// a CBOR response, then the connection closes. Stream actions are the
// exception: after the request is authenticated the connection is
// handed to the handler, which writes as many CBOR values as it wants.
//
// Actions are registered with Handle, HandleAuth, or HandleAuthStream
// before calling Serve. Unknown actions receive an unroutable error
// response.
type SocketServer struct {
	socketPath     string
	handlers       map[string]ActionFunc
	authHandlers   map[string]AuthActionFunc
	streamHandlers map[string]StreamFunc
	auth           *AuthConfig
	logger         *slog.Logger

	// activeConnections tracks in-flight request handlers for graceful
	// shutdown. Serve waits for all active connections to complete
	// before returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
// auth may be nil for servers with only unauthenticated actions.
// Register actions before calling Serve.
func NewSocketServer(socketPath string, logger *slog.Logger, auth *AuthConfig) *SocketServer {
	return &SocketServer{
		socketPath:     socketPath,
		handlers:       make(map[string]ActionFunc),
		authHandlers:   make(map[string]AuthActionFunc),
		streamHandlers: make(map[string]StreamFunc),
		auth:           auth,
		logger:         logger,
	}
}

// Handle registers an unauthenticated handler for the given action
// name. Panics if the action is already registered in any handler
// class.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	s.checkDuplicate(action)
	s.handlers[action] = handler
}

// HandleAuth registers an authenticated handler for the given action
// name. Panics if the server has no AuthConfig or the action is
// already registered.
func (s *SocketServer) HandleAuth(action string, handler AuthActionFunc) {
	if s.auth == nil {
		panic("service.SocketServer: HandleAuth requires AuthConfig")
	}
	s.checkDuplicate(action)
	s.authHandlers[action] = handler
}

// HandleAuthStream registers an authenticated stream handler for the
// given action name. Panics if the server has no AuthConfig or the
// action is already registered.
func (s *SocketServer) HandleAuthStream(action string, handler StreamFunc) {
	if s.auth == nil {
		panic("service.SocketServer: HandleAuthStream requires AuthConfig")
	}
	s.checkDuplicate(action)
	s.streamHandlers[action] = handler
}

func (s *SocketServer) checkDuplicate(action string) {
	_, inPlain := s.handlers[action]
	_, inAuth := s.authHandlers[action]
	_, inStream := s.streamHandlers[action]
	if inPlain || inAuth || inStream {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
}

// revokeTokensResponse reports how many token IDs a revocation request
// added to the blacklist.
type revokeTokensResponse struct {
	Revoked int `cbor:"revoked"`
}

// RegisterRevocationHandler registers the standard "revoke-tokens"
// action. The request's "revocation" field carries a revocation list
// signed by the same key that signs tokens; verified entries are added
// to the server's blacklist, taking effect on the next request. Panics
// if the server has no AuthConfig.
func (s *SocketServer) RegisterRevocationHandler() {
	if s.auth == nil {
		panic("service.SocketServer: RegisterRevocationHandler requires AuthConfig")
	}
	s.Handle("revoke-tokens", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Revocation []byte `cbor:"revocation"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, Errorf(CodeUnroutable, "invalid request: %v", err)
		}
		if len(request.Revocation) == 0 {
			return nil, Errorf(CodeUnauthorized, "missing required field: revocation")
		}

		revocation, err := accesstoken.VerifyRevocation(s.auth.PublicKey, request.Revocation)
		if err != nil {
			return nil, Errorf(CodeUnauthorized, "revocation verification failed: %v", err)
		}

		for _, entry := range revocation.Entries {
			s.auth.Blacklist.Revoke(entry.TokenID, time.Unix(entry.ExpiresAt, 0))
		}
		s.logger.Info("tokens revoked", "count", len(revocation.Entries))
		return revokeTokensResponse{Revoked: len(revocation.Entries)}, nil
	})
}

// Serve starts accepting connections on the Unix socket and dispatches
// requests to registered action handlers. Blocks until ctx is
// cancelled, then stops accepting new connections and waits for active
// handlers to complete.
//
// Any existing socket file at the configured path is removed before
// listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("socket server listening", "path", s.socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// readTimeout is how long we wait for the client to send its request.
// A well-behaved client sends the request immediately after connecting.
const readTimeout = 30 * time.Second

// writeTimeout is how long we wait for the response to be written.
const writeTimeout = 10 * time.Second

// maxRequestSize is the maximum size of a single CBOR request.
// 1 MB is generous: requests carry identifiers and a token, not bulk
// data.
const maxRequestSize = 1024 * 1024

// handleConnection processes one request-response cycle (or hands the
// connection to a stream handler).
func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	// Decode one CBOR value from the connection. CBOR is self-
	// delimiting so no framing protocol is needed. LimitReader
	// prevents a malicious client from exhausting memory.
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeFailure(conn, Errorf(CodeUnroutable, "invalid request: %v", err))
		return
	}

	// Extract the action field for routing.
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.writeFailure(conn, Errorf(CodeUnroutable, "invalid request: %v", err))
		return
	}
	if header.Action == "" {
		s.writeFailure(conn, Errorf(CodeUnroutable, "missing required field: action"))
		return
	}

	if streamHandler, exists := s.streamHandlers[header.Action]; exists {
		token, authErr := s.authenticate(raw)
		if authErr != nil {
			s.writeFailure(conn, authErr)
			return
		}
		// Streams outlive the request-response deadlines; the handler
		// writes at its own pace until it returns.
		conn.SetDeadline(time.Time{})
		streamHandler(ctx, token, []byte(raw), conn)
		return
	}

	var result any
	var handlerErr error
	switch {
	case s.handlers[header.Action] != nil:
		result, handlerErr = s.handlers[header.Action](ctx, []byte(raw))
	case s.authHandlers[header.Action] != nil:
		token, authErr := s.authenticate(raw)
		if authErr != nil {
			s.writeFailure(conn, authErr)
			return
		}
		result, handlerErr = s.authHandlers[header.Action](ctx, token, []byte(raw))
	default:
		s.writeFailure(conn, Errorf(CodeUnroutable, "unknown action %q", header.Action))
		return
	}

	if handlerErr != nil {
		s.logger.Debug("action failed",
			"action", header.Action,
			"error", handlerErr,
		)
		s.writeFailure(conn, handlerErr)
		return
	}

	s.writeSuccess(conn, result)
}

// authenticate extracts and verifies the request's token. Returns the
// verified token, or a classified error to send to the client. The
// error messages are deliberately uninformative for signature and
// audience failures: a probing caller learns only that it was rejected.
func (s *SocketServer) authenticate(raw codec.RawMessage) (*accesstoken.Token, *Error) {
	var credentials struct {
		Token []byte `cbor:"token"`
	}
	if err := codec.Unmarshal(raw, &credentials); err != nil {
		return nil, Errorf(CodeUnauthorized, "invalid request: %v", err)
	}
	if len(credentials.Token) == 0 {
		return nil, Errorf(CodeUnauthorized, "missing token field")
	}

	token, err := accesstoken.VerifyForServiceAt(
		s.auth.PublicKey, credentials.Token, s.auth.Audience, s.auth.Clock.Now())
	if err != nil {
		if errors.Is(err, accesstoken.ErrTokenExpired) {
			return nil, Errorf(CodeUnauthorized, "token expired")
		}
		return nil, Errorf(CodeUnauthorized, "authentication failed")
	}

	if s.auth.Blacklist != nil && s.auth.Blacklist.IsRevoked(token.ID) {
		return nil, Errorf(CodeUnauthorized, "token revoked")
	}

	return token, nil
}

// writeFailure sends a failure response: {ok: false, code, error} plus
// a "data" field when the classified error carries a detail payload.
// Errors that are not *Error are classified as internal. Write
// failures are logged at debug level — the connection is closing
// regardless, and the caller has already received the error.
func (s *SocketServer) writeFailure(conn net.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: false, Code: CodeInternal, Error: err.Error()}
	var classified *Error
	if errors.As(err, &classified) {
		response.Code = classified.Code
		if classified.Detail != nil {
			data, marshalErr := codec.Marshal(classified.Detail)
			if marshalErr != nil {
				// The caller still gets the code and message.
				s.logger.Debug("failed to marshal error detail", "error", marshalErr)
			} else {
				response.Data = data
			}
		}
	}

	if encodeErr := codec.NewEncoder(conn).Encode(response); encodeErr != nil {
		s.logger.Debug("failed to write error response", "error", encodeErr)
	}
}

// writeSuccess sends a success response. If result is nil, the
// response is {ok: true}. If non-nil, the value is marshaled as CBOR
// and placed in the "data" field: {ok: true, data: <cbor>}.
func (s *SocketServer) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}

	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.writeFailure(conn, Errorf(CodeInternal, "marshaling response: %v", err))
			return
		}
		response.Data = data
	}

	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write success response", "error", err)
	}
}
