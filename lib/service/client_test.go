// Copyright 2026 The Washhouse Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/washhouse-systems/washhouse/lib/accesstoken"
	"github.com/washhouse-systems/washhouse/lib/codec"
)

// --- Client construction tests ---

func TestNewServiceClientReadsTokenFile(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "machine")
	tokenBytes := []byte("fake-token-bytes-for-testing")

	if err := os.WriteFile(tokenPath, tokenBytes, 0600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	client, err := NewServiceClient("/tmp/test.sock", tokenPath)
	if err != nil {
		t.Fatalf("NewServiceClient: %v", err)
	}
	if len(client.tokenBytes) != len(tokenBytes) {
		t.Fatalf("token bytes length: got %d, want %d", len(client.tokenBytes), len(tokenBytes))
	}
}

func TestNewServiceClientMissingFile(t *testing.T) {
	_, err := NewServiceClient("/tmp/test.sock", "/nonexistent/path/token")
	if err == nil {
		t.Fatal("expected error for missing token file")
	}
}

func TestNewServiceClientEmptyFile(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "machine")

	if err := os.WriteFile(tokenPath, []byte{}, 0600); err != nil {
		t.Fatalf("writing empty file: %v", err)
	}

	_, err := NewServiceClient("/tmp/test.sock", tokenPath)
	if err == nil {
		t.Fatal("expected error for empty token file")
	}
}

func TestNewServiceClientFromTokenNil(t *testing.T) {
	client := NewServiceClientFromToken("/tmp/test.sock", nil)
	if client.tokenBytes != nil {
		t.Fatal("expected nil token bytes")
	}
}

// --- Unauthenticated call tests ---

func TestClientCallUnauthenticated(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{"uptime_seconds": 42}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)

	var result map[string]any
	if err := client.Call(ctx, "status", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result["uptime_seconds"] != uint64(42) {
		t.Errorf("uptime_seconds: got %v (%T), want 42", result["uptime_seconds"], result["uptime_seconds"])
	}

	cancel()
	wg.Wait()
}

func TestClientCallNilResult(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("ping", func(ctx context.Context, raw []byte) (any, error) {
		return map[string]any{"pong": true}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)

	// Call with nil result — should succeed, just discard data.
	if err := client.Call(ctx, "ping", nil, nil); err != nil {
		t.Fatalf("Call with nil result: %v", err)
	}

	cancel()
	wg.Wait()
}

func TestClientCallNoResponseData(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("noop", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)

	// Call with a result target but server returns no data — should
	// succeed without decoding.
	var result map[string]any
	if err := client.Call(ctx, "noop", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result != nil {
		t.Errorf("result should be nil when server returns no data, got %v", result)
	}

	cancel()
	wg.Wait()
}

// --- Authenticated call tests ---

func TestClientCallAuthenticated(t *testing.T) {
	socketPath := testSocketPath(t)
	authConfig, privateKey := testAuthConfig(t)
	server := NewSocketServer(socketPath, testLogger(), authConfig)

	var receivedSubject string
	server.HandleAuth("query", func(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
		receivedSubject = token.Subject
		// Echo back the location field from the request.
		var request struct {
			Location string `cbor:"location"`
		}
		codec.Unmarshal(raw, &request)
		return map[string]any{"location": request.Location, "count": 5}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	tokenBytes := mintTestToken(t, privateKey, "kiosk/lr-201")
	client := NewServiceClientFromToken(socketPath, tokenBytes)

	var result struct {
		Location string `cbor:"location"`
		Count    int    `cbor:"count"`
	}
	err := client.Call(ctx, "query", map[string]any{"location": "lr-201"}, &result)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Location != "lr-201" {
		t.Errorf("location: got %q, want lr-201", result.Location)
	}
	if result.Count != 5 {
		t.Errorf("count: got %d, want 5", result.Count)
	}
	if receivedSubject != "kiosk/lr-201" {
		t.Errorf("subject: got %q, want kiosk/lr-201", receivedSubject)
	}

	cancel()
	wg.Wait()
}

func TestClientCallAuthenticatedMissingToken(t *testing.T) {
	socketPath := testSocketPath(t)
	authConfig, _ := testAuthConfig(t)
	server := NewSocketServer(socketPath, testLogger(), authConfig)

	server.HandleAuth("query", func(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
		t.Error("handler should not be called without a token")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	// Unauthenticated client calling an authenticated action.
	client := NewServiceClientFromToken(socketPath, nil)
	err := client.Call(ctx, "query", nil, nil)
	if err == nil {
		t.Fatal("expected error for unauthenticated request to authenticated action")
	}

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if serviceErr.Action != "query" {
		t.Errorf("error action: got %q, want query", serviceErr.Action)
	}
	if serviceErr.Code != CodeUnauthorized {
		t.Errorf("error code: got %q, want %q", serviceErr.Code, CodeUnauthorized)
	}

	cancel()
	wg.Wait()
}

// --- Error handling tests ---

func TestClientCallServiceError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("fail", func(ctx context.Context, raw []byte) (any, error) {
		return nil, errors.New("something broke")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)
	err := client.Call(ctx, "fail", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if serviceErr.Action != "fail" {
		t.Errorf("error action: got %q, want fail", serviceErr.Action)
	}
	if serviceErr.Message != "something broke" {
		t.Errorf("error message: got %q, want 'something broke'", serviceErr.Message)
	}
	if serviceErr.Code != CodeInternal {
		t.Errorf("error code: got %q, want %q", serviceErr.Code, CodeInternal)
	}
}

func TestClientCallClassifiedError(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("lookup", func(ctx context.Context, raw []byte) (any, error) {
		return nil, Errorf(CodeNotFound, "machine not found")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)
	err := client.Call(ctx, "lookup", nil, nil)

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if serviceErr.Code != CodeNotFound {
		t.Errorf("error code: got %q, want %q", serviceErr.Code, CodeNotFound)
	}
}

func TestClientCallErrorDetail(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("start", func(ctx context.Context, raw []byte) (any, error) {
		return nil, &Error{
			Code:    CodeInvalidState,
			Message: "machine is RUNNING",
			Detail:  map[string]any{"status": "RUNNING"},
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)
	err := client.Call(ctx, "start", nil, nil)

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}

	var detail map[string]any
	decoded, decodeErr := serviceErr.DecodeData(&detail)
	if decodeErr != nil {
		t.Fatalf("DecodeData: %v", decodeErr)
	}
	if !decoded {
		t.Fatal("expected a detail payload on the failure")
	}
	if detail["status"] != "RUNNING" {
		t.Errorf("detail status: got %v, want RUNNING", detail["status"])
	}

	// Failures without a payload report decoded=false.
	var empty map[string]any
	plain := &ServiceError{Action: "start", Code: CodeNotFound, Message: "gone"}
	decoded, decodeErr = plain.DecodeData(&empty)
	if decodeErr != nil {
		t.Fatalf("DecodeData on empty: %v", decodeErr)
	}
	if decoded {
		t.Error("expected decoded=false for a failure without data")
	}

	cancel()
	wg.Wait()
}

func TestClientCallUnknownAction(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("known", func(ctx context.Context, raw []byte) (any, error) {
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)
	err := client.Call(ctx, "unknown", nil, nil)
	if err == nil {
		t.Fatal("expected error for unknown action")
	}

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if serviceErr.Code != CodeUnroutable {
		t.Errorf("error code: got %q, want %q", serviceErr.Code, CodeUnroutable)
	}
}

func TestClientCallConnectionRefused(t *testing.T) {
	// Socket path that doesn't exist.
	client := NewServiceClientFromToken("/tmp/nonexistent-washhouse-test.sock", nil)

	err := client.Call(context.Background(), "status", nil, nil)
	if err == nil {
		t.Fatal("expected error for connection refused")
	}

	// Should NOT be a ServiceError — it's a connection failure.
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Fatalf("connection failure should not be *ServiceError, got %v", serviceErr)
	}
}

func TestClientCallContextDeadline(t *testing.T) {
	// A listener that accepts connections and never replies. The
	// caller's context deadline must bound the exchange; without it
	// the client would sit on the read for the full default timeout.
	socketPath := testSocketPath(t)
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	connCh := make(chan net.Conn, 1)
	go func() {
		conn, acceptErr := listener.Accept()
		if acceptErr != nil {
			return
		}
		connCh <- conn
	}()
	t.Cleanup(func() {
		listener.Close()
		select {
		case conn := <-connCh:
			conn.Close()
		default:
		}
	})

	client := NewServiceClientFromToken(socketPath, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.Call(ctx, "status", nil, nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error from an unresponsive server")
	}
	if elapsed > 5*time.Second {
		t.Fatalf("Call outlived the context deadline: took %v", elapsed)
	}

	// A timed-out read is a connection failure, not a server response.
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Fatalf("deadline failure should not be *ServiceError, got %v", serviceErr)
	}
}

// --- Token file loading integration test ---

func TestClientCallWithTokenFromFile(t *testing.T) {
	socketPath := testSocketPath(t)
	authConfig, privateKey := testAuthConfig(t)
	server := NewSocketServer(socketPath, testLogger(), authConfig)

	server.HandleAuth("whoami", func(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
		return map[string]any{"subject": token.Subject}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	// Write a real minted token to a file.
	tokenBytes := mintTestToken(t, privateKey, "operator/desk")
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "test-service")
	if err := os.WriteFile(tokenPath, tokenBytes, 0600); err != nil {
		t.Fatalf("writing token file: %v", err)
	}

	client, err := NewServiceClient(socketPath, tokenPath)
	if err != nil {
		t.Fatalf("NewServiceClient: %v", err)
	}

	var result struct {
		Subject string `cbor:"subject"`
	}
	if err := client.Call(ctx, "whoami", nil, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Subject != "operator/desk" {
		t.Errorf("subject: got %q, want operator/desk", result.Subject)
	}

	cancel()
	wg.Wait()
}

// --- Concurrent calls ---

func TestClientConcurrentCalls(t *testing.T) {
	socketPath := testSocketPath(t)
	server := NewSocketServer(socketPath, testLogger(), nil)

	server.Handle("echo", func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			Value int `cbor:"value"`
		}
		codec.Unmarshal(raw, &request)
		return map[string]any{"value": request.Value}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var serveWg sync.WaitGroup
	serveWg.Add(1)
	go func() {
		defer serveWg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	client := NewServiceClientFromToken(socketPath, nil)

	const concurrency = 20
	var clientWg sync.WaitGroup
	for i := range concurrency {
		clientWg.Add(1)
		go func() {
			defer clientWg.Done()
			var result map[string]any
			err := client.Call(ctx, "echo", map[string]any{"value": i}, &result)
			if err != nil {
				t.Errorf("call %d: %v", i, err)
				return
			}
			if result["value"] != uint64(i) {
				t.Errorf("call %d: got value %v, want %d", i, result["value"], i)
			}
		}()
	}

	clientWg.Wait()
	cancel()
	serveWg.Wait()
}

// --- Expired token test ---

func TestClientCallExpiredToken(t *testing.T) {
	socketPath := testSocketPath(t)
	authConfig, privateKey := testAuthConfig(t)
	server := NewSocketServer(socketPath, testLogger(), authConfig)

	server.HandleAuth("query", func(ctx context.Context, token *accesstoken.Token, raw []byte) (any, error) {
		t.Error("handler should not be called with expired token")
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Serve(ctx)
	}()
	waitForSocket(t, socketPath)

	// Mint an already-expired token using fixed timestamps far in the
	// past. Any token with ExpiresAt in 2020 is expired regardless of
	// the fake clock epoch.
	expiredToken := &accesstoken.Token{
		Subject:   "kiosk/lr-105",
		Audience:  "test-service",
		ID:        "expired-token",
		IssuedAt:  1577836800, // 2020-01-01T00:00:00Z
		ExpiresAt: 1577840400, // 2020-01-01T01:00:00Z
	}
	tokenBytes, err := accesstoken.Mint(privateKey, expiredToken)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}

	client := NewServiceClientFromToken(socketPath, tokenBytes)
	err = client.Call(ctx, "query", nil, nil)
	if err == nil {
		t.Fatal("expected error for expired token")
	}

	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("expected *ServiceError, got %T: %v", err, err)
	}
	if serviceErr.Code != CodeUnauthorized {
		t.Errorf("error code: got %q, want %q", serviceErr.Code, CodeUnauthorized)
	}

	cancel()
	wg.Wait()
}
