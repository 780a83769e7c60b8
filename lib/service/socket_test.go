// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/lib/codec"
	"github.com/mmia-foundation/mmia/lib/testutil"
)

func startServer(t *testing.T, register func(*SocketServer)) *Client {
	t.Helper()
	path := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := NewSocketServer(path, slog.New(slog.DiscardHandler))
	register(server)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "server shutdown"); err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "server ready")
	return NewClient(path)
}

func TestCallReturnsData(t *testing.T) {
	client := startServer(t, func(server *SocketServer) {
		server.Handle("resume", func(ctx context.Context, raw []byte) (any, error) {
			var request struct {
				ResetFailures bool `cbor:"reset_failures"`
			}
			if err := codec.Unmarshal(raw, &request); err != nil {
				return nil, err
			}
			return map[string]any{"status": "Running", "reset": request.ResetFailures}, nil
		})
	})

	var result struct {
		Status string `cbor:"status"`
		Reset  bool   `cbor:"reset"`
	}
	err := client.Call(context.Background(), "resume", map[string]any{"reset_failures": true}, &result)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Status != "Running" || !result.Reset {
		t.Fatalf("result = %+v", result)
	}
}

func TestCallHandlerError(t *testing.T) {
	client := startServer(t, func(server *SocketServer) {
		server.Handle("pause", func(context.Context, []byte) (any, error) {
			return nil, errors.New("service is stopped")
		})
	})

	err := client.Call(context.Background(), "pause", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("error = %v, want *ServiceError", err)
	}
	if serviceErr.Action != "pause" || serviceErr.Message != "service is stopped" {
		t.Fatalf("ServiceError = %+v", serviceErr)
	}
}

func TestCallUnknownAction(t *testing.T) {
	client := startServer(t, func(*SocketServer) {})

	err := client.Call(context.Background(), "reboot", nil, nil)
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) {
		t.Fatalf("error = %v, want *ServiceError", err)
	}
}

func TestCallWithoutServer(t *testing.T) {
	client := NewClient(filepath.Join(testutil.SocketDir(t), "missing.sock"))
	err := client.Call(context.Background(), "status", nil, nil)
	if err == nil {
		t.Fatal("expected connection error")
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		t.Fatal("connection failure reported as ServiceError")
	}
}

func TestDuplicateHandlerPanics(t *testing.T) {
	server := NewSocketServer("/unused", slog.New(slog.DiscardHandler))
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	server.Handle("status", func(context.Context, []byte) (any, error) { return nil, nil })
}
