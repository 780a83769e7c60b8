// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmia-foundation/mmia/lib/codec"
)

// ActionFunc handles one control request. raw is the whole CBOR request
// map; handlers decode their own fields from it. A non-nil result is
// CBOR-encoded into the response's data field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every control socket response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

const (
	readTimeout    = 10 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 64 << 10
)

// SocketServer serves control actions on a Unix socket.
type SocketServer struct {
	path     string
	logger   *slog.Logger
	handlers map[string]ActionFunc
	active   sync.WaitGroup
	ready    chan struct{}
}

// NewSocketServer returns a server for path. Register actions with
// Handle before Serve.
func NewSocketServer(path string, logger *slog.Logger) *SocketServer {
	return &SocketServer{
		path:     path,
		logger:   logger,
		handlers: make(map[string]ActionFunc),
		ready:    make(chan struct{}),
	}
}

// Handle registers handler for action. Registering an action twice
// panics.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("service.SocketServer: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Ready is closed once the socket is listening.
func (s *SocketServer) Ready() <-chan struct{} { return s.ready }

// Serve listens until ctx is cancelled, then waits for in-flight
// requests. A stale socket file at the path is replaced; the file is
// removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.path, err)
	}
	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.path, err)
	}
	defer os.Remove(s.path)

	stop := context.AfterFunc(ctx, func() { listener.Close() })
	defer stop()

	s.logger.Info("control socket listening", "path", s.path)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			s.serveConn(ctx, conn)
		}()
	}
	listener.Close()
	s.active.Wait()
	return nil
}

func (s *SocketServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if !errors.Is(err, io.EOF) {
			s.respond(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		}
		return
	}

	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		s.respond(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	handler, ok := s.handlers[header.Action]
	if !ok {
		s.respond(conn, Response{Error: fmt.Sprintf("unknown action %q", header.Action)})
		return
	}

	result, err := handler(ctx, raw)
	if err != nil {
		s.logger.Debug("control action failed", "action", header.Action, "error", err)
		s.respond(conn, Response{Error: err.Error()})
		return
	}
	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			s.respond(conn, Response{Error: fmt.Sprintf("internal: encoding result: %v", err)})
			return
		}
		response.Data = data
	}
	s.respond(conn, response)
}

func (s *SocketServer) respond(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing control response failed", "error", err)
	}
}
