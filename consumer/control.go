// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"time"

	"github.com/mmia-foundation/mmia/lib/codec"
	"github.com/mmia-foundation/mmia/lib/service"
)

// StatusReport is the control socket's view of a supervisor.
type StatusReport struct {
	Service       string     `cbor:"service"`
	Status        string     `cbor:"status"`
	FailureCount  int        `cbor:"failure_count"`
	LastFailureAt *time.Time `cbor:"last_failure_at,omitempty"`
	LastError     string     `cbor:"last_error,omitempty"`
	Generation    uint64     `cbor:"generation"`
	TaskActive    bool       `cbor:"task_active"`
}

// NewStatusReport converts a RunState for the socket.
func NewStatusReport(name string, state RunState) StatusReport {
	report := StatusReport{
		Service:      name,
		Status:       state.Status.String(),
		FailureCount: state.FailureCount,
		LastError:    state.LastError,
		Generation:   state.Generation,
		TaskActive:   state.TaskActive,
	}
	if !state.LastFailureAt.IsZero() {
		at := state.LastFailureAt.UTC()
		report.LastFailureAt = &at
	}
	return report
}

type resumeRequest struct {
	Reset bool `cbor:"reset"`
}

// RegisterControl exposes the supervisor's control operations on
// server as the actions status, pause, sleep, resume and stop. Every
// action answers with a StatusReport.
func RegisterControl(server *service.SocketServer, name string, supervisor *Supervisor) {
	reply := func(state RunState, err error) (any, error) {
		if err != nil {
			return nil, err
		}
		return NewStatusReport(name, state), nil
	}

	server.Handle("status", func(context.Context, []byte) (any, error) {
		return NewStatusReport(name, supervisor.Status()), nil
	})
	server.Handle("pause", func(ctx context.Context, _ []byte) (any, error) {
		return reply(supervisor.Pause(ctx))
	})
	server.Handle("sleep", func(ctx context.Context, _ []byte) (any, error) {
		return reply(supervisor.Sleep(ctx))
	})
	server.Handle("resume", func(ctx context.Context, raw []byte) (any, error) {
		var request resumeRequest
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, err
		}
		return reply(supervisor.Resume(ctx, request.Reset))
	})
	server.Handle("stop", func(ctx context.Context, _ []byte) (any, error) {
		return reply(supervisor.Stop(ctx))
	})
}
