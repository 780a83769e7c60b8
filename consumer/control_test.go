// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/lib/service"
	"github.com/mmia-foundation/mmia/lib/testutil"
)

func TestControlActions(t *testing.T) {
	h := startSupervisor(t, SupervisorConfig{Topics: []string{"requests"}, Delay: time.Minute}, committing)

	socketPath := filepath.Join(testutil.SocketDir(t), "control.sock")
	server := service.NewSocketServer(socketPath, discardLogger())
	RegisterControl(server, "mmia-image", h.supervisor)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Serve(ctx)
	testutil.RequireClosed(t, server.Ready(), waitTimeout, "control socket never became ready")

	client := service.NewClient(socketPath)
	call := func(action string, fields map[string]any) StatusReport {
		t.Helper()
		var report StatusReport
		if err := client.Call(ctx, action, fields, &report); err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		return report
	}

	report := call("status", nil)
	if report.Service != "mmia-image" || report.Status != "Running" {
		t.Errorf("status report = %+v", report)
	}

	if report := call("sleep", nil); report.Status != "RequestSleep" {
		t.Errorf("sleep: status = %q", report.Status)
	}
	if report := call("pause", nil); report.Status != "RequestPause" {
		t.Errorf("pause after sleep: status = %q", report.Status)
	}
	if report := call("resume", map[string]any{"reset": true}); report.Status != "Running" || report.FailureCount != 0 {
		t.Errorf("resume: report = %+v", report)
	}
	if report := call("stop", nil); report.Status != "Stopped" {
		t.Errorf("stop: status = %q", report.Status)
	}
	testutil.RequireClosed(t, h.finished, waitTimeout, "Run did not return after stop")

	var serviceErr *service.ServiceError
	if err := client.Call(ctx, "pause", nil, nil); !errors.As(err, &serviceErr) {
		t.Errorf("pause after stop: err = %v, want ServiceError", err)
	}
}

func TestNewStatusReportOmitsZeroFailureTime(t *testing.T) {
	report := NewStatusReport("svc", RunState{Status: Sleeping, FailureCount: 6})
	if report.LastFailureAt != nil {
		t.Errorf("LastFailureAt = %v, want nil", report.LastFailureAt)
	}
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.FixedZone("PST", -8*3600))
	report = NewStatusReport("svc", RunState{Status: Sleeping, LastFailureAt: at})
	if report.LastFailureAt == nil || report.LastFailureAt.Location() != time.UTC {
		t.Errorf("LastFailureAt = %v, want UTC time", report.LastFailureAt)
	}
	if report.Status != "Sleeping" {
		t.Errorf("Status = %q", report.Status)
	}
}
