// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestCommandLoggerFormat(t *testing.T) {
	var text, json bytes.Buffer
	newCommandLogger(&text, true).Info("paused", "socket", "/run/mmia/x.sock")
	newCommandLogger(&json, false).Info("paused", "socket", "/run/mmia/x.sock")

	if !strings.Contains(text.String(), "msg=paused") {
		t.Errorf("terminal output = %q, want text handler", text.String())
	}
	if !strings.Contains(json.String(), `"msg":"paused"`) {
		t.Errorf("piped output = %q, want JSON handler", json.String())
	}
}
