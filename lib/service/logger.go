// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// NewLogger returns the service logger: JSON on stderr at the given
// level, installed as the slog default so library code that logs
// through slog.Default ends up in the same stream.
func NewLogger(level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// NewCommandLogger returns the CLI logger: text when stderr is a
// terminal, JSON when it is piped into something that parses logs.
func NewCommandLogger() *slog.Logger {
	return newCommandLogger(os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

func newCommandLogger(w io.Writer, terminal bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if terminal {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", name)
	}
	return level, nil
}
