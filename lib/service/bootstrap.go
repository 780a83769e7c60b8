// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/mmia-foundation/mmia/lib/config"
	"github.com/mmia-foundation/mmia/lib/sealed"
)

// CommonFlags are the flags every service binary accepts.
type CommonFlags struct {
	ConfigPath  string
	LogLevel    string
	ShowVersion bool
}

// RegisterCommonFlags binds CommonFlags to flags.
func RegisterCommonFlags(flags *pflag.FlagSet, common *CommonFlags) {
	flags.StringVar(&common.ConfigPath, "config", "", "path to the service config file (default $"+config.EnvironmentVariable+")")
	flags.StringVar(&common.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&common.ShowVersion, "version", false, "print version information and exit")
}

// Bootstrap loads and validates configuration, applies the sealed
// credential bundle when one is configured, and builds the logger.
// name fills service.name when the file leaves it empty.
func Bootstrap(common CommonFlags, name string) (*config.Config, *slog.Logger, error) {
	level, err := ParseLevel(common.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	var cfg *config.Config
	if common.ConfigPath != "" {
		cfg, err = config.LoadFile(common.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Service.Name == "" {
		cfg.Service.Name = name
		if cfg.Service.SocketPath == "" {
			cfg.Service.SocketPath = "/run/mmia/" + name + ".sock"
		}
	}

	if cfg.Credentials.Bundle != "" {
		values, err := sealed.OpenFile(cfg.Credentials.Bundle, cfg.Credentials.IdentityFile)
		if err != nil {
			return nil, nil, fmt.Errorf("opening credential bundle: %w", err)
		}
		if err := cfg.ApplyCredentials(values); err != nil {
			return nil, nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := NewLogger(level).With("service", cfg.Service.Name, "environment", string(cfg.Environment))
	return cfg, logger, nil
}
