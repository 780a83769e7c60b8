// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration shared by the MMIA
// consumer services.
//
// Configuration comes from exactly one file, named by the --config
// flag or the MMIA_CONFIG environment variable. The file may carry
// development, staging and production sections; the section matching
// the active environment is decoded over the base values. String values
// holding paths, URLs and secrets may reference ${VAR} or
// ${VAR:-default}.
package config
