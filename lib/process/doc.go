// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for MMIA binaries: the one
// place a binary writes to stderr without the structured logger.
package process
