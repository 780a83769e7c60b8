// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for MMIA packages.
package testutil
