// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for MMIA binaries.
//
// Release builds set the variables with -ldflags:
//
//	go build -ldflags "-X github.com/mmia-foundation/mmia/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
