// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the process plumbing shared by the MMIA service
// binaries: flag registration and config bootstrap, logger construction,
// and the control socket.
//
// The control socket is a Unix socket speaking one CBOR request and one
// CBOR response per connection. Requests are maps with an "action" key;
// responses are {ok, error, data}. The consumer package registers the
// supervisor's control actions on it and cmd/mmia is the client.
package service
