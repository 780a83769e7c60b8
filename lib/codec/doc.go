// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR configuration shared by the control
// socket protocol and the local delivery archive.
//
// JSON remains the format for everything crossing a process boundary
// to systems we do not own: Kafka message payloads and the data API.
// CBOR is used where both ends are ours:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
