// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the records the services exchange with the
// data API and the message broker. Field names follow the API's
// camelCase JSON; enumerations travel as strings.
package schema
