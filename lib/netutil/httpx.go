// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil bounds HTTP response reads for the JSON collaborators
// (data API, email delivery, speech backend). Binary downloads stream
// with io.Copy instead.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON response bodies. Content bodies with
// transcripts are the largest responses the services read.
const MaxResponseSize int64 = 64 << 20

// ReadResponse reads a response body up to MaxResponseSize bytes.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded body and JSON-decodes it into v. An
// empty body leaves v untouched.
func DecodeResponse(body io.Reader, v any) error {
	data, err := ReadResponse(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// ErrorBody returns as much of an error response body as can be read.
// Read errors are ignored; a partial body still helps diagnosis.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
