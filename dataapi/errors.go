// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package dataapi

import (
	"errors"
	"fmt"
	"net/http"
)

// maxErrorBody bounds how much of a response body Error includes.
const maxErrorBody = 512

// HTTPError is a non-2xx response from the data API.
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
}

func (e *HTTPError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	if body == "" {
		return fmt.Sprintf("dataapi: %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("dataapi: %s %s: %d: %s", e.Method, e.Path, e.StatusCode, body)
}

// ResponseBody returns the full response body for failure logs.
func (e *HTTPError) ResponseBody() string { return e.Body }

// IsNotFound reports whether err is a 404 from the data API.
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409, the API's answer to a stale
// record version.
func IsConflict(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusConflict
}
