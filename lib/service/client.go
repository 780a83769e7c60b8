// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/mmia-foundation/mmia/lib/codec"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 30 * time.Second
	maxResponseSize     = 1 << 20
)

// ServiceError is a failure reported by the service (ok=false), as
// opposed to a connection or encoding error.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error on %q: %s", e.Action, e.Message)
}

// Client calls control actions on a service socket, one connection per
// call.
type Client struct {
	path string
}

// NewClient returns a client for the socket at path.
func NewClient(path string) *Client {
	return &Client{path: path}
}

// Call sends action with the extra request fields and decodes the
// response data into result when both are non-nil.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		request[key] = value
	}
	request["action"] = action

	response, err := c.roundTrip(ctx, request)
	if err != nil {
		return fmt.Errorf("calling %q on %s: %w", action, c.path, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}
	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, request map[string]any) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.path)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(responseReadTimeout))
	}

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}
