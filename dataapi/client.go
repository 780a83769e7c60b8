// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataapi is the client for the MMIA data API: content, content
// references, work orders, notifications, reports and users. Requests
// and responses are JSON; lookups of missing records return nil without
// an error.
package dataapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmia-foundation/mmia/lib/netutil"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, for example https://api.example/api.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token   string
	Timeout time.Duration
	// HTTPClient overrides the default client, for tests.
	HTTPClient *http.Client
}

// Client calls the data API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient returns a client for config.BaseURL.
func NewClient(config Config) (*Client, error) {
	parsed, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("dataapi: invalid base URL %q: %w", config.BaseURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("dataapi: base URL %q must be http or https", config.BaseURL)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
	}, nil
}

// doRequest sends requestBody as JSON and returns the response body of
// a 2xx response. Other statuses return *HTTPError.
func (c *Client) doRequest(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("dataapi: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("dataapi: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("dataapi: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("dataapi: reading response of %s %s: %w", method, path, err)
	}
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}
	return nil, &HTTPError{
		StatusCode: response.StatusCode,
		Method:     method,
		Path:       path,
		Body:       string(responseBody),
	}
}

// call sends a request and decodes the response into result when
// result is non-nil and the body is not empty.
func (c *Client) call(ctx context.Context, method, path string, requestBody, result any, query url.Values) error {
	body, err := c.doRequest(ctx, method, path, requestBody, query)
	if err != nil {
		return err
	}
	if result == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("dataapi: decoding response of %s %s: %w", method, path, err)
	}
	return nil
}

// find GETs path into result. It reports false without an error when
// the API answers 404 or 204.
func (c *Client) find(ctx context.Context, path string, result any, query url.Values) (bool, error) {
	body, err := c.doRequest(ctx, http.MethodGet, path, nil, query)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		return false, fmt.Errorf("dataapi: decoding response of GET %s: %w", path, err)
	}
	return true, nil
}

// findOne is find for a single record, returning nil when missing.
func findOne[T any](ctx context.Context, c *Client, path string, query url.Values) (*T, error) {
	var result T
	found, err := c.find(ctx, path, &result, query)
	if err != nil || !found {
		return nil, err
	}
	return &result, nil
}
