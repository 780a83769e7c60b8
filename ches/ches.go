// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package ches sends email through the Common Hosted Email Service.
// The client obtains an OAuth client-credentials token, caches it until
// shortly before expiry, and posts email merges: one template rendered
// per recipient context.
package ches

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/netutil"
)

// Config configures a Client.
type Config struct {
	URL          string
	AuthURL      string
	ClientID     string
	ClientSecret string
	From         string
	Timeout      time.Duration
	// Enabled false logs merges instead of sending them.
	Enabled bool
	// OverrideTo redirects every email, for non-production use.
	OverrideTo string
	HTTPClient *http.Client
}

// EmailContext is one recipient group of a merge.
type EmailContext struct {
	To      []string       `json:"to"`
	Context map[string]any `json:"context"`
	DelayTS int64          `json:"delayTS,omitempty"`
	Tag     string         `json:"tag,omitempty"`
}

// EmailMerge is a templated email sent once per context.
type EmailMerge struct {
	From     string         `json:"from"`
	Subject  string         `json:"subject"`
	Body     string         `json:"body"`
	BodyType string         `json:"bodyType"`
	Encoding string         `json:"encoding"`
	Priority string         `json:"priority"`
	Contexts []EmailContext `json:"contexts"`

	// Requestor receives overridden email instead of OverrideTo when
	// set. Not sent.
	Requestor string `json:"-"`
}

// EmailResponse is the service's receipt for a merge.
type EmailResponse struct {
	TransactionID string         `json:"txId"`
	Messages      []EmailMessage `json:"messages"`
}

// EmailMessage identifies one queued message.
type EmailMessage struct {
	MessageID string   `json:"msgId"`
	Tag       string   `json:"tag,omitempty"`
	To        []string `json:"to"`
}

// Error is a non-2xx response from the email or token endpoint.
type Error struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ches: %s returned %d", e.URL, e.StatusCode)
}

// ResponseBody returns the response body for failure logs.
func (e *Error) ResponseBody() string { return e.Body }

// Client sends email merges.
type Client struct {
	config     Config
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// tokenSlack renews the token before the service would reject it.
const tokenSlack = 30 * time.Second

// NewClient returns a client for config.
func NewClient(config Config, clk clock.Clock, logger *slog.Logger) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{config: config, httpClient: httpClient, clock: clk, logger: logger}
}

// NewMerge returns an HTML, UTF-8, normal-priority merge from the
// configured sender.
func (c *Client) NewMerge(subject, body string, contexts []EmailContext) EmailMerge {
	return EmailMerge{
		From:     c.config.From,
		Subject:  subject,
		Body:     body,
		BodyType: "html",
		Encoding: "utf-8",
		Priority: "normal",
		Contexts: contexts,
	}
}

// SendEmail sends merge. With delivery disabled it returns an empty
// response without contacting the service.
func (c *Client) SendEmail(ctx context.Context, merge EmailMerge) (*EmailResponse, error) {
	if len(merge.Contexts) == 0 {
		return nil, fmt.Errorf("ches: merge %q has no recipients", merge.Subject)
	}
	if c.config.OverrideTo != "" {
		merge = c.override(merge)
	}
	if !c.config.Enabled {
		c.logger.Info("email delivery disabled, not sending",
			"subject", merge.Subject, "contexts", len(merge.Contexts))
		return &EmailResponse{}, nil
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(merge)
	if err != nil {
		return nil, fmt.Errorf("ches: encoding merge: %w", err)
	}
	endpoint := strings.TrimRight(c.config.URL, "/") + "/emailMerge"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("ches: creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)

	var response EmailResponse
	status, err := c.do(request, &response)
	if status == http.StatusUnauthorized {
		c.clearToken()
	}
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// override sends every context to the requestor, or OverrideTo when
// the requestor is unknown.
func (c *Client) override(merge EmailMerge) EmailMerge {
	to := c.config.OverrideTo
	if merge.Requestor != "" {
		to = merge.Requestor
	}
	contexts := make([]EmailContext, len(merge.Contexts))
	for i, emailContext := range merge.Contexts {
		emailContext.To = []string{to}
		contexts[i] = emailContext
	}
	merge.Contexts = contexts
	return merge
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.clock.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("ches: creating token request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	request.SetBasicAuth(c.config.ClientID, c.config.ClientSecret)

	var token tokenResponse
	if _, err := c.do(request, &token); err != nil {
		return "", fmt.Errorf("ches: requesting token: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("ches: token response has no access_token")
	}
	c.token = token.AccessToken
	c.tokenExpiry = c.clock.Now().Add(time.Duration(token.ExpiresIn)*time.Second - tokenSlack)
	return c.token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}

func (c *Client) do(request *http.Request, result any) (int, error) {
	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("ches: %s %s: %w", request.Method, request.URL.Redacted(), err)
	}
	defer response.Body.Close()
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return response.StatusCode, &Error{
			StatusCode: response.StatusCode,
			URL:        request.URL.Redacted(),
			Body:       netutil.ErrorBody(response.Body),
		}
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return response.StatusCode, fmt.Errorf("ches: decoding response: %w", err)
	}
	return response.StatusCode, nil
}

// Contexts builds one context per recipient, each tagged with tag, or a
// single context for an explicit comma-separated to list.
func Contexts(recipients []string, to, tag string, now time.Time) []EmailContext {
	if explicit := SplitAddresses(to); len(explicit) > 0 {
		return []EmailContext{{To: explicit, Context: map[string]any{}, Tag: tag, DelayTS: now.Unix()}}
	}
	contexts := make([]EmailContext, 0, len(recipients))
	for _, recipient := range recipients {
		if strings.TrimSpace(recipient) == "" {
			continue
		}
		contexts = append(contexts, EmailContext{
			To:      []string{strings.TrimSpace(recipient)},
			Context: map[string]any{},
			Tag:     tag,
			DelayTS: now.Unix(),
		})
	}
	return contexts
}

// SplitAddresses splits a comma-separated address list, dropping
// blanks.
func SplitAddresses(list string) []string {
	var addresses []string
	for _, address := range strings.Split(list, ",") {
		if address = strings.TrimSpace(address); address != "" {
			addresses = append(addresses, address)
		}
	}
	return addresses
}
