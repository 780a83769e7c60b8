// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package ches

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/lib/clock"
)

type fakeCHES struct {
	tokens atomic.Int32
	reject atomic.Bool

	mu     sync.Mutex
	merges []EmailMerge
}

func (f *fakeCHES) sent() []EmailMerge {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.merges)
}

func (f *fakeCHES) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "mmia" || secret != "s3cret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("token form = %v", r.PostForm)
		}
		n := f.tokens.Add(1)
		json.NewEncoder(w).Encode(map[string]any{"access_token": "token-" + string(rune('0'+n)), "expires_in": 300})
	})
	mux.HandleFunc("POST /api/v1/emailMerge", func(w http.ResponseWriter, r *http.Request) {
		if f.reject.Load() {
			http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
			return
		}
		var merge EmailMerge
		if err := json.NewDecoder(r.Body).Decode(&merge); err != nil {
			t.Errorf("decoding merge: %v", err)
		}
		f.mu.Lock()
		f.merges = append(f.merges, merge)
		f.mu.Unlock()
		json.NewEncoder(w).Encode(EmailResponse{
			TransactionID: "tx-1",
			Messages:      []EmailMessage{{MessageID: "m-1", To: merge.Contexts[0].To}},
		})
	})
	return mux
}

func newTestClient(t *testing.T, configure func(*Config)) (*Client, *fakeCHES, *clock.FakeClock) {
	t.Helper()
	fake := &fakeCHES{}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	config := Config{
		URL:          server.URL + "/api/v1",
		AuthURL:      server.URL + "/token",
		ClientID:     "mmia",
		ClientSecret: "s3cret",
		From:         "noreply@mmia.example",
		Enabled:      true,
	}
	if configure != nil {
		configure(&config)
	}
	clk := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	return NewClient(config, clk, slog.New(slog.NewTextHandler(io.Discard, nil))), fake, clk
}

func TestSendEmailCachesToken(t *testing.T) {
	client, fake, clk := newTestClient(t, nil)
	merge := client.NewMerge("Alert", "<p>body</p>", Contexts([]string{"a@x", " ", "b@x"}, "", "alert-1", clk.Now()))

	for range 2 {
		response, err := client.SendEmail(context.Background(), merge)
		if err != nil {
			t.Fatalf("SendEmail: %v", err)
		}
		if response.TransactionID != "tx-1" {
			t.Errorf("response = %+v", response)
		}
	}
	if got := fake.tokens.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1", got)
	}
	sent := fake.sent()[0]
	if sent.From != "noreply@mmia.example" || sent.BodyType != "html" || len(sent.Contexts) != 2 {
		t.Errorf("sent merge = %+v", sent)
	}

	// Past expiry (minus slack) a new token is fetched.
	clk.Advance(5 * time.Minute)
	if _, err := client.SendEmail(context.Background(), merge); err != nil {
		t.Fatalf("SendEmail after expiry: %v", err)
	}
	if got := fake.tokens.Load(); got != 2 {
		t.Errorf("token requests after expiry = %d, want 2", got)
	}
}

func TestSendEmailUnauthorizedDropsToken(t *testing.T) {
	client, fake, clk := newTestClient(t, nil)
	merge := client.NewMerge("s", "b", Contexts([]string{"a@x"}, "", "", clk.Now()))
	if _, err := client.SendEmail(context.Background(), merge); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}

	fake.reject.Store(true)
	_, err := client.SendEmail(context.Background(), merge)
	var chesErr *Error
	if !errors.As(err, &chesErr) || chesErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 *Error", err)
	}
	if chesErr.ResponseBody() == "" {
		t.Error("error has no body")
	}

	fake.reject.Store(false)
	if _, err := client.SendEmail(context.Background(), merge); err != nil {
		t.Fatalf("SendEmail after 401: %v", err)
	}
	if got := fake.tokens.Load(); got != 2 {
		t.Errorf("token requests = %d, want 2", got)
	}
}

func TestSendEmailOverride(t *testing.T) {
	client, fake, clk := newTestClient(t, func(config *Config) { config.OverrideTo = "qa@mmia.example" })
	merge := client.NewMerge("s", "b", Contexts([]string{"a@x", "b@x"}, "", "", clk.Now()))

	if _, err := client.SendEmail(context.Background(), merge); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	merge.Requestor = "editor@mmia.example"
	if _, err := client.SendEmail(context.Background(), merge); err != nil {
		t.Fatalf("SendEmail with requestor: %v", err)
	}

	for i, want := range []string{"qa@mmia.example", "editor@mmia.example"} {
		for _, emailContext := range fake.sent()[i].Contexts {
			if !slices.Equal(emailContext.To, []string{want}) {
				t.Errorf("merge %d context to = %v, want %s", i, emailContext.To, want)
			}
		}
	}
}

func TestSendEmailDisabled(t *testing.T) {
	client, fake, clk := newTestClient(t, func(config *Config) { config.Enabled = false })
	response, err := client.SendEmail(context.Background(), client.NewMerge("s", "b", Contexts([]string{"a@x"}, "", "", clk.Now())))
	if err != nil || response == nil {
		t.Fatalf("SendEmail = %v, %v", response, err)
	}
	if fake.tokens.Load() != 0 || len(fake.sent()) != 0 {
		t.Error("disabled client contacted the service")
	}
}

func TestSendEmailWithoutRecipients(t *testing.T) {
	client, _, _ := newTestClient(t, nil)
	if _, err := client.SendEmail(context.Background(), client.NewMerge("s", "b", nil)); err == nil {
		t.Error("SendEmail without contexts succeeded")
	}
}

func TestContextsExplicitList(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	contexts := Contexts([]string{"sub@x"}, " one@x, ,two@x ", "report-4", now)
	if len(contexts) != 1 || !slices.Equal(contexts[0].To, []string{"one@x", "two@x"}) || contexts[0].Tag != "report-4" {
		t.Errorf("contexts = %+v", contexts)
	}
}
