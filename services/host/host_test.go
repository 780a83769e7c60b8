// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/config"
	"github.com/mmia-foundation/mmia/lib/schema"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Service.Name = "mmia-test-service"
	cfg.API.URL = "http://127.0.0.1:1/api"
	return cfg
}

func TestNewRejectsBadAPIURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.API.URL = "ftp://example"
	_, err := New(cfg, slog.New(slog.DiscardHandler), clock.Real())
	if consumer.Classify(err) != consumer.ClassFatal {
		t.Errorf("err = %v, want a configuration error", err)
	}
}

func TestLocalStoreBacksReferences(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = filepath.Join(t.TempDir(), "mmia.db")
	fake := clock.Fake(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	h, err := New(cfg, slog.New(slog.DiscardHandler), fake)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer h.Close()
	if h.Store == nil {
		t.Fatal("store not opened")
	}

	ctx := context.Background()
	claim, err := h.References().Claim(ctx, schema.ContentReference{Source: "DAILY", UID: "abc"})
	if err != nil || !claim.Owned {
		t.Fatalf("Claim = %+v, %v", claim, err)
	}
	stored, err := h.Store.FindContentReference(ctx, "DAILY", "abc")
	if err != nil || stored == nil || stored.Status != schema.ReferenceInProgress {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	order, err := h.Store.AddWorkOrder(ctx, &schema.WorkOrder{Status: schema.WorkOrderSubmitted})
	if err != nil {
		t.Fatal(err)
	}
	transition, _, err := h.WorkOrders().Transition(ctx, order.ID, schema.WorkOrderInProgress, "")
	if err != nil || transition != consumer.TransitionApplied {
		t.Errorf("Transition = %s, %v", transition, err)
	}
}

func TestPipelineConfigFollowsServiceMode(t *testing.T) {
	cfg := testConfig(t)
	cfg.Service.AcceptOnlyWorkOrders = true
	h, err := New(cfg, slog.New(slog.DiscardHandler), clock.Real())
	if err != nil {
		t.Fatal(err)
	}
	if !h.PipelineConfig().Strict {
		t.Error("strict mode not applied")
	}
	if h.Sender() == nil {
		t.Error("no sender")
	}
}
