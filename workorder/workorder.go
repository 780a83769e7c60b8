// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package workorder moves work orders through their statuses without
// ever leaving a terminal status.
package workorder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
)

// Store reads and writes work orders.
type Store interface {
	// FindWorkOrder returns nil and no error when the work order does
	// not exist.
	FindWorkOrder(ctx context.Context, id int64) (*schema.WorkOrder, error)
	UpdateWorkOrder(ctx context.Context, order *schema.WorkOrder) (*schema.WorkOrder, error)
}

// Tracker applies status transitions.
type Tracker struct {
	store  Store
	clock  clock.Clock
	logger *slog.Logger
}

// NewTracker returns a Tracker writing through store.
func NewTracker(store Store, clk clock.Clock, logger *slog.Logger) *Tracker {
	return &Tracker{store: store, clock: clk, logger: logger}
}

// Transition moves work order id to status. An id of zero or a missing
// work order yields TransitionAbsent; a terminal work order is left
// alone and yields TransitionIgnored. Moving to the status the order
// already has is applied without a write.
func (t *Tracker) Transition(ctx context.Context, id int64, status schema.WorkOrderStatus, note string) (consumer.Transition, *schema.WorkOrder, error) {
	if id == 0 {
		return consumer.TransitionAbsent, nil, nil
	}
	order, err := t.store.FindWorkOrder(ctx, id)
	if err != nil {
		return 0, nil, fmt.Errorf("finding work order %d: %w", id, err)
	}
	if order == nil {
		t.logger.Debug("work order not found", "work_order", id)
		return consumer.TransitionAbsent, nil, nil
	}
	if order.Status.IsTerminal() {
		t.logger.Debug("work order is terminal, not updating",
			"work_order", id, "status", order.Status, "requested", status)
		return consumer.TransitionIgnored, order, nil
	}
	if order.Status == status && note == "" {
		return consumer.TransitionApplied, order, nil
	}

	now := t.clock.Now().UTC()
	order.Status = status
	order.UpdatedOn = &now
	if note != "" {
		order.Note = note
	}
	updated, err := t.store.UpdateWorkOrder(ctx, order)
	if err != nil {
		return 0, nil, fmt.Errorf("updating work order %d to %s: %w", id, status, err)
	}
	return consumer.TransitionApplied, updated, nil
}
