// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package workorder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/consumer"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
)

type memoryStore struct {
	orders  map[int64]schema.WorkOrder
	updates int
	failing error
}

func (s *memoryStore) FindWorkOrder(_ context.Context, id int64) (*schema.WorkOrder, error) {
	order, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	return &order, nil
}

func (s *memoryStore) UpdateWorkOrder(_ context.Context, order *schema.WorkOrder) (*schema.WorkOrder, error) {
	if s.failing != nil {
		return nil, s.failing
	}
	s.updates++
	order.Version++
	s.orders[order.ID] = *order
	return order, nil
}

func newTracker(store *memoryStore) *Tracker {
	fake := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	return NewTracker(store, fake, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestTransitionLifecycle(t *testing.T) {
	store := &memoryStore{orders: map[int64]schema.WorkOrder{
		7: {ID: 7, Status: schema.WorkOrderSubmitted},
	}}
	tracker := newTracker(store)
	ctx := context.Background()

	transition, order, err := tracker.Transition(ctx, 7, schema.WorkOrderInProgress, "")
	if err != nil || transition != consumer.TransitionApplied {
		t.Fatalf("InProgress: transition=%s err=%v", transition, err)
	}
	if order.Status != schema.WorkOrderInProgress || order.UpdatedOn == nil {
		t.Errorf("order = %+v", order)
	}

	// A retry asking for the same status does not write again.
	if transition, _, _ := tracker.Transition(ctx, 7, schema.WorkOrderInProgress, ""); transition != consumer.TransitionApplied {
		t.Errorf("repeat InProgress: transition = %s", transition)
	}
	if store.updates != 1 {
		t.Errorf("updates = %d, want 1", store.updates)
	}

	if _, _, err := tracker.Transition(ctx, 7, schema.WorkOrderCompleted, "done"); err != nil {
		t.Fatalf("Completed: %v", err)
	}
	if got := store.orders[7]; got.Status != schema.WorkOrderCompleted || got.Note != "done" {
		t.Errorf("stored order = %+v", got)
	}
}

func TestTransitionNeverLeavesTerminalStatus(t *testing.T) {
	for _, status := range []schema.WorkOrderStatus{schema.WorkOrderCompleted, schema.WorkOrderFailed, schema.WorkOrderCancelled} {
		t.Run(string(status), func(t *testing.T) {
			store := &memoryStore{orders: map[int64]schema.WorkOrder{1: {ID: 1, Status: status}}}
			tracker := newTracker(store)
			for _, next := range []schema.WorkOrderStatus{schema.WorkOrderInProgress, schema.WorkOrderCompleted, schema.WorkOrderFailed} {
				transition, _, err := tracker.Transition(context.Background(), 1, next, "")
				if err != nil {
					t.Fatalf("Transition(%s): %v", next, err)
				}
				if transition != consumer.TransitionIgnored {
					t.Errorf("Transition(%s) = %s, want ignored", next, transition)
				}
			}
			if store.updates != 0 || store.orders[1].Status != status {
				t.Errorf("terminal order was written: %+v", store.orders[1])
			}
		})
	}
}

func TestTransitionAbsent(t *testing.T) {
	store := &memoryStore{orders: map[int64]schema.WorkOrder{}}
	tracker := newTracker(store)
	for _, id := range []int64{0, 42} {
		transition, order, err := tracker.Transition(context.Background(), id, schema.WorkOrderInProgress, "")
		if err != nil || transition != consumer.TransitionAbsent || order != nil {
			t.Errorf("id %d: transition=%s order=%v err=%v", id, transition, order, err)
		}
	}
}

func TestTransitionUpdateError(t *testing.T) {
	store := &memoryStore{
		orders:  map[int64]schema.WorkOrder{3: {ID: 3, Status: schema.WorkOrderSubmitted}},
		failing: errors.New("409 conflict"),
	}
	tracker := newTracker(store)
	if _, _, err := tracker.Transition(context.Background(), 3, schema.WorkOrderInProgress, ""); err == nil {
		t.Fatal("Transition succeeded with a failing store")
	}
}
