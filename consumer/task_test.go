// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/lib/testutil"
)

func TestTaskSlotSingleActiveTask(t *testing.T) {
	var slot taskSlot
	release := make(chan struct{})

	first, err := slot.start(context.Background(), func(ctx context.Context, generation uint64) {
		<-release
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if first.generation != 1 {
		t.Errorf("generation = %d, want 1", first.generation)
	}

	// Cancelled but not yet terminated still blocks a new start.
	slot.cancel()
	if _, err := slot.start(context.Background(), func(context.Context, uint64) {}); !errors.Is(err, ErrTaskActive) {
		t.Fatalf("start while active: err = %v, want ErrTaskActive", err)
	}

	close(release)
	testutil.RequireClosed(t, first.done, 5*time.Second, "first task did not terminate")

	second, err := slot.start(context.Background(), func(context.Context, uint64) {})
	if err != nil {
		t.Fatalf("start after termination: %v", err)
	}
	if second.generation != 2 {
		t.Errorf("generation = %d, want 2", second.generation)
	}
	if err := slot.wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if slot.active() {
		t.Error("slot still active after wait")
	}
}

func TestTaskSlotCancelReachesTask(t *testing.T) {
	var slot taskSlot
	observed := make(chan struct{})
	if _, err := slot.start(context.Background(), func(ctx context.Context, _ uint64) {
		<-ctx.Done()
		close(observed)
	}); err != nil {
		t.Fatalf("start: %v", err)
	}
	slot.cancel()
	testutil.RequireClosed(t, observed, 5*time.Second, "task did not observe cancellation")
}
