// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/contentref"
	"github.com/mmia-foundation/mmia/lib/blob"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
)

var epoch = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	store, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "mmia.db"),
		PoolSize:    4,
		Compression: blob.Zstd,
		Clock:       fake,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fake
}

func TestContentReferenceRoundTrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	found, err := store.FindContentReference(ctx, "CP", "abc")
	if err != nil || found != nil {
		t.Fatalf("Find on empty store = %+v, %v", found, err)
	}

	published := epoch.Add(-time.Hour)
	added, err := store.AddContentReference(ctx, &schema.ContentReference{
		Source: "CP", UID: "abc", Topic: "images", Partition: 2, Offset: 41,
		Status: schema.ReferenceInProgress, PublishedOn: &published, UpdatedOn: &epoch,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	found, err = store.FindContentReference(ctx, "CP", "abc")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.Partition != 2 || found.Offset != 41 || found.Status != schema.ReferenceInProgress {
		t.Errorf("found = %+v", found)
	}
	if !found.PublishedOn.Equal(published) || !found.UpdatedOn.Equal(epoch) {
		t.Errorf("times = %v, %v", found.PublishedOn, found.UpdatedOn)
	}

	if _, err := store.AddContentReference(ctx, added); err == nil {
		t.Error("duplicate Add succeeded")
	}

	added.Status = schema.ReferenceCompleted
	updated, err := store.UpdateContentReference(ctx, added)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 {
		t.Errorf("version = %d, want 1", updated.Version)
	}

	_, err = store.UpdateContentReference(ctx, added)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("stale Update error = %v, want *ConflictError", err)
	}
}

func TestClaimContentReference(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()
	manager := contentref.NewManager(store, fake, 5*time.Minute, nil)

	reference := schema.ContentReference{Source: "CP", UID: "u1", Topic: "images", Offset: 7}
	first, err := manager.Claim(ctx, reference)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !first.Owned || first.Reference.Status != schema.ReferenceInProgress {
		t.Fatalf("first claim = %+v", first)
	}

	fake.Advance(time.Minute)
	second, err := manager.Claim(ctx, reference)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if second.Owned {
		t.Fatalf("fresh in-progress reference claimed twice: %+v", second)
	}

	fake.Advance(4 * time.Minute)
	reference.Offset = 9
	third, err := manager.Claim(ctx, reference)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !third.Owned || third.Reference.Offset != 9 || third.Reference.Version != 1 {
		t.Fatalf("stale reclaim = %+v", third)
	}

	completed, err := manager.Complete(ctx, third.Reference)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != schema.ReferenceCompleted {
		t.Errorf("status = %s", completed.Status)
	}

	fake.Advance(time.Hour)
	fourth, err := manager.Claim(ctx, reference)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if fourth.Owned {
		t.Error("completed reference claimed")
	}
}

func TestConcurrentClaimsHaveOneOwner(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, err := store.ClaimContentReference(ctx,
				&schema.ContentReference{Source: "CP", UID: "race"}, fake.Now(), 5*time.Minute)
			if err != nil {
				t.Errorf("Claim: %v", err)
				return
			}
			if claim.Owned {
				mu.Lock()
				owners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if owners != 1 {
		t.Fatalf("owners = %d, want 1", owners)
	}
}

func TestWorkOrders(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	found, err := store.FindWorkOrder(ctx, 99)
	if err != nil || found != nil {
		t.Fatalf("Find missing = %+v, %v", found, err)
	}

	contentID := int64(12)
	added, err := store.AddWorkOrder(ctx, &schema.WorkOrder{
		WorkType: schema.WorkOrderTranscription, Status: schema.WorkOrderSubmitted, ContentID: &contentID,
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if added.ID == 0 {
		t.Fatal("no id assigned")
	}

	found, err = store.FindWorkOrder(ctx, added.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.ContentID == nil || *found.ContentID != 12 || found.RequestorID != nil {
		t.Errorf("found = %+v", found)
	}

	found.Status = schema.WorkOrderInProgress
	updated, err := store.UpdateWorkOrder(ctx, found)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Version != 1 || updated.Status != schema.WorkOrderInProgress {
		t.Errorf("updated = %+v", updated)
	}
	var conflict *ConflictError
	if _, err := store.UpdateWorkOrder(ctx, found); !errors.As(err, &conflict) {
		t.Errorf("stale Update error = %v", err)
	}
}

func TestDeliveryArchive(t *testing.T) {
	store, fake := openTestStore(t)
	ctx := context.Background()

	response := json.RawMessage(`{"txId":"t-1","messages":[{"msgId":"m-1","to":["a@example.com"]}]}`)
	first, err := store.ArchiveDelivery(ctx, Delivery{
		Kind: DeliveryNotification, RecordID: 5, Subject: "Alert",
		Recipients: []string{"a@example.com"}, Response: response,
	})
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if first.Tag == "" || !first.SentAt.Equal(epoch) {
		t.Errorf("archived = %+v", first)
	}

	fake.Advance(time.Minute)
	if _, err := store.ArchiveDelivery(ctx, Delivery{Kind: DeliveryNotification, RecordID: 5, Subject: "Resend"}); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if _, err := store.ArchiveDelivery(ctx, Delivery{Kind: DeliveryReport, RecordID: 5, Subject: "Report"}); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	deliveries, err := store.Deliveries(ctx, DeliveryNotification, 5)
	if err != nil {
		t.Fatalf("Deliveries: %v", err)
	}
	if len(deliveries) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(deliveries))
	}
	if deliveries[0].Subject != "Alert" || deliveries[1].Subject != "Resend" {
		t.Errorf("order = %q, %q", deliveries[0].Subject, deliveries[1].Subject)
	}
	if string(deliveries[0].Response) != string(response) {
		t.Errorf("response = %s", deliveries[0].Response)
	}
}
