// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package contentref

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
)

// mapStore is a find-then-write Store without atomic claims.
type mapStore struct {
	mu         sync.Mutex
	references map[string]schema.ContentReference
	writes     int
}

func newMapStore() *mapStore {
	return &mapStore{references: make(map[string]schema.ContentReference)}
}

func (s *mapStore) FindContentReference(_ context.Context, source, uid string) (*schema.ContentReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reference, ok := s.references[source+"/"+uid]
	if !ok {
		return nil, nil
	}
	return &reference, nil
}

func (s *mapStore) AddContentReference(_ context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	return s.put(reference), nil
}

func (s *mapStore) UpdateContentReference(_ context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	return s.put(reference), nil
}

func (s *mapStore) put(reference *schema.ContentReference) *schema.ContentReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++
	stored := *reference
	stored.Version++
	s.references[reference.Source+"/"+reference.UID] = stored
	return &stored
}

func newTestManager(store Store) (*Manager, *clock.FakeClock) {
	fake := clock.Fake(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	return NewManager(store, fake, 5*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil))), fake
}

func at(t time.Time) *time.Time { return &t }

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		existing *schema.ContentReference
		want     bool
	}{
		{"missing", nil, true},
		{"fresh in progress", &schema.ContentReference{Status: schema.ReferenceInProgress, UpdatedOn: at(now.Add(-4 * time.Minute))}, false},
		{"at threshold", &schema.ContentReference{Status: schema.ReferenceInProgress, UpdatedOn: at(now.Add(-5 * time.Minute))}, true},
		{"stale in progress", &schema.ContentReference{Status: schema.ReferenceInProgress, UpdatedOn: at(now.Add(-time.Hour))}, true},
		{"in progress without time", &schema.ContentReference{Status: schema.ReferenceInProgress}, true},
		{"completed", &schema.ContentReference{Status: schema.ReferenceCompleted, UpdatedOn: at(now.Add(-time.Hour))}, false},
		{"failed", &schema.ContentReference{Status: schema.ReferenceFailed, UpdatedOn: at(now.Add(-time.Hour))}, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, reason := Evaluate(test.existing, now, 5*time.Minute)
			if got != test.want {
				t.Errorf("Evaluate = %v (%s), want %v", got, reason, test.want)
			}
			if reason == "" {
				t.Error("empty reason")
			}
		})
	}
}

func TestClaimNewReference(t *testing.T) {
	store := newMapStore()
	manager, fake := newTestManager(store)

	claim, err := manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc", Topic: "images", Offset: 3})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if !claim.Owned {
		t.Fatalf("new reference not owned: %s", claim.Reason)
	}
	if claim.Reference.Status != schema.ReferenceInProgress || !claim.Reference.UpdatedOn.Equal(fake.Now()) {
		t.Errorf("stored reference = %+v", claim.Reference)
	}

	// A second worker inside the window skips.
	fake.Advance(4 * time.Minute)
	claim, err = manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc"})
	if err != nil {
		t.Fatalf("second Claim: %v", err)
	}
	if claim.Owned {
		t.Fatal("fresh InProgress reference claimed twice")
	}
}

func TestClaimReclaimsStaleReference(t *testing.T) {
	store := newMapStore()
	manager, fake := newTestManager(store)
	if _, err := manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc", Offset: 1}); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	fake.Advance(6 * time.Minute)
	claim, err := manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc", Offset: 9})
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !claim.Owned {
		t.Fatalf("stale reference not reclaimed: %s", claim.Reason)
	}
	if claim.Reference.Offset != 9 || !claim.Reference.UpdatedOn.Equal(fake.Now()) {
		t.Errorf("reclaimed reference = %+v", claim.Reference)
	}
}

func TestCompleteBlocksFurtherClaims(t *testing.T) {
	store := newMapStore()
	manager, fake := newTestManager(store)
	claim, err := manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := manager.Complete(context.Background(), claim.Reference); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	fake.Advance(24 * time.Hour)
	claim, err = manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc"})
	if err != nil {
		t.Fatalf("Claim after Complete: %v", err)
	}
	if claim.Owned || claim.Reference.Status != schema.ReferenceCompleted {
		t.Errorf("claim after Complete = %+v", claim)
	}
}

type claimingStore struct {
	*mapStore
	calls int
}

func (s *claimingStore) ClaimContentReference(_ context.Context, reference *schema.ContentReference, now time.Time, _ time.Duration) (Claim, error) {
	s.calls++
	reference.Status = schema.ReferenceInProgress
	reference.UpdatedOn = &now
	return Claim{Owned: true, Reason: "new", Reference: s.put(reference)}, nil
}

func TestClaimPrefersAtomicStore(t *testing.T) {
	store := &claimingStore{mapStore: newMapStore()}
	manager, _ := newTestManager(store)
	claim, err := manager.Claim(context.Background(), schema.ContentReference{Source: "SUN", UID: "abc"})
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if store.calls != 1 || !claim.Owned {
		t.Errorf("calls = %d, claim = %+v", store.calls, claim)
	}
}
