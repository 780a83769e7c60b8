// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentref decides which worker ingests an item.
//
// A content reference, keyed by (source, uid), records that an item
// has been claimed. The first worker to find no reference creates one
// InProgress and owns the item. A reference left InProgress longer than
// the staleness window is assumed abandoned and may be reclaimed. Every
// other reference means the item is owned or done, and the worker skips
// it.
package contentref

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
)

// DefaultStaleAfter is the staleness window used when none is
// configured.
const DefaultStaleAfter = 5 * time.Minute

// Store reads and writes content references.
type Store interface {
	// FindContentReference returns nil and no error when the reference
	// does not exist.
	FindContentReference(ctx context.Context, source, uid string) (*schema.ContentReference, error)
	AddContentReference(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error)
	UpdateContentReference(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error)
}

// Claimer is implemented by stores that evaluate and write a claim in
// one transaction. The Manager prefers it over find-then-write.
type Claimer interface {
	ClaimContentReference(ctx context.Context, reference *schema.ContentReference, now time.Time, staleAfter time.Duration) (Claim, error)
}

// Claim is the outcome of a claim attempt.
type Claim struct {
	// Owned is true when this worker now holds the reference.
	Owned bool
	// Reason explains the outcome for logs.
	Reason string
	// Reference is the stored reference after the attempt.
	Reference *schema.ContentReference
}

// Evaluate decides whether a worker may take existing at now. It
// returns false with a reason for references that are owned or done.
// An InProgress reference without an update time is treated as stale.
func Evaluate(existing *schema.ContentReference, now time.Time, staleAfter time.Duration) (bool, string) {
	if existing == nil {
		return true, "new"
	}
	switch existing.Status {
	case schema.ReferenceInProgress:
		if existing.UpdatedOn == nil {
			return true, "reclaimed without update time"
		}
		age := now.Sub(*existing.UpdatedOn)
		if age >= staleAfter {
			return true, fmt.Sprintf("reclaimed after %s", age.Truncate(time.Second))
		}
		return false, fmt.Sprintf("in progress for %s", age.Truncate(time.Second))
	case schema.ReferenceCompleted:
		return false, "already completed"
	}
	return false, fmt.Sprintf("status %s", existing.Status)
}

// Manager claims and settles content references.
type Manager struct {
	store      Store
	clock      clock.Clock
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewManager returns a Manager. A non-positive staleAfter uses
// DefaultStaleAfter.
func NewManager(store Store, clk clock.Clock, staleAfter time.Duration, logger *slog.Logger) *Manager {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Manager{store: store, clock: clk, staleAfter: staleAfter, logger: logger}
}

// Claim tries to take ownership of reference. Source and UID identify
// it; the broker position and PublishedOn are written with the claim.
func (m *Manager) Claim(ctx context.Context, reference schema.ContentReference) (Claim, error) {
	now := m.clock.Now().UTC()
	if claimer, ok := m.store.(Claimer); ok {
		claim, err := claimer.ClaimContentReference(ctx, &reference, now, m.staleAfter)
		if err != nil {
			return Claim{}, fmt.Errorf("claiming content reference %s/%s: %w", reference.Source, reference.UID, err)
		}
		return claim, nil
	}

	existing, err := m.store.FindContentReference(ctx, reference.Source, reference.UID)
	if err != nil {
		return Claim{}, fmt.Errorf("finding content reference %s/%s: %w", reference.Source, reference.UID, err)
	}
	owned, reason := Evaluate(existing, now, m.staleAfter)
	if !owned {
		return Claim{Reason: reason, Reference: existing}, nil
	}

	if existing == nil {
		reference.Status = schema.ReferenceInProgress
		reference.UpdatedOn = &now
		stored, err := m.store.AddContentReference(ctx, &reference)
		if err != nil {
			return Claim{}, fmt.Errorf("adding content reference %s/%s: %w", reference.Source, reference.UID, err)
		}
		return Claim{Owned: true, Reason: reason, Reference: stored}, nil
	}

	m.logger.Warn("reclaiming stale content reference",
		"source", existing.Source, "uid", existing.UID, "reason", reason)
	existing.Status = schema.ReferenceInProgress
	existing.UpdatedOn = &now
	existing.Topic = reference.Topic
	existing.Partition = reference.Partition
	existing.Offset = reference.Offset
	stored, err := m.store.UpdateContentReference(ctx, existing)
	if err != nil {
		return Claim{}, fmt.Errorf("reclaiming content reference %s/%s: %w", existing.Source, existing.UID, err)
	}
	return Claim{Owned: true, Reason: reason, Reference: stored}, nil
}

// Complete marks an owned reference Completed.
func (m *Manager) Complete(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	return m.settle(ctx, reference, schema.ReferenceCompleted)
}

// Fail marks an owned reference Failed.
func (m *Manager) Fail(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	return m.settle(ctx, reference, schema.ReferenceFailed)
}

func (m *Manager) settle(ctx context.Context, reference *schema.ContentReference, status schema.ReferenceStatus) (*schema.ContentReference, error) {
	now := m.clock.Now().UTC()
	updated := *reference
	updated.Status = status
	updated.UpdatedOn = &now
	stored, err := m.store.UpdateContentReference(ctx, &updated)
	if err != nil {
		return nil, fmt.Errorf("marking content reference %s/%s %s: %w", reference.Source, reference.UID, status, err)
	}
	return stored, nil
}
