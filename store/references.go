// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/mmia-foundation/mmia/contentref"
	"github.com/mmia-foundation/mmia/lib/schema"
)

const referenceColumns = `source, uid, topic, broker_partition, broker_offset, status, published_on, updated_on, version`

func scanReference(stmt *sqlite.Stmt) *schema.ContentReference {
	return &schema.ContentReference{
		Source:      stmt.ColumnText(0),
		UID:         stmt.ColumnText(1),
		Topic:       stmt.ColumnText(2),
		Partition:   int32(stmt.ColumnInt64(3)),
		Offset:      stmt.ColumnInt64(4),
		Status:      schema.ReferenceStatus(stmt.ColumnText(5)),
		PublishedOn: columnTime(stmt, 6),
		UpdatedOn:   columnTime(stmt, 7),
		Version:     stmt.ColumnInt64(8),
	}
}

func findReference(conn *sqlite.Conn, source, uid string) (*schema.ContentReference, error) {
	var found *schema.ContentReference
	err := sqlitex.Execute(conn,
		`SELECT `+referenceColumns+` FROM content_references WHERE source = ? AND uid = ?`,
		&sqlitex.ExecOptions{
			Args: []any{source, uid},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				found = scanReference(stmt)
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: finding content reference %s/%s: %w", source, uid, err)
	}
	return found, nil
}

func insertReference(conn *sqlite.Conn, reference *schema.ContentReference) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO content_references (`+referenceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		&sqlitex.ExecOptions{Args: []any{
			reference.Source, reference.UID, reference.Topic, int64(reference.Partition), reference.Offset,
			string(reference.Status), timeArg(reference.PublishedOn), timeArg(reference.UpdatedOn),
		}})
	if err != nil {
		return fmt.Errorf("store: adding content reference %s/%s: %w", reference.Source, reference.UID, err)
	}
	reference.Version = 0
	return nil
}

// updateReference writes reference if its version is still current and
// bumps the version.
func updateReference(conn *sqlite.Conn, reference *schema.ContentReference) error {
	err := sqlitex.Execute(conn,
		`UPDATE content_references
		 SET topic = ?, broker_partition = ?, broker_offset = ?, status = ?, published_on = ?, updated_on = ?, version = version + 1
		 WHERE source = ? AND uid = ? AND version = ?`,
		&sqlitex.ExecOptions{Args: []any{
			reference.Topic, int64(reference.Partition), reference.Offset, string(reference.Status),
			timeArg(reference.PublishedOn), timeArg(reference.UpdatedOn),
			reference.Source, reference.UID, reference.Version,
		}})
	if err != nil {
		return fmt.Errorf("store: updating content reference %s/%s: %w", reference.Source, reference.UID, err)
	}
	if conn.Changes() == 0 {
		return &ConflictError{Table: "content_references", Key: reference.Source + "/" + reference.UID, Version: reference.Version}
	}
	reference.Version++
	return nil
}

// FindContentReference returns the reference or nil when none exists.
func (s *Store) FindContentReference(ctx context.Context, source, uid string) (*schema.ContentReference, error) {
	var found *schema.ContentReference
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		var err error
		found, err = findReference(conn, source, uid)
		return err
	})
	return found, err
}

// AddContentReference inserts a new reference. Inserting an existing
// (source, uid) fails.
func (s *Store) AddContentReference(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	added := *reference
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return insertReference(conn, &added)
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// UpdateContentReference writes reference, failing with a
// *ConflictError when reference.Version is stale.
func (s *Store) UpdateContentReference(ctx context.Context, reference *schema.ContentReference) (*schema.ContentReference, error) {
	updated := *reference
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return updateReference(conn, &updated)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ClaimContentReference evaluates and writes a claim in one
// transaction.
func (s *Store) ClaimContentReference(ctx context.Context, reference *schema.ContentReference, now time.Time, staleAfter time.Duration) (claim contentref.Claim, err error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return contentref.Claim{}, err
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return contentref.Claim{}, fmt.Errorf("store: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	existing, err := findReference(conn, reference.Source, reference.UID)
	if err != nil {
		return contentref.Claim{}, err
	}
	owned, reason := contentref.Evaluate(existing, now, staleAfter)
	if !owned {
		return contentref.Claim{Reason: reason, Reference: existing}, nil
	}

	if existing == nil {
		claimed := *reference
		claimed.Status = schema.ReferenceInProgress
		claimed.UpdatedOn = &now
		if err = insertReference(conn, &claimed); err != nil {
			return contentref.Claim{}, err
		}
		return contentref.Claim{Owned: true, Reason: reason, Reference: &claimed}, nil
	}

	s.logger.Warn("reclaiming stale content reference",
		"source", existing.Source, "uid", existing.UID, "reason", reason)
	existing.Status = schema.ReferenceInProgress
	existing.UpdatedOn = &now
	existing.Topic = reference.Topic
	existing.Partition = reference.Partition
	existing.Offset = reference.Offset
	if err = updateReference(conn, existing); err != nil {
		return contentref.Claim{}, err
	}
	return contentref.Claim{Owned: true, Reason: reason, Reference: existing}, nil
}
