// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/mmia-foundation/mmia/lib/blob"
	"github.com/mmia-foundation/mmia/lib/codec"
)

// DeliveryKind names what was delivered.
type DeliveryKind string

const (
	DeliveryNotification DeliveryKind = "notification"
	DeliveryReport       DeliveryKind = "report"
	DeliveryAVOverview   DeliveryKind = "av-overview"
)

// Delivery is one sent email with the provider's response. The archive
// keeps it after the data API record has been overwritten by a resend.
type Delivery struct {
	Tag        string          `cbor:"tag"`
	Kind       DeliveryKind    `cbor:"kind"`
	RecordID   int64           `cbor:"record_id"`
	Subject    string          `cbor:"subject"`
	Recipients []string        `cbor:"recipients,omitempty"`
	Response   json.RawMessage `cbor:"response,omitempty"`
	SentAt     time.Time       `cbor:"sent_at"`
}

// ArchiveDelivery stores delivery, CBOR encoded and compressed. Tag and
// SentAt are filled in when empty; the stored delivery is returned.
func (s *Store) ArchiveDelivery(ctx context.Context, delivery Delivery) (Delivery, error) {
	if delivery.Tag == "" {
		delivery.Tag = uuid.NewString()
	}
	if delivery.SentAt.IsZero() {
		delivery.SentAt = s.clock.Now()
	}
	delivery.SentAt = delivery.SentAt.UTC()

	encoded, err := codec.Marshal(delivery)
	if err != nil {
		return Delivery{}, fmt.Errorf("store: encoding delivery: %w", err)
	}
	envelope, err := blob.Encode(encoded, s.compression)
	if err != nil {
		return Delivery{}, fmt.Errorf("store: compressing delivery: %w", err)
	}

	err = s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO deliveries (tag, kind, record_id, sent_at, compression, payload) VALUES (?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				delivery.Tag, string(delivery.Kind), delivery.RecordID,
				delivery.SentAt.UnixNano(), blob.Tag(envelope[0]).String(), envelope,
			}})
	})
	if err != nil {
		return Delivery{}, fmt.Errorf("store: archiving %s delivery for %d: %w", delivery.Kind, delivery.RecordID, err)
	}
	s.logger.Debug("delivery archived",
		"tag", delivery.Tag, "kind", delivery.Kind, "record_id", delivery.RecordID,
		"raw_bytes", len(encoded), "stored_bytes", len(envelope))
	return delivery, nil
}

// Deliveries returns the archived deliveries for a record, oldest
// first.
func (s *Store) Deliveries(ctx context.Context, kind DeliveryKind, recordID int64) ([]Delivery, error) {
	var envelopes [][]byte
	err := s.pool.WithConn(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT payload FROM deliveries WHERE kind = ? AND record_id = ? ORDER BY sent_at, tag`,
			&sqlitex.ExecOptions{
				Args: []any{string(kind), recordID},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					envelope := make([]byte, stmt.ColumnLen(0))
					stmt.ColumnBytes(0, envelope)
					envelopes = append(envelopes, envelope)
					return nil
				},
			})
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing %s deliveries for %d: %w", kind, recordID, err)
	}

	deliveries := make([]Delivery, 0, len(envelopes))
	for _, envelope := range envelopes {
		encoded, err := blob.Decode(envelope)
		if err != nil {
			return nil, fmt.Errorf("store: decompressing delivery: %w", err)
		}
		var delivery Delivery
		if err := codec.Unmarshal(encoded, &delivery); err != nil {
			return nil, fmt.Errorf("store: decoding delivery: %w", err)
		}
		deliveries = append(deliveries, delivery)
	}
	return deliveries, nil
}
