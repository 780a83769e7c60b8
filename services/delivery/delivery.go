// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery sends rendered email for the notification and
// reporting services and keeps a copy of what the provider accepted.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mmia-foundation/mmia/ches"
	"github.com/mmia-foundation/mmia/lib/clock"
	"github.com/mmia-foundation/mmia/lib/schema"
	"github.com/mmia-foundation/mmia/store"
)

// Users looks up requestors.
type Users interface {
	// GetUser returns nil and no error for an unknown user.
	GetUser(ctx context.Context, id int64) (*schema.User, error)
}

// Mailer sends a merge.
type Mailer interface {
	NewMerge(subject, body string, contexts []ches.EmailContext) ches.EmailMerge
	SendEmail(ctx context.Context, merge ches.EmailMerge) (*ches.EmailResponse, error)
}

// Archive keeps sent deliveries. *store.Store implements it.
type Archive interface {
	ArchiveDelivery(ctx context.Context, delivery store.Delivery) (store.Delivery, error)
}

// Email is one merge to send.
type Email struct {
	Kind     store.DeliveryKind
	RecordID int64

	Subject string
	Body    string

	// Recipients get one context each unless To is set, in which case
	// To (comma-separated) gets a single context.
	Recipients []string
	To         string
	Tag        string

	// RequestorID receives overridden email when set.
	RequestorID *int64
}

// Sender delivers Email.
type Sender struct {
	users   Users
	mailer  Mailer
	archive Archive
	clock   clock.Clock
	logger  *slog.Logger
}

// NewSender returns a Sender. archive may be nil.
func NewSender(users Users, mailer Mailer, archive Archive, clk clock.Clock, logger *slog.Logger) *Sender {
	return &Sender{users: users, mailer: mailer, archive: archive, clock: clk, logger: logger}
}

// Send sends email and returns the provider response as JSON, ready to
// store on the instance record. A failure to archive is logged, not
// returned: the email has already gone out.
func (s *Sender) Send(ctx context.Context, email Email) (json.RawMessage, error) {
	now := s.clock.Now()
	contexts := ches.Contexts(email.Recipients, email.To, email.Tag, now)
	if len(contexts) == 0 {
		return nil, nil
	}

	merge := s.mailer.NewMerge(email.Subject, email.Body, contexts)
	if email.RequestorID != nil {
		user, err := s.users.GetUser(ctx, *email.RequestorID)
		if err != nil {
			return nil, fmt.Errorf("finding requestor %d: %w", *email.RequestorID, err)
		}
		if user != nil {
			merge.Requestor = user.Address()
		}
	}

	response, err := s.mailer.SendEmail(ctx, merge)
	if err != nil {
		return nil, fmt.Errorf("sending %s %d: %w", email.Kind, email.RecordID, err)
	}
	encoded, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("encoding email response: %w", err)
	}
	s.logger.Info("email sent",
		"kind", email.Kind, "record_id", email.RecordID,
		"contexts", len(contexts), "transaction", response.TransactionID)

	if s.archive != nil {
		recipients := make([]string, 0, len(contexts))
		for _, emailContext := range merge.Contexts {
			recipients = append(recipients, emailContext.To...)
		}
		_, err := s.archive.ArchiveDelivery(ctx, store.Delivery{
			Kind:       email.Kind,
			RecordID:   email.RecordID,
			Subject:    email.Subject,
			Recipients: recipients,
			Response:   encoded,
			SentAt:     now,
		})
		if err != nil {
			s.logger.Error("archiving delivery", "kind", email.Kind, "record_id", email.RecordID, "error", err)
		}
	}
	return encoded, nil
}
