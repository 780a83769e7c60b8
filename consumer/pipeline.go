// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mmia-foundation/mmia/broker"
	"github.com/mmia-foundation/mmia/lib/schema"
)

// Message is a decoded record on its way through a Pipeline.
type Message[T any] struct {
	Record *broker.Record
	Value  T
	// Logger carries the record's topic, partition, offset and key.
	Logger *slog.Logger
}

// Ownership is a strategy's decision about whether this worker handles
// a message.
type Ownership struct {
	Skip   bool
	Reason string
}

// Proceed is the Ownership that continues processing.
func Proceed() Ownership { return Ownership{} }

// SkipMessage is the Ownership that commits the message without acting
// on it.
func SkipMessage(format string, args ...any) Ownership {
	return Ownership{Skip: true, Reason: fmt.Sprintf(format, args...)}
}

// Transition is the result of a work order status update.
type Transition int

const (
	// TransitionApplied means the work order moved to the new status.
	TransitionApplied Transition = iota
	// TransitionIgnored means the work order exists but is terminal.
	TransitionIgnored
	// TransitionAbsent means the message has no work order.
	TransitionAbsent
)

func (t Transition) String() string {
	switch t {
	case TransitionApplied:
		return "applied"
	case TransitionIgnored:
		return "ignored"
	case TransitionAbsent:
		return "absent"
	}
	return fmt.Sprintf("Transition(%d)", int(t))
}

// Strategy is the domain half of a Pipeline.
type Strategy[T any] interface {
	// CheckOwnership decides whether this worker processes the
	// message. Errors are retried.
	CheckOwnership(ctx context.Context, message *Message[T]) (Ownership, error)

	// PerformAction does the work. Return an error wrapping ErrSkip
	// for messages that can never succeed.
	PerformAction(ctx context.Context, message *Message[T]) error

	// UpdateStatus moves the message's work order, if any, to status.
	UpdateStatus(ctx context.Context, message *Message[T], status schema.WorkOrderStatus) (Transition, error)
}

// Committer is the part of broker.Consumer a Pipeline needs.
type Committer interface {
	Commit(ctx context.Context, record *broker.Record) error
	Resume(record *broker.Record)
}

// PipelineConfig tunes a Pipeline.
type PipelineConfig struct {
	// Strict skips messages whose work order is missing or terminal.
	// Otherwise they are processed without status updates.
	Strict bool
}

// Pipeline is the Handler that runs a Strategy over decoded records.
type Pipeline[T any] struct {
	strategy  Strategy[T]
	committer Committer
	config    PipelineConfig
	logger    *slog.Logger
}

// NewPipeline returns a pipeline committing through committer.
func NewPipeline[T any](strategy Strategy[T], committer Committer, config PipelineConfig, logger *slog.Logger) *Pipeline[T] {
	return &Pipeline[T]{
		strategy:  strategy,
		committer: committer,
		config:    config,
		logger:    logger,
	}
}

// Handle implements Handler. The record's offset is committed when the
// action succeeds or the message is skipped; any returned error leaves
// it uncommitted for redelivery.
func (p *Pipeline[T]) Handle(ctx context.Context, record *broker.Record) error {
	defer p.committer.Resume(record)

	message := &Message[T]{
		Record: record,
		Logger: p.logger.With(
			"topic", record.Topic,
			"partition", record.Partition,
			"offset", record.Offset,
			"key", string(record.Key),
		),
	}
	logger := message.Logger

	if err := json.Unmarshal(record.Value, &message.Value); err != nil {
		logger.Error("undecodable message, skipping", "error", err)
		return p.commit(ctx, record)
	}

	ownership, err := p.strategy.CheckOwnership(ctx, message)
	if err != nil {
		return p.failed(logger, fmt.Errorf("checking ownership: %w", err))
	}
	if ownership.Skip {
		logger.Debug("skipping message", "reason", ownership.Reason)
		return p.commit(ctx, record)
	}

	transition, err := p.strategy.UpdateStatus(ctx, message, schema.WorkOrderInProgress)
	if err != nil {
		return p.failed(logger, fmt.Errorf("marking work order in progress: %w", err))
	}
	tracked := transition == TransitionApplied
	if !tracked && p.config.Strict {
		logger.Info("no live work order, skipping message", "work_order", transition.String())
		return p.commit(ctx, record)
	}

	if err := p.strategy.PerformAction(ctx, message); err != nil {
		class := Classify(err)
		if class == ClassNone {
			return err
		}
		if tracked {
			if _, updateErr := p.strategy.UpdateStatus(ctx, message, schema.WorkOrderFailed); updateErr != nil {
				logger.Error("marking work order failed", "error", updateErr)
			}
		}
		if class == ClassSkip {
			logger.Warn("message cannot be processed, skipping", "error", err)
			return p.commit(ctx, record)
		}
		return p.failed(logger, err)
	}

	if tracked {
		if _, err := p.strategy.UpdateStatus(ctx, message, schema.WorkOrderCompleted); err != nil {
			return p.failed(logger, fmt.Errorf("marking work order completed: %w", err))
		}
	}
	return p.commit(ctx, record)
}

func (p *Pipeline[T]) commit(ctx context.Context, record *broker.Record) error {
	if err := p.committer.Commit(ctx, record); err != nil {
		return fmt.Errorf("committing %s: %w", record, err)
	}
	return nil
}

func (p *Pipeline[T]) failed(logger *slog.Logger, err error) error {
	if Classify(err) == ClassNone {
		return err
	}
	if body := errorBody(err); body != "" {
		logger.Error("processing message", "error", err, "body", body)
	} else {
		logger.Error("processing message", "error", err)
	}
	return err
}
