// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record is one message read from a topic partition.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time

	// raw is the client record for Kafka commits. Nil for Memory.
	raw *kgo.Record
}

// String identifies the record as topic[partition]@offset.
func (r *Record) String() string {
	return fmt.Sprintf("%s[%d]@%d", r.Topic, r.Partition, r.Offset)
}

// EventKind classifies a consumer notification.
type EventKind int

const (
	// EventError reports a broker error outside any Poll call.
	EventError EventKind = iota
	// EventStop reports that the subscription ended.
	EventStop
)

func (k EventKind) String() string {
	switch k {
	case EventError:
		return "error"
	case EventStop:
		return "stop"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a notification from a Consumer. Err is set for EventError.
type Event struct {
	Kind EventKind
	Err  error
}

// Consumer is a subscription to one or more topics with manual,
// per-record commits.
type Consumer interface {
	// Subscribe sets the topic list. Calling it with the current list
	// is a no-op; after Stop it starts a fresh subscription positioned
	// at the committed offsets.
	Subscribe(topics []string) error

	// Poll blocks until a record is available or ctx ends. It may
	// return a nil record and nil error when a fetch came back empty;
	// callers poll again.
	Poll(ctx context.Context) (*Record, error)

	// Commit marks record, and everything before it in its partition,
	// as handled.
	Commit(ctx context.Context, record *Record) error

	// Pause stops fetching from record's partition until Resume.
	Pause(record *Record)
	Resume(record *Record)

	// Stop ends the subscription. Uncommitted records are redelivered
	// by the next Subscribe.
	Stop() error

	// Events delivers asynchronous notifications. The channel is never
	// closed.
	Events() <-chan Event
}

// Producer publishes records.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close()
}

var (
	// ErrNotSubscribed is returned by Poll and Commit without an active
	// subscription.
	ErrNotSubscribed = errors.New("broker: not subscribed")

	// ErrStopped is returned by a Poll interrupted by Stop.
	ErrStopped = errors.New("broker: consumer stopped")
)

// Error is a broker failure. Fatal errors (authorization, invalid
// configuration) will not resolve by retrying.
type Error struct {
	Op    string
	Fatal bool
	Err   error
}

func (e *Error) Error() string {
	if e.Fatal {
		return fmt.Sprintf("broker %s (fatal): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("broker %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsFatal reports whether err contains a fatal broker error.
func IsFatal(err error) bool {
	var brokerErr *Error
	return errors.As(err, &brokerErr) && brokerErr.Fatal
}

// emit sends event without blocking. A full channel drops the event;
// readers poll Events at the supervisor tick rate and a backlog of
// stale errors carries no information the next Poll will not repeat.
func emit(events chan Event, event Event) {
	select {
	case events <- event:
	default:
	}
}

const eventBuffer = 32
