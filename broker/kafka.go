// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures a Kafka consumer group member.
type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	ClientID       string
	SessionTimeout time.Duration
	// OffsetReset is "earliest" or "latest" for partitions the group
	// has never committed.
	OffsetReset string
	Logger      *slog.Logger
}

// Kafka is a Consumer backed by a franz-go group client. The client is
// created by Subscribe and closed by Stop, so a stopped consumer
// rejoins the group from its committed offsets.
type Kafka struct {
	config KafkaConfig
	logger *slog.Logger
	events chan Event

	mu     sync.Mutex
	client *kgo.Client
	topics []string
}

// NewKafka returns an unsubscribed consumer.
func NewKafka(config KafkaConfig) *Kafka {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Kafka{
		config: config,
		logger: logger,
		events: make(chan Event, eventBuffer),
	}
}

// Subscribe implements Consumer.
func (k *Kafka) Subscribe(topics []string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.client != nil && slices.Equal(k.topics, topics) {
		return nil
	}
	if k.client != nil {
		k.client.Close()
		k.client = nil
	}

	reset := kgo.NewOffset().AtStart()
	if k.config.OffsetReset == "latest" {
		reset = kgo.NewOffset().AtEnd()
	}
	options := []kgo.Opt{
		kgo.SeedBrokers(k.config.Brokers...),
		kgo.ConsumerGroup(k.config.GroupID),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(reset),
		kgo.WithLogger(kafkaLogger{k.logger}),
		kgo.OnPartitionsRevoked(func(_ context.Context, _ *kgo.Client, revoked map[string][]int32) {
			k.logger.Info("partitions revoked", "partitions", revoked)
		}),
		kgo.OnPartitionsLost(func(_ context.Context, _ *kgo.Client, lost map[string][]int32) {
			emit(k.events, Event{Kind: EventError, Err: &Error{Op: "rebalance", Err: fmt.Errorf("partitions lost: %v", lost)}})
		}),
	}
	if k.config.ClientID != "" {
		options = append(options, kgo.ClientID(k.config.ClientID))
	}
	if k.config.SessionTimeout > 0 {
		options = append(options, kgo.SessionTimeout(k.config.SessionTimeout))
	}

	client, err := kgo.NewClient(options...)
	if err != nil {
		// Option validation failures do not go away on retry.
		return &Error{Op: "subscribe", Fatal: true, Err: err}
	}
	k.client = client
	k.topics = slices.Clone(topics)
	k.logger.Info("subscribed", "topics", topics, "group", k.config.GroupID)
	return nil
}

func (k *Kafka) current() *kgo.Client {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.client
}

// Poll implements Consumer.
func (k *Kafka) Poll(ctx context.Context) (*Record, error) {
	client := k.current()
	if client == nil {
		return nil, ErrNotSubscribed
	}

	fetches := client.PollRecords(ctx, 1)
	if fetches.IsClientClosed() {
		return nil, ErrStopped
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, fetchErr := range fetches.Errors() {
		if errors.Is(fetchErr.Err, context.Canceled) || errors.Is(fetchErr.Err, context.DeadlineExceeded) {
			continue
		}
		return nil, &Error{
			Op:    "fetch",
			Fatal: fatalKafkaError(fetchErr.Err),
			Err:   fmt.Errorf("%s[%d]: %w", fetchErr.Topic, fetchErr.Partition, fetchErr.Err),
		}
	}

	records := fetches.Records()
	if len(records) == 0 {
		// Nothing fetched before the poll returned; callers loop.
		return nil, ctx.Err()
	}
	return fromKafka(records[0]), nil
}

// Commit implements Consumer.
func (k *Kafka) Commit(ctx context.Context, record *Record) error {
	client := k.current()
	if client == nil {
		return ErrNotSubscribed
	}
	if record.raw == nil {
		return fmt.Errorf("broker: commit of %s: record was not read from Kafka", record)
	}
	if err := client.CommitRecords(ctx, record.raw); err != nil {
		return &Error{Op: "commit", Fatal: fatalKafkaError(err), Err: err}
	}
	return nil
}

// Pause implements Consumer.
func (k *Kafka) Pause(record *Record) {
	if client := k.current(); client != nil {
		client.PauseFetchPartitions(map[string][]int32{record.Topic: {record.Partition}})
	}
}

// Resume implements Consumer.
func (k *Kafka) Resume(record *Record) {
	if client := k.current(); client != nil {
		client.ResumeFetchPartitions(map[string][]int32{record.Topic: {record.Partition}})
	}
}

// Stop implements Consumer. Closing the client leaves the group.
func (k *Kafka) Stop() error {
	k.mu.Lock()
	client := k.client
	k.client = nil
	k.topics = nil
	k.mu.Unlock()

	if client == nil {
		return nil
	}
	client.Close()
	k.logger.Info("consumer stopped", "group", k.config.GroupID)
	emit(k.events, Event{Kind: EventStop})
	return nil
}

// Events implements Consumer.
func (k *Kafka) Events() <-chan Event { return k.events }

func fromKafka(raw *kgo.Record) *Record {
	record := &Record{
		Topic:     raw.Topic,
		Partition: raw.Partition,
		Offset:    raw.Offset,
		Key:       raw.Key,
		Value:     raw.Value,
		Timestamp: raw.Timestamp,
		raw:       raw,
	}
	if len(raw.Headers) > 0 {
		record.Headers = make(map[string]string, len(raw.Headers))
		for _, header := range raw.Headers {
			record.Headers[header.Key] = string(header.Value)
		}
	}
	return record
}

// fatalKafkaError reports whether a Kafka error is one retrying will
// not fix. Kafka protocol errors carry their own retriable flag;
// anything else (network, timeouts) is treated as transient.
func fatalKafkaError(err error) bool {
	var protocolErr *kerr.Error
	if errors.As(err, &protocolErr) {
		return !protocolErr.Retriable
	}
	return false
}

// KafkaProducer publishes records synchronously.
type KafkaProducer struct {
	client *kgo.Client
}

// NewKafkaProducer connects a producer to brokers.
func NewKafkaProducer(brokers []string, clientID string, logger *slog.Logger) (*KafkaProducer, error) {
	options := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.WithLogger(kafkaLogger{logger}),
	}
	if clientID != "" {
		options = append(options, kgo.ClientID(clientID))
	}
	client, err := kgo.NewClient(options...)
	if err != nil {
		return nil, &Error{Op: "producer", Fatal: true, Err: err}
	}
	return &KafkaProducer{client: client}, nil
}

// Publish implements Producer.
func (p *KafkaProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	result := p.client.ProduceSync(ctx, &kgo.Record{Topic: topic, Key: key, Value: value})
	if err := result.FirstErr(); err != nil {
		return &Error{Op: "produce", Fatal: fatalKafkaError(err), Err: fmt.Errorf("%s: %w", topic, err)}
	}
	return nil
}

// Close implements Producer, flushing buffered records.
func (p *KafkaProducer) Close() {
	p.client.Close()
}

// kafkaLogger adapts slog to the franz-go logger interface.
type kafkaLogger struct {
	logger *slog.Logger
}

func (l kafkaLogger) Level() kgo.LogLevel {
	if l.logger != nil && l.logger.Enabled(context.Background(), slog.LevelDebug) {
		return kgo.LogLevelDebug
	}
	return kgo.LogLevelInfo
}

func (l kafkaLogger) Log(level kgo.LogLevel, message string, keyvals ...any) {
	if l.logger == nil {
		return
	}
	var slogLevel slog.Level
	switch level {
	case kgo.LogLevelError:
		slogLevel = slog.LevelError
	case kgo.LogLevelWarn:
		slogLevel = slog.LevelWarn
	case kgo.LogLevelInfo:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelDebug
	}
	l.logger.Log(context.Background(), slogLevel, message, append([]any{"component", "kafka"}, keyvals...)...)
}
