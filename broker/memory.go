// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"
	"slices"
	"sync"
	"time"
)

type topicPartition struct {
	topic     string
	partition int32
}

// Memory is an in-process broker implementing Consumer and Producer
// for a single consumer group.
type Memory struct {
	mu         sync.Mutex
	partitions int32
	logs       map[string][][]*Record
	committed  map[topicPartition]int64
	position   map[topicPartition]int64
	paused     map[topicPartition]bool
	topics     []string
	active     bool
	pollErrors []error
	// wake is closed and replaced whenever a blocked Poll might now
	// succeed.
	wake   chan struct{}
	events chan Event
	now    func() time.Time
}

// NewMemory returns a broker creating topics with the given number of
// partitions on first use.
func NewMemory(partitions int) *Memory {
	if partitions < 1 {
		partitions = 1
	}
	return &Memory{
		partitions: int32(partitions),
		logs:       make(map[string][][]*Record),
		committed:  make(map[topicPartition]int64),
		position:   make(map[topicPartition]int64),
		paused:     make(map[topicPartition]bool),
		wake:       make(chan struct{}),
		events:     make(chan Event, eventBuffer),
		now:        time.Now,
	}
}

// Produce appends a record. The partition is chosen from the key, so
// records with equal keys keep their order.
func (m *Memory) Produce(topic string, key, value []byte) *Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.topicLocked(topic)
	partition := int32(0)
	for _, b := range key {
		partition = (partition*31 + int32(b)) % m.partitions
	}
	record := &Record{
		Topic:     topic,
		Partition: partition,
		Offset:    int64(len(log[partition])),
		Key:       key,
		Value:     value,
		Timestamp: m.now(),
	}
	log[partition] = append(log[partition], record)
	m.wakeLocked()
	return record
}

// Publish implements Producer.
func (m *Memory) Publish(_ context.Context, topic string, key, value []byte) error {
	m.Produce(topic, key, value)
	return nil
}

// Close implements Producer. Memory has nothing to release.
func (m *Memory) Close() {}

// Records returns every record produced to topic, in partition then
// offset order.
func (m *Memory) Records(topic string) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var records []*Record
	for _, partition := range m.logs[topic] {
		records = append(records, partition...)
	}
	return records
}

// Committed returns the next offset the group will read from a
// partition.
func (m *Memory) Committed(topic string, partition int32) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed[topicPartition{topic, partition}]
}

// Paused reports whether a partition is paused.
func (m *Memory) Paused(topic string, partition int32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused[topicPartition{topic, partition}]
}

// Active reports whether a subscription is running.
func (m *Memory) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// FailNextPoll makes the next Poll return err instead of a record.
func (m *Memory) FailNextPoll(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pollErrors = append(m.pollErrors, err)
	m.wakeLocked()
}

// Notify delivers event on the Events channel.
func (m *Memory) Notify(event Event) {
	emit(m.events, event)
}

// Subscribe implements Consumer.
func (m *Memory) Subscribe(topics []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active && slices.Equal(m.topics, topics) {
		return nil
	}
	m.topics = slices.Clone(topics)
	m.active = true
	for _, topic := range topics {
		m.topicLocked(topic)
	}
	// A new subscription reads from the committed offsets.
	clear(m.position)
	clear(m.paused)
	for key, offset := range m.committed {
		m.position[key] = offset
	}
	m.wakeLocked()
	return nil
}

// Poll implements Consumer.
func (m *Memory) Poll(ctx context.Context) (*Record, error) {
	for {
		m.mu.Lock()
		if !m.active {
			m.mu.Unlock()
			return nil, ErrNotSubscribed
		}
		if len(m.pollErrors) > 0 {
			err := m.pollErrors[0]
			m.pollErrors = m.pollErrors[1:]
			m.mu.Unlock()
			return nil, err
		}
		if record := m.nextLocked(); record != nil {
			m.mu.Unlock()
			return record, nil
		}
		wake := m.wake
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-wake:
		}
	}
}

func (m *Memory) nextLocked() *Record {
	for _, topic := range m.topics {
		for partition, log := range m.logs[topic] {
			key := topicPartition{topic, int32(partition)}
			if m.paused[key] {
				continue
			}
			position := m.position[key]
			if position < int64(len(log)) {
				m.position[key] = position + 1
				return log[position]
			}
		}
	}
	return nil
}

// Commit implements Consumer.
func (m *Memory) Commit(_ context.Context, record *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return ErrNotSubscribed
	}
	key := topicPartition{record.Topic, record.Partition}
	if next := record.Offset + 1; next > m.committed[key] {
		m.committed[key] = next
	}
	return nil
}

// Pause implements Consumer.
func (m *Memory) Pause(record *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused[topicPartition{record.Topic, record.Partition}] = true
}

// Resume implements Consumer.
func (m *Memory) Resume(record *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.paused, topicPartition{record.Topic, record.Partition})
	m.wakeLocked()
}

// Stop implements Consumer.
func (m *Memory) Stop() error {
	m.mu.Lock()
	wasActive := m.active
	m.active = false
	m.wakeLocked()
	m.mu.Unlock()
	if wasActive {
		emit(m.events, Event{Kind: EventStop})
	}
	return nil
}

// Events implements Consumer.
func (m *Memory) Events() <-chan Event { return m.events }

func (m *Memory) topicLocked(topic string) [][]*Record {
	log, ok := m.logs[topic]
	if !ok {
		log = make([][]*Record, m.partitions)
		m.logs[topic] = log
	}
	return log
}

func (m *Memory) wakeLocked() {
	close(m.wake)
	m.wake = make(chan struct{})
}
