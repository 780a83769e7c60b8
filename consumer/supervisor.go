// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/mmia-foundation/mmia/broker"
	"github.com/mmia-foundation/mmia/lib/clock"
)

// Handler processes one record. A nil return means the record was
// fully handled (committed or deliberately skipped).
type Handler interface {
	Handle(ctx context.Context, record *broker.Record) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, record *broker.Record) error

func (f HandlerFunc) Handle(ctx context.Context, record *broker.Record) error {
	return f(ctx, record)
}

// SupervisorConfig tunes a Supervisor.
type SupervisorConfig struct {
	// Topics to subscribe to. An empty list keeps the consumer stopped
	// while the supervisor stays Running.
	Topics []string

	// Delay between ticks.
	Delay time.Duration

	// MaxFailLimit is the failure count the service tolerates; one
	// more puts it to sleep.
	MaxFailLimit int

	// RetryLimit is the number of attempts for one record before the
	// consume task gives up on it.
	RetryLimit int

	// RetryDelay separates attempts on the same record.
	RetryDelay time.Duration
}

func (c *SupervisorConfig) applyDefaults() {
	if c.Delay <= 0 {
		c.Delay = 5 * time.Second
	}
	if c.MaxFailLimit <= 0 {
		c.MaxFailLimit = 5
	}
	if c.RetryLimit <= 0 {
		c.RetryLimit = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = c.Delay
	}
}

type controlKind int

const (
	controlPause controlKind = iota
	controlSleep
	controlResume
	controlStop
)

type controlRequest struct {
	kind  controlKind
	reset bool
	reply chan controlReply
}

type controlReply struct {
	state RunState
	err   error
}

type outcomeKind int

const (
	outcomeHandled outcomeKind = iota
	outcomeFailed
	outcomeExhausted
	outcomeFatal
	outcomePollFailed
	outcomePanic
	// outcomeEnded is the last report of every task.
	outcomeEnded
)

// outcome is a consume task's report to the supervisor.
type outcome struct {
	generation uint64
	kind       outcomeKind
	record     *broker.Record
	err        error
}

// Supervisor drives one consumer through the service run states.
//
// Only the goroutine in Run changes the run state. Control methods send
// requests to it and wait for the reply; Status reads the last
// published snapshot.
type Supervisor struct {
	config   SupervisorConfig
	consumer broker.Consumer
	handler  Handler
	clock    clock.Clock
	logger   *slog.Logger

	requests chan controlRequest
	outcomes chan outcome
	quit     chan struct{}
	done     chan struct{}
	started  atomic.Bool

	// Owned by the Run goroutine.
	status   Status
	failures *FailurePolicy
	tasks    taskSlot

	snapshot atomic.Pointer[RunState]
}

// NewSupervisor returns a supervisor in the Running state. Nothing is
// consumed until Run.
func NewSupervisor(config SupervisorConfig, consumer broker.Consumer, handler Handler, clk clock.Clock, logger *slog.Logger) *Supervisor {
	config.applyDefaults()
	s := &Supervisor{
		config:   config,
		consumer: consumer,
		handler:  handler,
		clock:    clk,
		logger:   logger,
		requests: make(chan controlRequest),
		outcomes: make(chan outcome),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		status:   Running,
		failures: NewFailurePolicy(config.MaxFailLimit),
	}
	s.publish()
	return s
}

// Run ticks until the supervisor is stopped or ctx ends, then stops the
// consumer and waits for the consume task. It returns nil after Stop and
// ctx.Err() after cancellation. Run may be called once.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("consumer: supervisor already running")
	}
	defer close(s.done)

	for {
		s.tick(ctx)
		if s.status == Stopped {
			s.shutdown()
			return nil
		}

		wait := s.clock.After(s.config.Delay)
	waiting:
		for {
			select {
			case <-ctx.Done():
				s.shutdown()
				return ctx.Err()
			case <-wait:
				break waiting
			case request := <-s.requests:
				request.reply <- s.control(request)
				if s.status == Stopped {
					s.shutdown()
					return nil
				}
			case result := <-s.outcomes:
				s.handleOutcome(result)
			case event := <-s.consumer.Events():
				s.handleEvent(event)
			}
		}
	}
}

// Status returns the latest run state.
func (s *Supervisor) Status() RunState {
	return *s.snapshot.Load()
}

// Pause requests that consumption stop at the next tick.
func (s *Supervisor) Pause(ctx context.Context) (RunState, error) {
	return s.request(ctx, controlRequest{kind: controlPause})
}

// Sleep requests that the service sleep at the next tick.
func (s *Supervisor) Sleep(ctx context.Context) (RunState, error) {
	return s.request(ctx, controlRequest{kind: controlSleep})
}

// Resume returns a paused or sleeping service to Running. With
// resetFailures the failure count starts over.
func (s *Supervisor) Resume(ctx context.Context, resetFailures bool) (RunState, error) {
	return s.request(ctx, controlRequest{kind: controlResume, reset: resetFailures})
}

// Stop ends consumption permanently and makes Run return.
func (s *Supervisor) Stop(ctx context.Context) (RunState, error) {
	return s.request(ctx, controlRequest{kind: controlStop})
}

func (s *Supervisor) request(ctx context.Context, request controlRequest) (RunState, error) {
	request.reply = make(chan controlReply, 1)
	select {
	case s.requests <- request:
	case <-s.done:
		return s.Status(), ErrStopped
	case <-ctx.Done():
		return s.Status(), ctx.Err()
	}
	reply := <-request.reply
	return reply.state, reply.err
}

// control applies an operator request.
func (s *Supervisor) control(request controlRequest) controlReply {
	if s.status == Stopped {
		return controlReply{state: s.Status(), err: ErrStopped}
	}
	previous := s.status
	switch request.kind {
	case controlPause:
		switch s.status {
		case Running, RequestSleep:
			s.status = RequestPause
		}
	case controlSleep:
		if s.status == Running {
			s.status = RequestSleep
		}
	case controlResume:
		if request.reset {
			s.failures.Reset()
		}
		s.status = Running
	case controlStop:
		s.status = Stopped
		s.stopConsumer()
	}
	if previous != s.status {
		s.logger.Info("service status changed", "from", previous.String(), "to", s.status.String())
	}
	s.publish()
	return controlReply{state: s.Status()}
}

// tick settles requested transitions and keeps a running service
// consuming.
func (s *Supervisor) tick(ctx context.Context) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("tick panic: %v", recovered)
			s.logger.Error("supervisor tick panicked", "error", err, "stack", string(debug.Stack()))
			s.recordFailure(err, false)
		}
		s.publish()
	}()

	switch s.status {
	case RequestPause, RequestSleep:
		s.logger.Info("stopping consumer", "status", s.status.String())
		s.stopConsumer()
		if s.status == RequestPause {
			s.status = Paused
		} else {
			s.status = Sleeping
		}
		s.logger.Info("service status changed", "to", s.status.String())
	case Running:
		s.consume(ctx)
	default:
		s.logger.Debug("service is not running", "status", s.status.String())
	}
}

func (s *Supervisor) consume(ctx context.Context) {
	if len(s.config.Topics) == 0 {
		s.stopConsumer()
		return
	}
	if err := s.consumer.Subscribe(s.config.Topics); err != nil {
		s.logger.Error("subscribing to topics", "topics", s.config.Topics, "error", err)
		if broker.IsFatal(err) {
			s.fatal(err)
			return
		}
		s.recordFailure(err, false)
		return
	}

	_, err := s.tasks.start(ctx, s.runTask)
	switch {
	case errors.Is(err, ErrTaskActive):
		return
	case err != nil:
		s.recordFailure(err, false)
	default:
		s.logger.Debug("consume task started", "generation", s.tasks.generation, "topics", s.config.Topics)
	}
}

// stopConsumer cancels the consume task and ends the subscription. The
// stop event the consumer emits for this call is drained here so it is
// not mistaken for an external stop of a later subscription.
func (s *Supervisor) stopConsumer() {
	s.tasks.cancel()
	if err := s.consumer.Stop(); err != nil {
		s.logger.Warn("stopping consumer", "error", err)
	}
	for {
		select {
		case event := <-s.consumer.Events():
			if event.Kind == broker.EventError {
				s.handleEvent(event)
			}
		default:
			return
		}
	}
}

// fatal stops consumption until an operator resumes the service.
func (s *Supervisor) fatal(err error) {
	s.failures.Record(err, s.clock.Now())
	s.stopConsumer()
	if s.status != Stopped {
		s.status = Paused
	}
	s.logger.Error("consumer stopped after fatal error, resume required", "error", err)
}

// recordFailure counts err and requests sleep once the failure limit
// is exceeded. burst selects once-per-burst counting.
func (s *Supervisor) recordFailure(err error, burst bool) {
	now := s.clock.Now()
	var exceeded bool
	if burst {
		exceeded = s.failures.RecordBurst(err, now)
	} else {
		exceeded = s.failures.Record(err, now)
	}
	if exceeded && s.status == Running {
		s.logger.Warn("failure limit exceeded, requesting sleep",
			"failures", s.failures.Count(), "limit", s.config.MaxFailLimit)
		s.status = RequestSleep
	}
}

func (s *Supervisor) handleOutcome(result outcome) {
	current := result.generation == s.tasks.generation
	switch result.kind {
	case outcomeHandled:
		s.failures.Resolve()
	case outcomeFailed, outcomePollFailed:
		s.recordFailure(result.err, true)
	case outcomeExhausted:
		s.logger.Error("giving up on record, consumer will be restarted",
			"record", result.record.String(), "error", result.err)
		s.recordFailure(result.err, false)
		if current && s.status == Running {
			s.stopConsumer()
		}
	case outcomeFatal:
		if current {
			s.fatal(result.err)
		} else {
			s.failures.Record(result.err, s.clock.Now())
		}
	case outcomePanic:
		s.recordFailure(result.err, false)
	case outcomeEnded:
		if current {
			s.tasks.reap()
		}
	}
	s.publish()
}

func (s *Supervisor) handleEvent(event broker.Event) {
	switch event.Kind {
	case broker.EventError:
		s.logger.Error("consumer error", "error", event.Err)
		if broker.IsFatal(event.Err) {
			s.fatal(event.Err)
		} else {
			s.recordFailure(event.Err, true)
		}
	case broker.EventStop:
		s.logger.Info("consumer stopped")
		s.tasks.cancel()
	}
	s.publish()
}

// shutdown stops consumption and waits briefly for the task to end.
func (s *Supervisor) shutdown() {
	close(s.quit)
	s.stopConsumer()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.tasks.wait(ctx); err != nil {
		s.logger.Warn("consume task did not finish", "error", err)
	}
	s.status = Stopped
	s.publish()
}

func (s *Supervisor) publish() {
	lastAt, lastError := s.failures.LastFailure()
	s.snapshot.Store(&RunState{
		Status:        s.status,
		FailureCount:  s.failures.Count(),
		LastFailureAt: lastAt,
		LastError:     lastError,
		Generation:    s.tasks.generation,
		TaskActive:    s.tasks.active(),
	})
}

// runTask is the consume task: poll, handle with in-place retries,
// report. It ends when its context is cancelled, the subscription ends,
// or a record exhausts its retries.
func (s *Supervisor) runTask(ctx context.Context, generation uint64) {
	defer s.report(outcome{generation: generation, kind: outcomeEnded})
	defer func() {
		if recovered := recover(); recovered != nil {
			err := fmt.Errorf("consume task panic: %v", recovered)
			s.logger.Error("consume task panicked", "error", err, "stack", string(debug.Stack()))
			s.report(outcome{generation: generation, kind: outcomePanic, err: err})
		}
	}()

	for ctx.Err() == nil {
		record, err := s.consumer.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, broker.ErrStopped) || errors.Is(err, broker.ErrNotSubscribed) {
				return
			}
			if broker.IsFatal(err) {
				s.report(outcome{generation: generation, kind: outcomeFatal, err: err})
				return
			}
			s.logger.Warn("polling consumer", "error", err)
			s.report(outcome{generation: generation, kind: outcomePollFailed, err: err})
			if !s.sleep(ctx, s.config.RetryDelay) {
				return
			}
			continue
		}
		if record == nil {
			continue
		}
		if !s.handleRecord(ctx, generation, record) {
			return
		}
	}
}

// handleRecord runs the handler on record until it succeeds, is
// skipped, or runs out of attempts. It reports whether the task should
// keep polling.
func (s *Supervisor) handleRecord(ctx context.Context, generation uint64, record *broker.Record) bool {
	for attempt := 1; ; attempt++ {
		err := s.handler.Handle(ctx, record)
		class := Classify(err)
		if err == nil {
			s.report(outcome{generation: generation, kind: outcomeHandled, record: record})
			return true
		}
		switch class {
		case ClassNone:
			return false
		case ClassSkip:
			s.report(outcome{generation: generation, kind: outcomeHandled, record: record})
			return true
		case ClassFatal:
			s.report(outcome{generation: generation, kind: outcomeFatal, record: record, err: err})
			return false
		}

		s.report(outcome{generation: generation, kind: outcomeFailed, record: record, err: err})
		if attempt >= s.config.RetryLimit {
			s.report(outcome{generation: generation, kind: outcomeExhausted, record: record, err: err})
			return false
		}
		s.logger.Warn("retrying record", "record", record.String(), "attempt", attempt, "error", err)
		s.consumer.Pause(record)
		if !s.sleep(ctx, s.config.RetryDelay) {
			s.consumer.Resume(record)
			return false
		}
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-s.clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Supervisor) report(result outcome) {
	select {
	case s.outcomes <- result:
	case <-s.quit:
	}
}
