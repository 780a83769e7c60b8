// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"fmt"
)

// taskHandle is the supervisor's reference to one consume task.
type taskHandle struct {
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

func (h *taskHandle) terminated() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// taskSlot holds at most one live consume task.
type taskSlot struct {
	current    *taskHandle
	generation uint64
}

// start runs fn in a new goroutine under a context derived from parent.
// It refuses while the previous task has not terminated, even if that
// task was already cancelled.
func (s *taskSlot) start(parent context.Context, fn func(ctx context.Context, generation uint64)) (*taskHandle, error) {
	if s.current != nil && !s.current.terminated() {
		return nil, fmt.Errorf("%w: generation %d", ErrTaskActive, s.current.generation)
	}
	s.generation++
	ctx, cancel := context.WithCancel(parent)
	handle := &taskHandle{generation: s.generation, cancel: cancel, done: make(chan struct{})}
	s.current = handle
	go func() {
		defer close(handle.done)
		defer cancel()
		fn(ctx, handle.generation)
	}()
	return handle, nil
}

// cancel requests the current task to end without waiting for it.
func (s *taskSlot) cancel() {
	if s.current != nil {
		s.current.cancel()
	}
}

// active reports whether a task is running.
func (s *taskSlot) active() bool {
	return s.current != nil && !s.current.terminated()
}

// reap waits for the current task, which has sent its final report,
// to finish returning.
func (s *taskSlot) reap() {
	if s.current != nil {
		<-s.current.done
	}
}

// wait blocks until the current task terminates or ctx ends.
func (s *taskSlot) wait(ctx context.Context) error {
	if s.current == nil {
		return nil
	}
	select {
	case <-s.current.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
