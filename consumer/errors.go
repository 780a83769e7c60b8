// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmia-foundation/mmia/broker"
)

// Class is how the runtime treats an error.
type Class int

const (
	// ClassNone is no error, or a cancellation.
	ClassNone Class = iota
	// ClassSkip errors end processing of a message that can never
	// succeed. The message is committed.
	ClassSkip
	// ClassTransient errors are retried and counted.
	ClassTransient
	// ClassFatal errors stop the consumer until an operator resumes it.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassSkip:
		return "skip"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	}
	return fmt.Sprintf("Class(%d)", int(c))
}

// ErrSkip marks an error as a deliberate skip. Test with errors.Is.
var ErrSkip = errors.New("skipped")

// ErrTaskActive is returned when a consume task is started while the
// previous one has not terminated.
var ErrTaskActive = errors.New("consume task still active")

// ErrStopped is returned by control requests after the supervisor has
// stopped.
var ErrStopped = errors.New("service stopped")

type skipError struct {
	reason string
}

func (e *skipError) Error() string        { return "skipped: " + e.reason }
func (e *skipError) Is(target error) bool { return target == ErrSkip }

// Skip returns an error that makes the pipeline commit the message
// without retrying it.
func Skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// ConfigError reports missing or invalid configuration discovered
// while handling a message: credentials, hosts, paths. Retrying cannot
// fix it.
type ConfigError struct {
	Component string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s configuration: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Classify maps err onto the runtime's error classes.
func Classify(err error) Class {
	var configErr *ConfigError
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, context.Canceled):
		return ClassNone
	case errors.Is(err, ErrSkip):
		return ClassSkip
	case errors.As(err, &configErr), broker.IsFatal(err):
		return ClassFatal
	}
	return ClassTransient
}

// responseBody is implemented by HTTP client errors that carry the
// response body, so failures log what the server said.
type responseBody interface {
	ResponseBody() string
}

func errorBody(err error) string {
	var withBody responseBody
	if errors.As(err, &withBody) {
		return withBody.ResponseBody()
	}
	return ""
}
