// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import "time"

// FailurePolicy counts failures between successes.
//
// Handler and broker errors arrive in bursts: a failing message fails
// on every retry, and a flapping broker reports the same condition
// repeatedly. RecordBurst counts only the first error of a burst; the
// burst ends with the next success. Record counts unconditionally and
// is used for failures that are distinct incidents by nature: a tick
// that could not subscribe, a consume task that gave up on a message.
//
// A message that exhausts its retries is therefore counted twice on
// its first delivery: once by the burst its first failure opened and
// once when the task gives up. The burst stays open until a success,
// so each later redelivery that gives up again adds exactly one. A
// message that never succeeds still drives the count past the limit
// instead of hiding behind the open burst.
//
// FailurePolicy is not safe for concurrent use; the supervisor
// goroutine owns it.
type FailurePolicy struct {
	limit     int
	count     int
	inBurst   bool
	lastAt    time.Time
	lastError string
}

// NewFailurePolicy returns a policy whose Exceeded reports true once
// more than limit failures have been counted.
func NewFailurePolicy(limit int) *FailurePolicy {
	return &FailurePolicy{limit: limit}
}

// RecordBurst counts err if no burst is open, opens one, and reports
// whether the limit is now exceeded.
func (p *FailurePolicy) RecordBurst(err error, now time.Time) bool {
	p.note(err, now)
	if !p.inBurst {
		p.inBurst = true
		p.count++
	}
	return p.Exceeded()
}

// Record counts err and reports whether the limit is now exceeded.
func (p *FailurePolicy) Record(err error, now time.Time) bool {
	p.note(err, now)
	p.count++
	return p.Exceeded()
}

func (p *FailurePolicy) note(err error, now time.Time) {
	p.lastAt = now
	if err != nil {
		p.lastError = err.Error()
	}
}

// Resolve records a fully successful message: the count returns to
// zero and the open burst closes.
func (p *FailurePolicy) Resolve() {
	p.count = 0
	p.inBurst = false
	p.lastError = ""
}

// Reset clears the count on operator request. The last failure time
// is kept for the status report.
func (p *FailurePolicy) Reset() {
	p.count = 0
	p.inBurst = false
}

// Exceeded reports whether more than limit failures are counted.
func (p *FailurePolicy) Exceeded() bool { return p.count > p.limit }

// Count returns the failures counted since the last success or reset.
func (p *FailurePolicy) Count() int { return p.count }

// LastFailure returns the time and message of the most recent failure.
func (p *FailurePolicy) LastFailure() (time.Time, string) { return p.lastAt, p.lastError }
