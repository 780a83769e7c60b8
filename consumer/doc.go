// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package consumer is the runtime shared by the MMIA consumer services.
//
// A Supervisor owns one broker subscription and at most one consume
// task. It runs a tick loop: requested pauses and sleeps are settled by
// stopping the consumer, and while running it keeps the subscription
// and the consume task alive. The consume task polls records, hands
// each to a Handler, retries failures in place with the partition
// paused, and reports every outcome back to the supervisor, which is
// the only goroutine that changes the run state. Failures are counted
// by a FailurePolicy; past its limit the supervisor puts the service to
// sleep until an operator resumes it through the control socket.
//
// Pipeline is the Handler every service uses. It decodes the record,
// asks the service's Strategy whether this worker owns the message,
// moves the associated work order through InProgress to Completed or
// Failed, and commits the offset only once the action succeeded or the
// message was deliberately skipped.
package consumer
