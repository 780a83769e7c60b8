// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the service runtime.
//
// The supervisor tick loop, the consume task's retry backoff, and the
// content reference staleness check all read time through a Clock.
// Production code uses Real; tests use Fake and move time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go supervisor.Run(ctx)
//	c.WaitForTimers(1)
//	c.Advance(time.Second)
package clock
