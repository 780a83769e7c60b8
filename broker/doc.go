// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

// Package broker is the message broker boundary of the consumer
// services.
//
// A Consumer delivers records one at a time through Poll and reports
// asynchronous conditions (errors, the subscription stopping) on its
// Events channel. Offsets are committed explicitly, record by record,
// after the record has been handled; nothing is auto-committed. Stop
// drops the subscription, and the next Subscribe resumes from the last
// committed offsets, which is how an unhandled record gets redelivered.
//
// Kafka is the production implementation (franz-go). Memory is an
// in-process broker with the same delivery and commit semantics, used
// by tests.
package broker
