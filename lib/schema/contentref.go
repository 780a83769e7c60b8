// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// ReferenceStatus is the ingestion state of a content reference.
type ReferenceStatus string

const (
	ReferenceNew        ReferenceStatus = "New"
	ReferenceInProgress ReferenceStatus = "InProgress"
	ReferenceCompleted  ReferenceStatus = "Completed"
	ReferenceFailed     ReferenceStatus = "Failed"
)

// ContentReference is the dedup and ownership record for one ingested
// item, keyed by (Source, UID). References are never deleted.
type ContentReference struct {
	Source      string          `json:"source"`
	UID         string          `json:"uid"`
	Topic       string          `json:"topic,omitempty"`
	Partition   int32           `json:"partition"`
	Offset      int64           `json:"offset"`
	Status      ReferenceStatus `json:"status"`
	PublishedOn *time.Time      `json:"publishedOn,omitempty"`
	UpdatedOn   *time.Time      `json:"updatedOn,omitempty"`
	Version     int64           `json:"version"`
}
