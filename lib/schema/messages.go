// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"time"
)

// TranscriptRequest asks the transcription service to transcribe the
// media attached to a content item.
type TranscriptRequest struct {
	ContentID   int64  `json:"contentId"`
	WorkOrderID int64  `json:"workOrderId,omitempty"`
	RequestorID *int64 `json:"requestorId,omitempty"`
	Requestor   string `json:"requestor,omitempty"`
	Language    string `json:"language,omitempty"`
}

// NotificationRequest asks the notification service to evaluate and
// send notifications for a content item. A nil NotificationID means
// every enabled notification.
type NotificationRequest struct {
	NotificationID   *int64          `json:"notificationId,omitempty"`
	ContentID        *int64          `json:"contentId,omitempty"`
	Content          json.RawMessage `json:"content,omitempty"`
	RequestorID      *int64          `json:"requestorId,omitempty"`
	To               string          `json:"to,omitempty"`
	IgnoreValidation bool            `json:"ignoreValidation,omitempty"`
}

// ReportRequest asks the reporting service to generate and send a
// report or an AV overview.
type ReportRequest struct {
	ReportType       ReportType `json:"reportType"`
	ReportID         int64      `json:"reportId"`
	ReportInstanceID *int64     `json:"reportInstanceId,omitempty"`
	RequestorID      *int64     `json:"requestorId,omitempty"`
	To               string     `json:"to,omitempty"`
	// GenerateInstance creates a fresh instance instead of sending an
	// existing one.
	GenerateInstance bool `json:"generateInstance,omitempty"`
}

// ImageRequest asks the image service to ingest one remote file.
type ImageRequest struct {
	Source      string    `json:"source"`
	Path        string    `json:"path"`
	FileName    string    `json:"fileName"`
	PublishedOn time.Time `json:"publishedOn"`
	Size        int64     `json:"size,omitempty"`
	ProductID   int64     `json:"productId,omitempty"`
}

// SourceContent is published once an ingested file is on disk, for the
// content service to create the content record.
type SourceContent struct {
	UID         string      `json:"uid"`
	Source      string      `json:"source"`
	ContentType ContentType `json:"contentType"`
	ProductID   int64       `json:"productId"`
	Title       string      `json:"title"`
	PublishedOn time.Time   `json:"publishedOn"`
	FilePath    string      `json:"filePath"`
	Status      string      `json:"status"`
}
