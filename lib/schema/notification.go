// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"time"
)

// Template is a subject/body pair rendered by the render package.
type Template struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	// Format is "html" (default) or "markdown".
	Format string `json:"format,omitempty"`
}

// Notification is a configured alert sent to its subscribers when
// matching content arrives.
type Notification struct {
	ID          int64                    `json:"id"`
	Name        string                   `json:"name"`
	IsEnabled   bool                     `json:"isEnabled"`
	Settings    NotificationSettings     `json:"settings"`
	Template    *Template                `json:"template,omitempty"`
	Subscribers []NotificationSubscriber `json:"subscribers,omitempty"`
}

// NotificationSettings filter which content a notification fires for.
// Empty lists match everything.
type NotificationSettings struct {
	ContentTypes []ContentType `json:"contentTypes,omitempty"`
	ProductIDs   []int64       `json:"productIds,omitempty"`
	SourceIDs    []int64       `json:"sourceIds,omitempty"`
	// AlertOnly restricts the notification to content flagged with the
	// alert action.
	AlertOnly bool `json:"alertOnly,omitempty"`
}

// NotificationSubscriber links a user to a notification.
type NotificationSubscriber struct {
	UserID       int64  `json:"userId"`
	IsSubscribed bool   `json:"isSubscribed"`
	Email        string `json:"email,omitempty"`
}

// NotificationInstance records one delivery of a notification.
type NotificationInstance struct {
	ID             int64           `json:"id,omitempty"`
	NotificationID int64           `json:"notificationId"`
	ContentID      int64           `json:"contentId"`
	Subject        string          `json:"subject"`
	Body           string          `json:"body"`
	Response       json.RawMessage `json:"response,omitempty"`
	SentOn         *time.Time      `json:"sentOn,omitempty"`
}
