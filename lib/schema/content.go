// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// ContentType is the kind of content.
type ContentType string

const (
	ContentAudioVideo ContentType = "AudioVideo"
	ContentImage      ContentType = "Image"
	ContentPrint      ContentType = "PrintContent"
	ContentStory      ContentType = "Story"
	ContentInternet   ContentType = "Internet"
)

// Content is a news item as stored by the data API.
type Content struct {
	ID             int64           `json:"id"`
	ContentType    ContentType     `json:"contentType"`
	Status         string          `json:"status,omitempty"`
	Headline       string          `json:"headline"`
	Summary        string          `json:"summary,omitempty"`
	Body           string          `json:"body,omitempty"`
	Byline         string          `json:"byline,omitempty"`
	Section        string          `json:"section,omitempty"`
	Page           string          `json:"page,omitempty"`
	Source         string          `json:"otherSource,omitempty"`
	SourceID       *int64          `json:"sourceId,omitempty"`
	ProductID      int64           `json:"productId"`
	UID            string          `json:"uid,omitempty"`
	PublishedOn    *time.Time      `json:"publishedOn,omitempty"`
	IsHidden       bool            `json:"isHidden,omitempty"`
	FileReferences []FileReference `json:"fileReferences,omitempty"`
	Actions        []ContentAction `json:"actions,omitempty"`
	Version        int64           `json:"version"`
}

// FileReference is a file attached to content, relative to the
// service's volume path.
type FileReference struct {
	ID          int64  `json:"id"`
	ContentID   int64  `json:"contentId"`
	Path        string `json:"path"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	IsUploaded  bool   `json:"isUploaded"`
}

// ContentAction is a flag or value attached to content (alert,
// front page, commentary).
type ContentAction struct {
	ActionID int64  `json:"actionId"`
	Value    string `json:"value"`
}

// HasAction reports whether content carries actionID with a value
// that reads as true.
func (c *Content) HasAction(actionID int64) bool {
	for _, action := range c.Actions {
		if action.ActionID == actionID && (action.Value == "true" || action.Value == "True") {
			return true
		}
	}
	return false
}

// User is the subset of a user account the services read.
type User struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	PreferredEmail string `json:"preferredEmail,omitempty"`
	DisplayName    string `json:"displayName,omitempty"`
}

// Address returns the preferred email when set.
func (u *User) Address() string {
	if u.PreferredEmail != "" {
		return u.PreferredEmail
	}
	return u.Email
}
