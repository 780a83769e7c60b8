// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"time"
)

// ReportType distinguishes content reports from evening AV overviews.
type ReportType string

const (
	ReportContent    ReportType = "Content"
	ReportAVOverview ReportType = "AVOverview"
)

// ReportStatus is the lifecycle of a report instance.
type ReportStatus string

const (
	ReportPending   ReportStatus = "Pending"
	ReportSubmitted ReportStatus = "Submitted"
	ReportCompleted ReportStatus = "Completed"
	ReportFailed    ReportStatus = "Failed"
)

// Report is a configured report.
type Report struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	IsEnabled   bool               `json:"isEnabled"`
	OwnerID     *int64             `json:"ownerId,omitempty"`
	Template    *Template          `json:"template,omitempty"`
	Sections    []ReportSection    `json:"sections,omitempty"`
	Subscribers []ReportSubscriber `json:"subscribers,omitempty"`
}

// ReportSection groups content under a heading.
type ReportSection struct {
	Name      string `json:"name"`
	Label     string `json:"label,omitempty"`
	SortOrder int    `json:"sortOrder"`
	// ShowImages makes the report inline image content of the section.
	ShowImages bool `json:"showImages,omitempty"`
}

// ReportSubscriber links a user to a report.
type ReportSubscriber struct {
	UserID       int64  `json:"userId"`
	IsSubscribed bool   `json:"isSubscribed"`
	Email        string `json:"email,omitempty"`
}

// ReportInstance is one generated edition of a report.
type ReportInstance struct {
	ID          int64                   `json:"id"`
	ReportID    int64                   `json:"reportId"`
	OwnerID     *int64                  `json:"ownerId,omitempty"`
	Status      ReportStatus            `json:"status"`
	PublishedOn *time.Time              `json:"publishedOn,omitempty"`
	SentOn      *time.Time              `json:"sentOn,omitempty"`
	Subject     string                  `json:"subject,omitempty"`
	Body        string                  `json:"body,omitempty"`
	Response    json.RawMessage         `json:"response,omitempty"`
	Content     []ReportInstanceContent `json:"content,omitempty"`
	// Report is included when the instance is fetched on its own.
	Report      *Report                 `json:"report,omitempty"`
	Version     int64                   `json:"version"`
}

// ReportInstanceContent places content in a section of an instance.
type ReportInstanceContent struct {
	ContentID   int64    `json:"contentId"`
	SectionName string   `json:"sectionName"`
	SortOrder   int      `json:"sortOrder"`
	Content     *Content `json:"content,omitempty"`
}

// AVOverviewInstance is one evening overview edition.
type AVOverviewInstance struct {
	ID           int64               `json:"id"`
	TemplateType string              `json:"templateType"`
	PublishedOn  time.Time           `json:"publishedOn"`
	IsPublished  bool                `json:"isPublished"`
	Response     json.RawMessage     `json:"response,omitempty"`
	Sections     []AVOverviewSection `json:"sections,omitempty"`
}

// AVOverviewSection is one program in an overview.
type AVOverviewSection struct {
	Name      string                  `json:"name"`
	StartTime string                  `json:"startTime,omitempty"`
	SortOrder int                     `json:"sortOrder"`
	Items     []AVOverviewSectionItem `json:"items,omitempty"`
}

// AVOverviewSectionItem is one story within a program.
type AVOverviewSectionItem struct {
	ItemType  string `json:"itemType"`
	Time      string `json:"time,omitempty"`
	Summary   string `json:"summary"`
	ContentID *int64 `json:"contentId,omitempty"`
	SortOrder int    `json:"sortOrder"`
}

// AVOverviewTemplate holds the rendering template and subscribers for
// one template type.
type AVOverviewTemplate struct {
	TemplateType string             `json:"templateType"`
	Template     *Template          `json:"template,omitempty"`
	Subscribers  []ReportSubscriber `json:"subscribers,omitempty"`
}
