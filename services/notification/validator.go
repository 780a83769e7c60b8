// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package notification

import (
	"fmt"
	"slices"

	"github.com/mmia-foundation/mmia/lib/schema"
)

// Validator decides whether a notification fires for a content item.
type Validator struct {
	// AlertActionID is the content action that marks an alert. Zero
	// means no content is an alert.
	AlertActionID int64
}

// Confirm returns true when notification should be sent for content,
// or false with the reason it should not.
func (v Validator) Confirm(notification *schema.Notification, content *schema.Content) (bool, string) {
	if !notification.IsEnabled {
		return false, "notification disabled"
	}
	if content.IsHidden {
		return false, "content hidden"
	}
	settings := notification.Settings
	if len(settings.ContentTypes) > 0 && !slices.Contains(settings.ContentTypes, content.ContentType) {
		return false, fmt.Sprintf("content type %s not selected", content.ContentType)
	}
	if len(settings.ProductIDs) > 0 && !slices.Contains(settings.ProductIDs, content.ProductID) {
		return false, fmt.Sprintf("product %d not selected", content.ProductID)
	}
	if len(settings.SourceIDs) > 0 && (content.SourceID == nil || !slices.Contains(settings.SourceIDs, *content.SourceID)) {
		return false, "source not selected"
	}
	if settings.AlertOnly && (v.AlertActionID == 0 || !content.HasAction(v.AlertActionID)) {
		return false, "content is not an alert"
	}
	return true, ""
}
