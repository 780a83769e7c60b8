// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "time"

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	WorkOrderSubmitted  WorkOrderStatus = "Submitted"
	WorkOrderInProgress WorkOrderStatus = "InProgress"
	WorkOrderCompleted  WorkOrderStatus = "Completed"
	WorkOrderFailed     WorkOrderStatus = "Failed"
	WorkOrderCancelled  WorkOrderStatus = "Cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s WorkOrderStatus) IsTerminal() bool {
	switch s {
	case WorkOrderCompleted, WorkOrderFailed, WorkOrderCancelled:
		return true
	}
	return false
}

// WorkOrderType names the kind of work requested.
type WorkOrderType string

const (
	WorkOrderTranscription WorkOrderType = "Transcription"
	WorkOrderFileRequest   WorkOrderType = "FileRequest"
)

// WorkOrder tracks a unit of requested work so users can see whether
// it was picked up and how it ended.
type WorkOrder struct {
	ID          int64           `json:"id"`
	WorkType    WorkOrderType   `json:"workType"`
	Status      WorkOrderStatus `json:"status"`
	ContentID   *int64          `json:"contentId,omitempty"`
	RequestorID *int64          `json:"requestorId,omitempty"`
	Description string          `json:"description,omitempty"`
	Note        string          `json:"note,omitempty"`
	UpdatedOn   *time.Time      `json:"updatedOn,omitempty"`
	Version     int64           `json:"version"`
}
