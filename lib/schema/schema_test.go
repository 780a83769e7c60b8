// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"testing"
)

func TestWorkOrderStatusIsTerminal(t *testing.T) {
	for status, want := range map[WorkOrderStatus]bool{
		WorkOrderSubmitted:  false,
		WorkOrderInProgress: false,
		WorkOrderCompleted:  true,
		WorkOrderFailed:     true,
		WorkOrderCancelled:  true,
	} {
		if got := status.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", status, got, want)
		}
	}
}

func TestContentHasAction(t *testing.T) {
	content := Content{Actions: []ContentAction{{ActionID: 3, Value: "true"}, {ActionID: 4, Value: "false"}}}
	if !content.HasAction(3) {
		t.Error("HasAction(3) = false")
	}
	if content.HasAction(4) {
		t.Error("HasAction(4) = true for a false value")
	}
	if content.HasAction(5) {
		t.Error("HasAction(5) = true for a missing action")
	}
}

func TestUserAddress(t *testing.T) {
	user := User{Email: "a@example.com"}
	if user.Address() != "a@example.com" {
		t.Fatalf("Address = %q", user.Address())
	}
	user.PreferredEmail = "b@example.com"
	if user.Address() != "b@example.com" {
		t.Fatalf("Address = %q, want preferred", user.Address())
	}
}

func TestTranscriptRequestDecodesAPIMessage(t *testing.T) {
	var request TranscriptRequest
	err := json.Unmarshal([]byte(`{"contentId":12,"workOrderId":7,"requestorId":3,"requestor":"editor"}`), &request)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if request.ContentID != 12 || request.WorkOrderID != 7 || *request.RequestorID != 3 {
		t.Fatalf("request = %+v", request)
	}
}
