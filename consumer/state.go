// Copyright 2026 The MMIA Authors
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"fmt"
	"time"
)

// Status is the supervisor's run status.
type Status int

const (
	Running Status = iota
	RequestPause
	Paused
	RequestSleep
	Sleeping
	Stopped
)

var statusNames = [...]string{"Running", "RequestPause", "Paused", "RequestSleep", "Sleeping", "Stopped"}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus parses the String form of a Status.
func ParseStatus(name string) (Status, error) {
	for i, candidate := range statusNames {
		if candidate == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// RunState is a snapshot of the supervisor.
type RunState struct {
	Status        Status
	FailureCount  int
	LastFailureAt time.Time
	LastError     string
	// Generation counts consume tasks started so far.
	Generation uint64
	TaskActive bool
}
