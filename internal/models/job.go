package models

import (
	"time"
)

// JobState enumerates the lifecycle of one remote query execution.
type JobState string

const (
	StatePending   JobState = "PENDING"
	StateRunning   JobState = "RUNNING"
	StateSucceeded JobState = "SUCCEEDED"
	StateFailed    JobState = "FAILED"
	StateCancelled JobState = "CANCELLED"
	StateTimedOut  JobState = "TIMED_OUT"
)

// Terminal reports whether no further transition can leave the state.
func (s JobState) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled, StateTimedOut:
		return true
	}
	return false
}

// Job is one submitted SQL execution tracked by the remote service id.
type Job struct {
	ID          string    `json:"id"`
	SQL         string    `json:"sql"`
	State       JobState  `json:"state"`
	Reason      string    `json:"reason,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// JobStatus is what the remote service reports for a job on each poll.
type JobStatus struct {
	State  JobState
	Reason string
}
