package models

import (
	"fmt"
	"time"
)

// Outcome statuses recorded by the scheduler.
const (
	OutcomeSucceeded = "SUCCEEDED"
	OutcomeFailed    = "FAILED"
)

// Run statuses persisted in Postgres.
const (
	RunStatusRunning  = "running"
	RunStatusFinished = "finished"
	RunStatusFailed   = "failed"
)

// Outcome is the result log entry for one scheduled task.
type Outcome struct {
	TaskID     string    `json:"task_id"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
	Location   string    `json:"location,omitempty"`
	Rows       int       `json:"rows"`
	RecordedAt time.Time `json:"recorded_at"`
}

func (o Outcome) Failed() bool {
	return o.Status == OutcomeFailed
}

func (o Outcome) String() string {
	if o.Failed() {
		return fmt.Sprintf("[%s] %s: %s", o.Status, o.TaskID, o.Detail)
	}
	return fmt.Sprintf("[%s] %s", o.Status, o.TaskID)
}

// Run is one scenario execution and the outcomes it produced.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	Workers    int        `json:"workers"`
	Status     string     `json:"status"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	LastError  *string    `json:"last_error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Outcomes   []Outcome  `json:"outcomes,omitempty"`
}
