package model

import "time"

// ExecutionStatus represents the outcome of a remote command
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusSucceeded ExecutionStatus = "succeeded"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionRecord is a historical record of one remote command
type ExecutionRecord struct {
	ID          string          `json:"id"`
	Node        string          `json:"node"`
	Command     string          `json:"command"`
	Status      ExecutionStatus `json:"status"`
	Output      string          `json:"output,omitempty"`
	Error       string          `json:"error,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Duration    time.Duration   `json:"duration,omitempty"`
}
