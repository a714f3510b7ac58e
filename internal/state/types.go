// Package state provides per-job visited sets and persistent storage for
// crawl tasks, settings and API tokens.
package state

import (
	"encoding/json"
	"time"
)

// TaskState is the lifecycle state of a crawl task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
	TaskCancelled TaskState = "cancelled"
)

// Terminal reports whether the task has finished.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskRecord is the persisted form of a crawl task.
type TaskRecord struct {
	ID           string          `json:"task_id"`
	StartURL     string          `json:"start_url"`
	State        TaskState       `json:"state"`
	PagesCrawled int             `json:"pages_crawled"`
	Queue        int             `json:"queue"`
	Depth        int             `json:"depth"`
	Error        string          `json:"error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	FinishedAt   time.Time       `json:"finished_at,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
}
