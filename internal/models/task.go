package models

import "time"

// TaskStatus is the lifecycle state of a [Task].
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskPaused    TaskStatus = "paused"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// TaskType names the batch operation a [Task] tracks.
type TaskType string

const (
	TaskTypeDefault TaskType = "default"
	TaskTypeDelete  TaskType = "delete"
	TaskTypeSync    TaskType = "sync"
	TaskTypePublish TaskType = "publish"
	TaskTypeCheck   TaskType = "check"
	TaskTypeQRCode  TaskType = "qrcode"
)

// Task is a point-in-time copy of one batch operation's state.
type Task struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Type             TaskType   `json:"type"`
	Status           TaskStatus `json:"status"`
	Current          int        `json:"current"`
	Total            int        `json:"total"`
	Progress         int        `json:"progress"`
	Detail           string     `json:"detail"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	Cancelled        bool       `json:"cancelled"`
	Paused           bool       `json:"paused"`
	CurrentRequestID string     `json:"current_request_id,omitempty"`
	// Removed is set only on the event published when the task leaves the list.
	Removed bool `json:"removed,omitempty"`
}

// FailedItem records one work item that failed inside a batch.
type FailedItem struct {
	ItemKey string `json:"itemKey"`
	Label   string `json:"label"`
	Error   string `json:"error"`
}

// BatchResult is the aggregate outcome of a batch run.
type BatchResult struct {
	Success      bool         `json:"success"`
	Total        int          `json:"total"`
	SuccessCount int          `json:"successCount"`
	FailedCount  int          `json:"failedCount"`
	FailedItems  []FailedItem `json:"failedItems"`
	Cancelled    bool         `json:"cancelled"`
	TaskID       int64        `json:"taskId"`
}

// Processed returns the number of items that reached an outcome.
func (r BatchResult) Processed() int { return r.SuccessCount + r.FailedCount }
