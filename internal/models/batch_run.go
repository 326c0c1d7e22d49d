package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatchRun is a finished batch operation recorded for history.
type BatchRun struct {
	id           string
	sequence     int
	taskID       int64
	name         string
	taskType     TaskType
	status       TaskStatus
	total        int
	successCount int
	failedCount  int
	cancelled    bool
	failedItems  []FailedItem
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewBatchRun records the final state of a task together with its result.
func NewBatchRun(task Task, result BatchResult) *BatchRun {
	now := time.Now()
	return &BatchRun{
		taskID:       task.ID,
		name:         task.Name,
		taskType:     task.Type,
		status:       task.Status,
		total:        result.Total,
		successCount: result.SuccessCount,
		failedCount:  result.FailedCount,
		cancelled:    result.Cancelled,
		failedItems:  result.FailedItems,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (b *BatchRun) ID() string                { return b.id }
func (b *BatchRun) Sequence() int             { return b.sequence }
func (b *BatchRun) TaskID() int64             { return b.taskID }
func (b *BatchRun) Name() string              { return b.name }
func (b *BatchRun) Type() TaskType            { return b.taskType }
func (b *BatchRun) Status() TaskStatus        { return b.status }
func (b *BatchRun) Total() int                { return b.total }
func (b *BatchRun) SuccessCount() int         { return b.successCount }
func (b *BatchRun) FailedCount() int          { return b.failedCount }
func (b *BatchRun) Cancelled() bool           { return b.cancelled }
func (b *BatchRun) FailedItems() []FailedItem { return b.failedItems }
func (b *BatchRun) CreatedAt() time.Time      { return b.createdAt }
func (b *BatchRun) UpdatedAt() time.Time      { return b.updatedAt }
func (b *BatchRun) DeletedAt() *time.Time     { return b.deletedAt }
func (b *BatchRun) SetID(id string)           { b.id = id }
func (b *BatchRun) SetSequence(seq int)       { b.sequence = seq }
func (b *BatchRun) SetTaskID(id int64)        { b.taskID = id }
func (b *BatchRun) SetName(name string)       { b.name = name }
func (b *BatchRun) SetType(t TaskType)        { b.taskType = t }
func (b *BatchRun) SetStatus(s TaskStatus)    { b.status = s }
func (b *BatchRun) SetCounts(total, ok, failed int) {
	b.total, b.successCount, b.failedCount = total, ok, failed
}
func (b *BatchRun) SetCancelled(c bool)               { b.cancelled = c }
func (b *BatchRun) SetFailedItems(items []FailedItem) { b.failedItems = items }
func (b *BatchRun) SetCreatedAt(t time.Time)          { b.createdAt = t }
func (b *BatchRun) SetUpdatedAt(t time.Time)          { b.updatedAt = t }
func (b *BatchRun) SetDeletedAt(t *time.Time)         { b.deletedAt = t }

// Validate checks that the run describes a finished task.
func (b *BatchRun) Validate() error {
	if b.name == "" {
		return fmt.Errorf("batch run name is required")
	}
	if !b.status.Terminal() {
		return fmt.Errorf("batch run status must be terminal, got %q", b.status)
	}
	if b.successCount+b.failedCount > b.total {
		return fmt.Errorf("batch run counts exceed total: %d+%d > %d", b.successCount, b.failedCount, b.total)
	}
	return nil
}

// MarshalJSON renders the run for history exports.
func (b *BatchRun) MarshalJSON() ([]byte, error) {
	items := b.failedItems
	if items == nil {
		items = []FailedItem{}
	}
	return json.Marshal(struct {
		ID           string       `json:"id"`
		TaskID       int64        `json:"taskId"`
		Name         string       `json:"name"`
		Type         TaskType     `json:"type"`
		Status       TaskStatus   `json:"status"`
		Total        int          `json:"total"`
		SuccessCount int          `json:"successCount"`
		FailedCount  int          `json:"failedCount"`
		Cancelled    bool         `json:"cancelled"`
		FailedItems  []FailedItem `json:"failedItems"`
		CreatedAt    time.Time    `json:"created_at"`
	}{
		ID:           b.id,
		TaskID:       b.taskID,
		Name:         b.name,
		Type:         b.taskType,
		Status:       b.status,
		Total:        b.total,
		SuccessCount: b.successCount,
		FailedCount:  b.failedCount,
		Cancelled:    b.cancelled,
		FailedItems:  items,
		CreatedAt:    b.createdAt,
	})
}
