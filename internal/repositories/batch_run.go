package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

const batchRunColumns = `id, sequence, task_id, name, type, status, total, success_count, failed_count, cancelled, failed_items, created_at, updated_at, deleted_at`

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BatchRunRepository implements models.Repository[*models.BatchRun] and records
// finished batch tasks for history.
type BatchRunRepository struct {
	db *sql.DB
}

// NewBatchRunRepository creates a new BatchRunRepository with the given database connection
func NewBatchRunRepository(db *sql.DB) *BatchRunRepository {
	return &BatchRunRepository{db: db}
}

// RecordRun stores the final state of a task.
func (r *BatchRunRepository) RecordRun(ctx context.Context, task models.Task, result models.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.Create(models.NewBatchRun(task, result))
}

// Create inserts a new batch run with a generated ID and sequence
func (r *BatchRunRepository) Create(run *models.BatchRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	items := run.FailedItems()
	if items == nil {
		items = []models.FailedItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode failed items: %w", err)
	}

	sequence, err := NextSequence(r.db, "batch_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	run.SetID(shared.GenerateID())
	run.SetSequence(sequence)

	_, err = r.db.Exec(`
		INSERT INTO batch_runs (id, sequence, task_id, name, type, status, total, success_count, failed_count, cancelled, failed_items, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID(),
		sequence,
		run.TaskID(),
		run.Name(),
		string(run.Type()),
		string(run.Status()),
		run.Total(),
		run.SuccessCount(),
		run.FailedCount(),
		run.Cancelled(),
		string(encoded),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch run: %w", err)
	}
	return nil
}

// Get retrieves a batch run by ID, excluding soft-deleted runs
func (r *BatchRunRepository) Get(id string) (*models.BatchRun, error) {
	query := `SELECT ` + batchRunColumns + ` FROM batch_runs WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// Update rewrites the status and counts of a batch run
func (r *BatchRunRepository) Update(run *models.BatchRun) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	encoded, err := json.Marshal(run.FailedItems())
	if err != nil {
		return fmt.Errorf("failed to encode failed items: %w", err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	result, err := r.db.Exec(`
		UPDATE batch_runs
		SET name = ?, status = ?, total = ?, success_count = ?, failed_count = ?, cancelled = ?, failed_items = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`,
		run.Name(),
		string(run.Status()),
		run.Total(),
		run.SuccessCount(),
		run.FailedCount(),
		run.Cancelled(),
		string(encoded),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update batch run: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrBatchRunNotFound, run.ID()))
}

// Delete soft-deletes a batch run by ID
func (r *BatchRunRepository) Delete(id string) error {
	result, err := r.db.Exec(`
		UPDATE batch_runs
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete batch run: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrBatchRunNotFound, id))
}

// List retrieves batch runs, newest first.
//
// Supported criteria: "type" ([models.TaskType] or string), "status" ([models.TaskStatus] or string)
// and "limit" (int).
func (r *BatchRunRepository) List(criteria map[string]any) ([]*models.BatchRun, error) {
	query := `SELECT ` + batchRunColumns + ` FROM batch_runs WHERE deleted_at IS NULL`
	args := []any{}

	switch v := criteria["type"].(type) {
	case models.TaskType:
		query += " AND type = ?"
		args = append(args, string(v))
	case string:
		query += " AND type = ?"
		args = append(args, v)
	}

	switch v := criteria["status"].(type) {
	case models.TaskStatus:
		query += " AND status = ?"
		args = append(args, string(v))
	case string:
		query += " AND status = ?"
		args = append(args, v)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.BatchRun
	for rows.Next() {
		run, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

func (r *BatchRunRepository) scan(row scanner) (*models.BatchRun, error) {
	var (
		id           string
		sequence     int
		taskID       int64
		name         string
		taskType     string
		status       string
		total        int
		successCount int
		failedCount  int
		cancelled    bool
		failedItems  string
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &taskID, &name, &taskType, &status, &total, &successCount,
		&failedCount, &cancelled, &failedItems, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrBatchRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch run: %w", err)
	}

	var items []models.FailedItem
	if failedItems != "" {
		if err := json.Unmarshal([]byte(failedItems), &items); err != nil {
			return nil, fmt.Errorf("failed to decode failed items of %s: %w", id, err)
		}
	}

	run := &models.BatchRun{}
	run.SetID(id)
	run.SetSequence(sequence)
	run.SetTaskID(taskID)
	run.SetName(name)
	run.SetType(models.TaskType(taskType))
	run.SetStatus(models.TaskStatus(status))
	run.SetCounts(total, successCount, failedCount)
	run.SetCancelled(cancelled)
	run.SetFailedItems(items)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		run.SetDeletedAt(&deletedAt.Time)
	}
	return run, nil
}
