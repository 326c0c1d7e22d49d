package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
)

// DefaultPausePoll is how often a paused run re-checks its flags.
const DefaultPausePoll = 500 * time.Millisecond

// Item is one unit of work in a batch. Key identifies it in failure reports and Label
// names it in progress text.
type Item struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Job describes one batch run for [Runner.Run].
type Job struct {
	Name     string
	Type     models.TaskType
	Detail   string // initial task detail
	Items    []Item
	Delay    time.Duration
	Progress chan<- ProgressUpdate

	// Do performs one item. step.RequestID must be passed to the network call so a pause
	// or cancel can abort it.
	Do func(ctx context.Context, item Item, step Step) error

	Running func(Item) string
	Done    func(Item) string
	Failed  func(Item) string

	// Summary is the task error when every item failed.
	Summary func(*models.BatchResult) string
}

// Step identifies one attempt at an item.
type Step struct {
	TaskID    int64
	Index     int
	RequestID string
}

// Recorder stores finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, task models.Task, result models.BatchResult) error
}

// Runner drives batch jobs item by item against a [Registry].
//
// Items run strictly in order. Before each item the runner honors cancel and waits out a
// pause; a request aborted by a pause is retried once the task resumes, any other abort
// ends the run as cancelled. Failed items are recorded and the run continues.
type Runner struct {
	registry  *Registry
	logger    *log.Logger
	pausePoll time.Duration
	recorder  Recorder
	now       func() time.Time
}

// NewRunner creates a runner. A non-positive pausePoll uses [DefaultPausePoll].
func NewRunner(registry *Registry, pausePoll time.Duration, logger *log.Logger) *Runner {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if pausePoll <= 0 {
		pausePoll = DefaultPausePoll
	}
	return &Runner{
		registry:  registry,
		logger:    logger,
		pausePoll: pausePoll,
		now:       time.Now,
	}
}

// SetRecorder enables run history.
func (r *Runner) SetRecorder(rec Recorder) { r.recorder = rec }

// Registry returns the registry tasks are tracked in.
func (r *Runner) Registry() *Registry { return r.registry }

func requestID(taskID int64, index int, now time.Time) string {
	return fmt.Sprintf("task_%d_item_%d_%d", taskID, index, now.UnixMilli())
}

// newPacer returns a limiter spacing item starts by delay, with its initial token spent
// so the first item runs immediately and the second waits.
func newPacer(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	l := rate.NewLimiter(rate.Every(delay), 1)
	l.Allow()
	return l
}

type outcome int

const (
	succeeded outcome = iota
	failed
	cancelled
)

// Run executes job and returns its result.
//
// The only error returned is a runner fault (a panic inside Do or the runner itself),
// which also fails the task. Item failures are reported in the result.
func (r *Runner) Run(ctx context.Context, job Job) (result *models.BatchResult, err error) {
	job = withDefaultLabels(job)
	total := len(job.Items)
	task := r.registry.Create(job.Name, total, job.Type, job.Detail)
	logger := shared.WithLogger(r.logger, "task", task.ID, "type", job.Type)
	phase := phaseFor(job.Type)

	result = &models.BatchResult{
		Success:     true,
		Total:       total,
		FailedItems: []models.FailedItem{},
		TaskID:      task.ID,
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("batch runner: %v", p)
			result.Success = false
			_ = r.registry.Fail(task.ID, err.Error())
			logger.Error("Batch run aborted", "error", err)
		}
		r.record(ctx, task.ID, *result, logger)
	}()

	_ = r.registry.Update(task.ID, 0, job.Detail)
	sendProgress(job.Progress, prepareUpdate(total, job.Detail))

	pacer := newPacer(job.Delay)
	for i, item := range job.Items {
		if i > 0 {
			if werr := pacer.Wait(ctx); werr != nil {
				result.Cancelled = true
				break
			}
		}
		if !r.ready(ctx, task.ID) {
			result.Cancelled = true
			break
		}

		switch out, itemErr := r.runItem(ctx, task.ID, i, item, job); out {
		case succeeded:
			result.SuccessCount++
			msg := job.Done(item)
			_ = r.registry.Update(task.ID, i+1, msg)
			sendProgress(job.Progress, itemUpdate(phase, i+1, total, msg, item))
		case failed:
			f := models.FailedItem{ItemKey: item.Key, Label: item.Label, Error: itemErr.Error()}
			result.FailedCount++
			result.FailedItems = append(result.FailedItems, f)
			msg := job.Failed(item)
			_ = r.registry.Update(task.ID, i+1, msg)
			sendProgress(job.Progress, itemFailedUpdate(phase, i+1, total, msg, f))
			logger.Warn("Batch item failed", "item", item.Key, "error", itemErr)
		case cancelled:
			result.Cancelled = true
		}
		if result.Cancelled {
			break
		}
	}

	if r.registry.IsCancelled(task.ID) {
		result.Cancelled = true
	}
	r.finish(task.ID, result, job, logger)
	sendProgress(job.Progress, finishedUpdate(result))
	return result, nil
}

func (r *Runner) runItem(ctx context.Context, taskID int64, index int, item Item, job Job) (outcome, error) {
	for {
		_ = r.registry.Update(taskID, index, job.Running(item))
		sendProgress(job.Progress, itemUpdate(phaseFor(job.Type), index, len(job.Items), job.Running(item), item))

		step := Step{TaskID: taskID, Index: index, RequestID: requestID(taskID, index, r.now())}
		r.registry.SetRequestID(taskID, step.RequestID)
		err := job.Do(ctx, item, step)
		r.registry.SetRequestID(taskID, "")

		switch {
		case err == nil:
			return succeeded, nil
		case ctx.Err() != nil:
			return cancelled, nil
		case services.IsAborted(err):
			if r.registry.IsPaused(taskID) && !r.registry.IsCancelled(taskID) {
				r.logger.Info("Request aborted by pause, retrying after resume", "task", taskID, "item", item.Key)
				if !r.ready(ctx, taskID) {
					return cancelled, nil
				}
				continue
			}
			return cancelled, nil
		default:
			return failed, err
		}
	}
}

// ready waits out a pause and reports whether the run may continue.
func (r *Runner) ready(ctx context.Context, taskID int64) bool {
	if r.registry.IsCancelled(taskID) || ctx.Err() != nil {
		return false
	}
	if !r.registry.IsPaused(taskID) {
		return true
	}

	ticker := time.NewTicker(r.pausePoll)
	defer ticker.Stop()
	for r.registry.IsPaused(taskID) {
		if r.registry.IsCancelled(taskID) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
	return !r.registry.IsCancelled(taskID)
}

func (r *Runner) finish(taskID int64, result *models.BatchResult, job Job, logger *log.Logger) {
	switch {
	case result.Cancelled:
		result.Success = false
		if t, err := r.registry.Get(taskID); err == nil && !t.Status.Terminal() {
			_ = r.registry.Cancel(taskID)
		}
		logger.Info("Batch run cancelled", "succeeded", result.SuccessCount, "failed", result.FailedCount)
	case result.FailedCount == 0:
		_ = r.registry.Complete(taskID)
		logger.Info("Batch run completed", "succeeded", result.SuccessCount)
	case result.SuccessCount == 0:
		result.Success = false
		_ = r.registry.Fail(taskID, job.Summary(result))
		logger.Warn("Batch run failed", "failed", result.FailedCount)
	default:
		result.Success = false
		_ = r.registry.Complete(taskID)
		logger.Info("Batch run completed with failures", "succeeded", result.SuccessCount, "failed", result.FailedCount)
	}
}

func (r *Runner) record(ctx context.Context, taskID int64, result models.BatchResult, logger *log.Logger) {
	if r.recorder == nil {
		return
	}
	task, err := r.registry.Get(taskID)
	if err != nil {
		return
	}
	if err := r.recorder.RecordRun(context.WithoutCancel(ctx), task, result); err != nil {
		logger.Warn("Could not record batch run", "error", err)
	}
}

func withDefaultLabels(job Job) Job {
	if job.Running == nil {
		job.Running = func(it Item) string { return fmt.Sprintf("正在处理《%s》", it.Label) }
	}
	if job.Done == nil {
		job.Done = func(it Item) string { return fmt.Sprintf("已处理《%s》", it.Label) }
	}
	if job.Failed == nil {
		job.Failed = func(it Item) string { return fmt.Sprintf("处理《%s》失败", it.Label) }
	}
	if job.Summary == nil {
		job.Summary = func(res *models.BatchResult) string {
			return fmt.Sprintf("失败 %d/%d", res.FailedCount, res.Total)
		}
	}
	if job.Do == nil {
		job.Do = func(context.Context, Item, Step) error { return shared.ErrNotImplemented }
	}
	return job
}
