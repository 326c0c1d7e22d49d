package tasks

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// Aborter cancels an in-flight request by id. [services.Transport] satisfies it.
type Aborter interface {
	Abort(requestID string) bool
}

// Registry owns every task of the process, in creation order.
//
// Ids increase monotonically and are never reused. Pause and cancel abort the task's
// tracked in-flight request through the [Aborter]. Every mutation is published to
// subscribers as a copy of the task.
type Registry struct {
	mu      sync.Mutex
	nextID  int64
	tasks   []*models.Task
	aborter Aborter
	logger  *log.Logger
	now     func() time.Time

	subs    map[int]chan models.Task
	nextSub int
}

// NewRegistry creates an empty registry. aborter may be nil.
func NewRegistry(aborter Aborter, logger *log.Logger) *Registry {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Registry{
		aborter: aborter,
		logger:  logger,
		now:     time.Now,
		subs:    make(map[int]chan models.Task),
	}
}

// SetAborter replaces the request aborter.
func (r *Registry) SetAborter(a Aborter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aborter = a
}

func (r *Registry) find(id int64) *models.Task {
	for _, t := range r.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// publish must be called with mu held.
func (r *Registry) publish(t *models.Task) {
	for _, ch := range r.subs {
		select {
		case ch <- *t:
		default:
		}
	}
}

// abortCurrent must be called with mu held.
func (r *Registry) abortCurrent(t *models.Task) {
	if t.CurrentRequestID == "" {
		return
	}
	if r.aborter != nil && r.aborter.Abort(t.CurrentRequestID) {
		r.logger.Debug("Aborted in-flight request", "task", t.ID, "request_id", t.CurrentRequestID)
	}
	t.CurrentRequestID = ""
}

// Create registers a pending task with zeroed counters.
func (r *Registry) Create(name string, total int, typ models.TaskType, detail string) models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	if typ == "" {
		typ = models.TaskTypeDefault
	}
	r.nextID++
	t := &models.Task{
		ID:        r.nextID,
		Name:      name,
		Type:      typ,
		Status:    models.TaskPending,
		Total:     total,
		Detail:    detail,
		CreatedAt: r.now(),
	}
	r.tasks = append(r.tasks, t)
	r.publish(t)
	return *t
}

// Update records progress. An empty detail keeps the previous one.
//
// A pending task becomes running; paused and terminal statuses are left as they are so a
// late update cannot undo a pause or a cancel.
func (r *Registry) Update(id int64, current int, detail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	t.Current = current
	t.Progress = percent(current, t.Total)
	if detail != "" {
		t.Detail = detail
	}
	if t.Status == models.TaskPending {
		t.Status = models.TaskRunning
	}
	r.publish(t)
	return nil
}

func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(current) / float64(total) * 100))
}

// Complete marks the run finished: current is set to total and progress to 100
// regardless of how many items failed.
func (r *Registry) Complete(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	t.Status = models.TaskCompleted
	t.Current = t.Total
	t.Progress = 100
	t.Paused = false
	t.CurrentRequestID = ""
	r.publish(t)
	return nil
}

// Fail marks the task failed with message.
func (r *Registry) Fail(id int64, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	if message == "" {
		message = "任务失败"
	}
	t.Status = models.TaskFailed
	t.Error = message
	t.Paused = false
	t.CurrentRequestID = ""
	r.publish(t)
	return nil
}

// Pause suspends a running task and aborts its in-flight request.
func (r *Registry) Pause(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	if t.Status != models.TaskRunning {
		return fmt.Errorf("%w: cannot pause %s task %d", shared.ErrInvalidTransition, t.Status, id)
	}
	t.Status = models.TaskPaused
	t.Paused = true
	r.abortCurrent(t)
	r.publish(t)
	return nil
}

// Resume continues a paused task.
func (r *Registry) Resume(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	if t.Status != models.TaskPaused {
		return fmt.Errorf("%w: cannot resume %s task %d", shared.ErrInvalidTransition, t.Status, id)
	}
	t.Status = models.TaskRunning
	t.Paused = false
	r.publish(t)
	return nil
}

// Cancel stops a running or paused task and aborts its in-flight request.
func (r *Registry) Cancel(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	if t.Status != models.TaskRunning && t.Status != models.TaskPaused {
		return fmt.Errorf("%w: cannot cancel %s task %d", shared.ErrInvalidTransition, t.Status, id)
	}
	t.Status = models.TaskCancelled
	t.Cancelled = true
	t.Paused = false
	r.abortCurrent(t)
	r.publish(t)
	return nil
}

// SetRequestID tracks the request a task is waiting on. An empty id clears it.
func (r *Registry) SetRequestID(id int64, requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t := r.find(id); t != nil {
		t.CurrentRequestID = requestID
	}
}

// IsPaused reports the pause flag. Unknown ids are not paused.
func (r *Registry) IsPaused(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	return t != nil && t.Paused
}

// IsCancelled reports the cancel flag. Unknown ids are not cancelled.
func (r *Registry) IsCancelled(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	return t != nil && t.Cancelled
}

// Get returns a copy of the task.
func (r *Registry) Get(id int64) (models.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := r.find(id)
	if t == nil {
		return models.Task{}, fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	return *t, nil
}

// List returns copies of all tasks in creation order.
func (r *Registry) List() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Task, len(r.tasks))
	for i, t := range r.tasks {
		out[i] = *t
	}
	return out
}

// publishRemoved must be called with mu held.
func (r *Registry) publishRemoved(t *models.Task) {
	gone := *t
	gone.Removed = true
	r.publish(&gone)
}

// Remove drops a task from the list and publishes a copy marked Removed.
func (r *Registry) Remove(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.tasks, func(t *models.Task) bool { return t.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %d", shared.ErrTaskNotFound, id)
	}
	t := r.tasks[i]
	r.tasks = slices.Delete(r.tasks, i, i+1)
	r.publishRemoved(t)
	return nil
}

// ClearCompleted drops completed tasks and returns how many were removed.
// Failed and cancelled tasks stay listed. Each dropped task is published marked Removed.
func (r *Registry) ClearCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.tasks)
	r.tasks = slices.DeleteFunc(r.tasks, func(t *models.Task) bool {
		if t.Status != models.TaskCompleted {
			return false
		}
		r.publishRemoved(t)
		return true
	})
	return before - len(r.tasks)
}

// Subscribe returns a channel receiving a copy of each task after every mutation, and a
// function that unsubscribes and closes the channel. Updates are dropped when the
// subscriber falls behind.
func (r *Registry) Subscribe(buffer int) (<-chan models.Task, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.Task, buffer)

	r.mu.Lock()
	key := r.nextSub
	r.nextSub++
	r.subs[key] = ch
	r.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, key)
			r.mu.Unlock()
			close(ch)
		})
	}
}
