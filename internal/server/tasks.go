package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// TaskController is the part of the task registry the HTTP API drives.
type TaskController interface {
	List() []models.Task
	Get(id int64) (models.Task, error)
	Pause(id int64) error
	Resume(id int64) error
	Cancel(id int64) error
	Remove(id int64) error
	ClearCompleted() int
}

// TaskHandler serves the task list and its pause, resume and cancel controls.
type TaskHandler struct {
	tasks  TaskController
	logger *log.Logger
	mux    *http.ServeMux
}

// NewTaskHandler creates a TaskHandler over tasks.
func NewTaskHandler(tasks TaskController, logger *log.Logger) *TaskHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	h := &TaskHandler{tasks: tasks, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /tasks", h.list)
	h.mux.HandleFunc("GET /tasks/{id}", h.get)
	h.mux.HandleFunc("POST /tasks/{id}/pause", h.control("pause", tasks.Pause))
	h.mux.HandleFunc("POST /tasks/{id}/resume", h.control("resume", tasks.Resume))
	h.mux.HandleFunc("POST /tasks/{id}/cancel", h.control("cancel", tasks.Cancel))
	h.mux.HandleFunc("DELETE /tasks/{id}", h.remove)
	h.mux.HandleFunc("POST /tasks/clear", h.clear)
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *TaskHandler) Routes() []string {
	return []string{
		"GET /tasks",
		"GET /tasks/{id}",
		"POST /tasks/{id}/pause",
		"POST /tasks/{id}/resume",
		"POST /tasks/{id}/cancel",
		"DELETE /tasks/{id}",
		"POST /tasks/clear",
	}
}

func (h *TaskHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func taskID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: task id %q", shared.ErrInvalidInput, raw)
	}
	return id, nil
}

func (h *TaskHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.tasks.List())
}

func (h *TaskHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := h.tasks.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (h *TaskHandler) control(action string, fn func(int64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := taskID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := fn(id); err != nil {
			h.logger.Warn("Task control rejected", "action", action, "task", id, "error", err)
			writeError(w, err)
			return
		}
		h.logger.Info("Task control", "action", action, "task", id)
		task, err := h.tasks.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

func (h *TaskHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.tasks.Remove(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) clear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"removed": h.tasks.ClearCompleted()})
}
