package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// TaskSource lists tasks and streams their changes.
type TaskSource interface {
	List() []models.Task
	Subscribe(buffer int) (<-chan models.Task, func())
}

// DefaultKeepAlive is the interval between SSE comment lines on an idle stream.
const DefaultKeepAlive = 15 * time.Second

// EventsHandler streams task snapshots as server-sent events.
//
// A new client first receives a "task" event for every listed task, then one per mutation.
type EventsHandler struct {
	source    TaskSource
	logger    *log.Logger
	keepAlive time.Duration
}

// NewEventsHandler creates an EventsHandler. keepAlive <= 0 uses [DefaultKeepAlive].
func NewEventsHandler(source TaskSource, keepAlive time.Duration, logger *log.Logger) *EventsHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &EventsHandler{source: source, logger: logger, keepAlive: keepAlive}
}

// Routes returns the HTTP routes this handler serves.
func (h *EventsHandler) Routes() []string {
	return []string{"GET /tasks/events"}
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	updates, unsubscribe := h.source.Subscribe(0)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, task := range h.source.List() {
		if err := writeEvent(w, task); err != nil {
			return
		}
	}
	flusher.Flush()

	h.logger.Debug("Task stream opened", "remote", r.RemoteAddr)
	defer h.logger.Debug("Task stream closed", "remote", r.RemoteAddr)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case task, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, task); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, task models.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: task\nid: %d\ndata: %s\n\n", task.ID, data)
	return err
}
