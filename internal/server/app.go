package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/shared"
)

// Registry is everything the task endpoints need from the task registry.
type Registry interface {
	TaskController
	TaskSource
}

// NewRouter wires the task API, the task event stream and the local storage handoff
// behind logging and panic recovery.
func NewRouter(registry Registry, injector Injector, keepAlive time.Duration, logger *log.Logger) *BasicRouter {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	router := NewBasicRouter()
	router.Use(Recover(logger), Logging(logger))

	router.Handler(NewTaskHandler(registry, logger))
	router.Handler(NewEventsHandler(registry, keepAlive, logger))
	if injector != nil {
		router.Handler(NewInjectionHandler(injector, logger))
	}
	router.Handle(http.MethodGet, "/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}))
	return router
}
