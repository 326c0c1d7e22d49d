package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/shared"
)

// Injector hands out local storage staged for a partition, at most once per staging.
type Injector interface {
	ConsumeForInjection(partition string) (map[string]string, bool)
}

// InjectionHandler lets a page that just loaded in a partition pull its staged local storage.
//
// The first request after staging gets the data; later requests get 204 until it is staged again.
type InjectionHandler struct {
	injector Injector
	logger   *log.Logger
}

// NewInjectionHandler creates an InjectionHandler.
func NewInjectionHandler(injector Injector, logger *log.Logger) *InjectionHandler {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &InjectionHandler{injector: injector, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *InjectionHandler) Routes() []string {
	return []string{"GET /partitions/{partition}/local-storage"}
}

func (h *InjectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	partition := strings.TrimSpace(r.PathValue("partition"))
	if partition == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "partition is required"})
		return
	}

	data, ok := h.injector.ConsumeForInjection(partition)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.logger.Info("Handed off local storage", "partition", partition, "keys", len(data))
	writeJSON(w, http.StatusOK, data)
}
