package session

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/shared"
)

// DefaultDebounce is the quiet period before a scheduled sync runs.
const DefaultDebounce = 2 * time.Second

// SyncScheduler runs the most recently scheduled function per key once the key has been
// quiet for the debounce delay.
type SyncScheduler struct {
	delay  time.Duration
	logger *log.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// NewSyncScheduler creates a scheduler. A non-positive delay uses [DefaultDebounce].
func NewSyncScheduler(delay time.Duration, logger *log.Logger) *SyncScheduler {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SyncScheduler{delay: delay, logger: logger, timers: make(map[string]*time.Timer)}
}

// Schedule replaces any pending run for key with fn.
func (s *SyncScheduler) Schedule(key string, fn func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.Stop()
	}

	var timer *time.Timer
	timer = time.AfterFunc(s.delay, func() {
		s.mu.Lock()
		if s.timers[key] != timer {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		if err := fn(); err != nil {
			s.logger.Warn("Debounced sync failed", "key", key, "error", err)
		}
	})
	s.timers[key] = timer
}

// Cancel drops the pending run for key.
func (s *SyncScheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// CancelAll drops every pending run.
func (s *SyncScheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending reports whether key has a run scheduled.
func (s *SyncScheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[key]
	return ok
}
