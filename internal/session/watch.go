package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// SnapshotWatcher schedules an auth sync whenever a snapshot file is written.
//
// The file holds a JSON [models.AuthSnapshot]. The parent directory is watched so that
// editors and tools that replace the file atomically are still observed.
type SnapshotWatcher struct {
	path      string
	accountID string
	syncer    *AuthSyncer
	scheduler *SyncScheduler
	logger    *log.Logger
}

// NewSnapshotWatcher creates a watcher for path that syncs accountID.
func NewSnapshotWatcher(path, accountID string, syncer *AuthSyncer, scheduler *SyncScheduler, logger *log.Logger) *SnapshotWatcher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SnapshotWatcher{path: path, accountID: accountID, syncer: syncer, scheduler: scheduler, logger: logger}
}

// ReadSnapshotFile decodes a snapshot file.
func ReadSnapshotFile(path string) (models.AuthSnapshot, error) {
	var snapshot models.AuthSnapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshot, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return snapshot, fmt.Errorf("%w: %v", shared.ErrInvalidAuthBlob, err)
	}
	if snapshot.Cookies == nil {
		snapshot.Cookies = []models.Cookie{}
	}
	if snapshot.LocalStorage == nil {
		snapshot.LocalStorage = map[string]string{}
	}
	return snapshot, nil
}

// Run blocks until ctx is cancelled, scheduling a sync after each change to the file.
func (w *SnapshotWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	defer w.scheduler.Cancel(w.accountID)

	w.logger.Info("Watching snapshot file", "path", target, "account", w.accountID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.scheduler.Schedule(w.accountID, func() error {
				return w.syncFile(ctx, target)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *SnapshotWatcher) syncFile(ctx context.Context, path string) error {
	snapshot, err := ReadSnapshotFile(path)
	if err != nil {
		return err
	}
	_, err = w.syncer.SyncAuthDataToBackend(ctx, w.accountID, snapshot)
	return err
}
