package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// AuthPusher records an incremental auth change in the account store.
type AuthPusher interface {
	SyncAuth(ctx context.Context, accountID string, diff models.AuthDiff) error
}

// AuthSyncer keeps the account store's copy of a session in step with the browser.
type AuthSyncer struct {
	snapshots *SnapshotStore
	pusher    AuthPusher
	logger    *log.Logger

	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// SyncOutcome says what a sync did.
type SyncOutcome int

const (
	SyncFailed SyncOutcome = iota
	SyncSkipped
	SyncPushed
)

func (o SyncOutcome) String() string {
	switch o {
	case SyncSkipped:
		return "skipped"
	case SyncPushed:
		return "pushed"
	default:
		return "failed"
	}
}

// NewAuthSyncer creates an AuthSyncer. A nil pusher commits baselines locally only.
func NewAuthSyncer(snapshots *SnapshotStore, pusher AuthPusher, logger *log.Logger) *AuthSyncer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &AuthSyncer{snapshots: snapshots, pusher: pusher, logger: logger, locks: make(map[string]*semaphore.Weighted)}
}

func (s *AuthSyncer) lock(accountID string) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[accountID]
	if !ok {
		l = semaphore.NewWeighted(1)
		s.locks[accountID] = l
	}
	return l
}

// SyncAuthDataToBackend diffs current against the stored baseline and, when anything changed,
// pushes the diff and commits current as the new baseline. The baseline is left untouched when
// the push fails.
//
// The boolean reports whether the account is in sync afterwards.
func (s *AuthSyncer) SyncAuthDataToBackend(ctx context.Context, accountID string, current models.AuthSnapshot) (bool, error) {
	outcome, err := s.Sync(ctx, accountID, current)
	return outcome != SyncFailed, err
}

// Sync is [AuthSyncer.SyncAuthDataToBackend] reporting whether a push happened.
//
// Calls for one account run one at a time, so each diffs its own snapshot against the
// baseline the previous call committed.
func (s *AuthSyncer) Sync(ctx context.Context, accountID string, current models.AuthSnapshot) (SyncOutcome, error) {
	l := s.lock(accountID)
	if err := l.Acquire(ctx, 1); err != nil {
		return SyncFailed, err
	}
	defer l.Release(1)
	return s.sync(ctx, accountID, current)
}

func (s *AuthSyncer) sync(ctx context.Context, accountID string, current models.AuthSnapshot) (SyncOutcome, error) {
	baseline := s.snapshots.GetBaseline(accountID)
	diff := DiffAuthData(current, baseline)

	if !HasChanges(diff) {
		s.logger.Info("No auth changes, skipping sync", "account", accountID)
		return SyncSkipped, nil
	}

	s.logger.Info("Syncing auth diff",
		"account", accountID,
		"cookies_added", len(diff.Cookies.Added),
		"cookies_modified", len(diff.Cookies.Modified),
		"cookies_removed", len(diff.Cookies.Removed),
		"storage_added", len(diff.LocalStorage.Added),
		"storage_modified", len(diff.LocalStorage.Modified),
		"storage_removed", len(diff.LocalStorage.Removed),
	)

	if s.pusher != nil {
		if err := s.pusher.SyncAuth(ctx, accountID, diff); err != nil {
			s.logger.Warn("Auth sync failed", "account", accountID, "error", err)
			return SyncFailed, fmt.Errorf("sync auth for %s: %w", accountID, err)
		}
	}

	if err := s.snapshots.Commit(accountID, current); err != nil {
		return SyncFailed, err
	}
	s.logger.Info("Auth sync complete", "account", accountID)
	return SyncPushed, nil
}
