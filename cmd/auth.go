package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/session"
	"github.com/desertthunder/mpsync/internal/shared"
)

func (r *Runner) authSyncer() (*session.AuthSyncer, error) {
	if err := r.requireBackend(); err != nil {
		return nil, err
	}
	return session.NewAuthSyncer(session.NewSnapshotStore(r.accounts, r.logger), r.backend, r.logger), nil
}

// AuthSync pushes the changes between an account's stored session and its current one to
// the backend. The current session is read from --file, or captured from the account's
// partition.
func (r *Runner) AuthSync(ctx context.Context, cmd *cli.Command) error {
	account, err := r.accounts.Get(cmd.String("account"))
	if err != nil {
		return err
	}
	syncer, err := r.authSyncer()
	if err != nil {
		return err
	}

	var snapshot models.AuthSnapshot
	if path := cmd.String("file"); path != "" {
		snapshot, err = session.ReadSnapshotFile(path)
	} else {
		snapshot, err = r.sessions.Capture(account.PartitionKey(), r.config.Sync.Domain)
	}
	if err != nil {
		return err
	}

	outcome, err := syncer.Sync(ctx, account.ID(), snapshot)
	if err != nil {
		return fmt.Errorf("auth sync failed: %w", err)
	}
	if outcome == session.SyncSkipped {
		return r.writePlain("No auth changes for %s\n", account.Name())
	}
	return r.writePlain("✓ Synced auth changes for %s\n", account.Name())
}

// AuthWatch syncs an account whenever its snapshot file changes, until interrupted.
func (r *Runner) AuthWatch(ctx context.Context, cmd *cli.Command) error {
	account, err := r.accounts.Get(cmd.String("account"))
	if err != nil {
		return err
	}
	path := cmd.String("file")
	if path == "" {
		return fmt.Errorf("%w: --file", shared.ErrMissingArgument)
	}
	syncer, err := r.authSyncer()
	if err != nil {
		return err
	}

	delay := shared.Millis(r.config.Sync.DebounceMS)
	if ms := cmd.Int("debounce"); ms > 0 {
		delay = shared.Millis(ms)
	}
	scheduler := session.NewSyncScheduler(delay, r.logger)
	defer scheduler.CancelAll()

	r.writePlain("Watching %s for %s (Ctrl+C to stop)\n", path, account.Name())
	return session.NewSnapshotWatcher(path, account.ID(), syncer, scheduler, r.logger).Run(ctx)
}
