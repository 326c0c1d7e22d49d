package tasks

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
)

// TargetAccount is an account a draft is copied to.
type TargetAccount struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// SyncOutcome is the result of copying a draft to one account.
type SyncOutcome struct {
	Success   bool   `json:"success"`
	AccountID string `json:"accountId"`
	AppMsgID  string `json:"appmsgid,omitempty"`
	Error     string `json:"error,omitempty"`
}

func draftParams(detail *services.DraftDetail) (url.Values, error) {
	if detail == nil || len(detail.AppMsgInfo) == 0 {
		return nil, fmt.Errorf("%w: draft detail is empty", shared.ErrInvalidInput)
	}
	params, err := services.ConvertAppMsgInfoToParams(detail.AppMsgInfo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return params, nil
}

// SyncDraftToAccount creates a copy of detail in the target account's draft box and
// returns the new draft id. Failures are reported in the outcome.
func (b *Batcher) SyncDraftToAccount(ctx context.Context, detail *services.DraftDetail, target TargetAccount, requestID string) SyncOutcome {
	params, err := draftParams(detail)
	if err != nil {
		return SyncOutcome{AccountID: target.ID, Error: err.Error()}
	}
	id, err := b.platform.OperateDraft(ctx, target.ID, services.DraftCreate, params, requestID)
	if err != nil {
		return SyncOutcome{AccountID: target.ID, Error: err.Error()}
	}
	return SyncOutcome{Success: true, AccountID: target.ID, AppMsgID: id}
}

// SyncDraftToAccounts copies detail to each target in order without tracking a task.
func (b *Batcher) SyncDraftToAccounts(ctx context.Context, detail *services.DraftDetail, targets []TargetAccount, opts Options) []SyncOutcome {
	delay := opts.delay(b.delays.Sync)
	pacer := newPacer(delay)
	out := make([]SyncOutcome, 0, len(targets))
	for i, t := range targets {
		if i > 0 {
			if err := pacer.Wait(ctx); err != nil {
				break
			}
		}
		sendProgress(opts.Progress, itemUpdate(SyncDrafts, i, len(targets), fmt.Sprintf("正在同步到《%s》", t.Name), Item{Key: t.ID, Label: t.Name}))
		res := b.SyncDraftToAccount(ctx, detail, t, "")
		out = append(out, res)
		sendProgress(opts.Progress, itemUpdate(SyncDrafts, i+1, len(targets), syncLabel(res, t.Name), Item{Key: t.ID, Label: t.Name}))
	}
	return out
}

func syncLabel(res SyncOutcome, name string) string {
	if res.Success {
		return fmt.Sprintf("已同步到《%s》", name)
	}
	return fmt.Sprintf("同步到《%s》失败", name)
}

// RunSyncBatch copies one draft to several accounts as a tracked task.
func (b *Batcher) RunSyncBatch(ctx context.Context, detail *services.DraftDetail, targets []TargetAccount, opts Options) (*models.BatchResult, error) {
	params, err := draftParams(detail)
	if err != nil {
		return nil, err
	}
	return b.runner.Run(ctx, syncJob(targets, opts, b.delays.Sync, func(ctx context.Context, i int, step Step) error {
		_, err := b.platform.OperateDraft(ctx, targets[i].ID, services.DraftCreate, params, step.RequestID)
		return err
	}))
}

func syncJob(targets []TargetAccount, opts Options, delay time.Duration, do func(context.Context, int, Step) error) Job {
	items := make([]Item, len(targets))
	for i, t := range targets {
		items[i] = Item{Key: t.ID, Label: t.Name}
	}
	return Job{
		Name:     opts.name("同步草稿"),
		Type:     models.TaskTypeSync,
		Detail:   "准备同步草稿...",
		Items:    items,
		Delay:    opts.delay(delay),
		Progress: opts.Progress,
		Do: func(ctx context.Context, _ Item, step Step) error {
			return do(ctx, step.Index, step)
		},
		Running: func(it Item) string { return fmt.Sprintf("正在同步到《%s》", it.Label) },
		Done:    func(it Item) string { return fmt.Sprintf("已同步到《%s》", it.Label) },
		Failed:  func(it Item) string { return fmt.Sprintf("同步到《%s》失败", it.Label) },
		Summary: func(r *models.BatchResult) string {
			return fmt.Sprintf("同步失败 %d/%d", r.FailedCount, r.Total)
		},
	}
}
