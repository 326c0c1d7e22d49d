package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
	"github.com/desertthunder/mpsync/internal/tasks"
)

const draftPageSize = 20

// DraftsList prints one page of an account's draft box.
func (r *Runner) DraftsList(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}
	list, err := r.gateway.ListDrafts(ctx, account.ID(), services.DraftQuery{
		Begin: cmd.Int("begin"),
		Count: cmd.Int("count"),
		Query: cmd.String("query"),
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Drafts of %s (%d total)", account.Name(), list.Total))
	for _, item := range list.Items {
		r.writePlain("%-14s %s  %s\n", item.AppID, item.Updated().Format("2006-01-02 15:04"), item.Title())
	}
	return nil
}

// DraftsShow prints a draft's full app_msg_info.
func (r *Runner) DraftsShow(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}
	appMsgID := cmd.StringArg("appmsgid")
	if appMsgID == "" {
		return fmt.Errorf("%w: draft id", shared.ErrMissingArgument)
	}

	detail, err := r.gateway.GetDraft(ctx, account.ID(), appMsgID, "")
	if err != nil {
		return err
	}
	if cmd.Bool("pretty") {
		var v any
		if err := json.Unmarshal(detail.AppMsgInfo, &v); err == nil {
			return r.writeJSON(v, true)
		}
	}
	return r.writePlain("%s\n", detail.AppMsgInfo)
}

// DraftsDelete deletes drafts by id, or every draft matching --query.
func (r *Runner) DraftsDelete(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}

	refs := tasks.DraftRefsFromIDs(cmd.StringSlice("id"))
	if query := cmd.String("query"); query != "" {
		matched, err := r.matchDrafts(ctx, account.ID(), query)
		if err != nil {
			return err
		}
		refs = append(refs, matched...)
	}
	if len(refs) == 0 {
		return fmt.Errorf("%w: pass --id or --query", shared.ErrMissingArgument)
	}

	if !cmd.Bool("json") {
		r.writePlain("Deleting %d drafts from %s\n", len(refs), account.Name())
	}

	result, err := r.runBatch(ctx, cmd, func(ctx context.Context, opts tasks.Options) (*models.BatchResult, error) {
		return r.batcher.RunDeleteBatch(ctx, account.ID(), refs, opts)
	})
	if err != nil {
		return err
	}
	return r.writeResult(cmd, "批量删除草稿", result)
}

// matchDrafts pages through the draft search for query.
func (r *Runner) matchDrafts(ctx context.Context, accountID, query string) ([]tasks.DraftRef, error) {
	var refs []tasks.DraftRef
	for begin := 0; ; begin += draftPageSize {
		page, err := r.gateway.ListDrafts(ctx, accountID, services.DraftQuery{Begin: begin, Count: draftPageSize, Query: query})
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			refs = append(refs, tasks.DraftRef{AppMsgID: item.AppID.String(), Title: item.Title()})
		}
		if len(page.Items) < draftPageSize || begin+len(page.Items) >= page.Total {
			return refs, nil
		}
	}
}

// DraftsSync copies one draft to other accounts.
func (r *Runner) DraftsSync(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}
	appMsgID := cmd.StringArg("appmsgid")
	if appMsgID == "" {
		return fmt.Errorf("%w: draft id", shared.ErrMissingArgument)
	}

	targets, err := r.targetAccounts(cmd.StringSlice("to"), cmd.Bool("all"), account.ID())
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("%w: pass --to or --all", shared.ErrMissingArgument)
	}

	detail, err := r.gateway.GetDraft(ctx, account.ID(), appMsgID, "")
	if err != nil {
		return fmt.Errorf("failed to read source draft: %w", err)
	}

	result, err := r.runBatch(ctx, cmd, func(ctx context.Context, opts tasks.Options) (*models.BatchResult, error) {
		opts.TaskName = fmt.Sprintf("同步《%s》", detail.Title())
		return r.batcher.RunSyncBatch(ctx, detail, targets, opts)
	})
	if err != nil {
		return err
	}
	return r.writeResult(cmd, "同步草稿", result)
}

// targetAccounts resolves ids to batch targets. With all, every active account except
// exclude is used.
func (r *Runner) targetAccounts(ids []string, all bool, exclude string) ([]tasks.TargetAccount, error) {
	var accounts []*models.Account
	if all {
		list, err := r.accounts.List(map[string]any{"expired": false})
		if err != nil {
			return nil, err
		}
		accounts = list
	} else {
		for _, id := range ids {
			a, err := r.accounts.Get(id)
			if err != nil {
				return nil, err
			}
			accounts = append(accounts, a)
		}
	}

	targets := make([]tasks.TargetAccount, 0, len(accounts))
	for _, a := range accounts {
		if a.ID() == exclude && all {
			continue
		}
		if slices.ContainsFunc(targets, func(t tasks.TargetAccount) bool { return t.ID == a.ID() }) {
			continue
		}
		targets = append(targets, tasks.TargetAccount{ID: a.ID(), Name: a.Name(), Avatar: a.Avatar()})
	}
	return targets, nil
}
