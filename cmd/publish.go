package main

import (
	"context"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
	"github.com/desertthunder/mpsync/internal/tasks"
)

const skipNeedsQRCode = "需要扫码验证"

// PublishPlan is the input of "publish run". Params and decisions are merged over the
// defaults of a new publish state, so a plan only names what it changes.
type PublishPlan struct {
	Source struct {
		AccountID string `json:"accountId"`
		AppMsgID  string `json:"appmsgid"`
	} `json:"source"`
	Targets       []string                      `json:"targets"`
	AllAccounts   bool                          `json:"allAccounts"`
	IncludeSource bool                          `json:"includeSource"`
	Params        stdjson.RawMessage            `json:"params,omitempty"`
	Decisions     map[string]stdjson.RawMessage `json:"decisions,omitempty"`
}

// LoadPublishPlan reads a plan file.
func LoadPublishPlan(path string) (*PublishPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	var plan PublishPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("%w: plan %s: %v", shared.ErrInvalidInput, path, err)
	}
	if plan.Source.AccountID == "" || plan.Source.AppMsgID == "" {
		return nil, fmt.Errorf("%w: plan source needs accountId and appmsgid", shared.ErrMissingArgument)
	}
	return &plan, nil
}

// buildPublishState resolves a plan into a publish state with the source draft loaded.
func (r *Runner) buildPublishState(ctx context.Context, plan *PublishPlan) (*tasks.BatchPublishState, error) {
	source, err := r.accounts.Get(plan.Source.AccountID)
	if err != nil {
		return nil, err
	}
	detail, err := r.gateway.GetDraft(ctx, source.ID(), plan.Source.AppMsgID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read source draft: %w", err)
	}

	targets, err := r.targetAccounts(plan.Targets, plan.AllAccounts, source.ID())
	if err != nil {
		return nil, err
	}
	if plan.IncludeSource {
		targets = append([]tasks.TargetAccount{{ID: source.ID(), Name: source.Name(), Avatar: source.Avatar()}}, targets...)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: plan has no target accounts", shared.ErrMissingArgument)
	}

	state := tasks.NewBatchPublishState(tasks.SourceDraft{
		AccountID: source.ID(),
		AppMsgID:  plan.Source.AppMsgID,
		Title:     detail.Title(),
		Detail:    detail,
	}, targets)

	if len(plan.Params) > 0 {
		if err := json.Unmarshal(plan.Params, &state.Params); err != nil {
			return nil, fmt.Errorf("%w: plan params: %v", shared.ErrInvalidInput, err)
		}
	}
	for _, t := range state.Targets {
		if raw, ok := plan.Decisions[t.ID]; ok {
			if err := json.Unmarshal(raw, &t.Decisions); err != nil {
				return nil, fmt.Errorf("%w: decisions for %s: %v", shared.ErrInvalidInput, t.ID, err)
			}
		}
	}
	return state, nil
}

// PublishRun executes a publish plan: copyright check on the source, sync to every target,
// mass-send check, QR confirmation where required, then publish.
func (r *Runner) PublishRun(ctx context.Context, cmd *cli.Command) error {
	plan, err := LoadPublishPlan(cmd.String("plan"))
	if err != nil {
		return err
	}
	state, err := r.buildPublishState(ctx, plan)
	if err != nil {
		return err
	}

	qrcode := cmd.Bool("qrcode")
	result, runErr := r.runBatch(ctx, cmd, func(ctx context.Context, opts tasks.Options) (*models.BatchResult, error) {
		return r.publishWorkflow(ctx, state, qrcode, opts)
	})

	if path := cmd.String("state"); path != "" {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}
		r.logger.Info("publish state saved", "path", path)
	}

	if runErr != nil {
		return runErr
	}
	r.writePublishSummary(state)
	return r.writeResult(cmd, "批量发布", result)
}

func (r *Runner) publishWorkflow(ctx context.Context, state *tasks.BatchPublishState, qrcode bool, opts tasks.Options) (*models.BatchResult, error) {
	if _, err := r.batcher.CheckSourceCopyright(ctx, state, func(p services.CopyrightProgress) {
		r.logger.Info("copyright check pending", "retry", p.Retry, "max", p.MaxRetries)
	}); err != nil {
		return nil, fmt.Errorf("原创校验失败: %w", err)
	}

	if res, err := r.batcher.RunPublishSync(ctx, state, opts); err != nil {
		return res, err
	} else if res.Cancelled {
		return res, nil
	}

	if res, err := r.batcher.RunMasssendCheck(ctx, state.Targets, opts); err != nil {
		return res, err
	} else if res.Cancelled {
		return res, nil
	}

	for _, t := range state.Targets {
		if !t.Check.NeedScanQRCode || t.Decisions.QRCodeValidated || t.Decisions.SkipReason != "" || t.SyncStatus != tasks.StepDone {
			continue
		}
		if !qrcode {
			t.Decisions.SkipReason = skipNeedsQRCode
			continue
		}
		res, _, err := r.confirmQRCode(ctx, t.ID, t.SyncedAppMsgID, state.Params.HasNotify, true, t, opts)
		if err != nil || !res.Success {
			r.logger.Warn("QR confirmation failed", "account", t.ID, "status", res.Status, "error", err)
			t.Decisions.SkipReason = skipNeedsQRCode
		}
	}

	res, err := r.batcher.RunPublishBatch(ctx, state, opts)
	if errors.Is(err, shared.ErrNoPublishableAccounts) {
		r.logger.Warn("nothing to publish")
		return res, nil
	}
	return res, err
}

func (r *Runner) writePublishSummary(state *tasks.BatchPublishState) {
	r.writePlainHeader(fmt.Sprintf("《%s》", state.Source.Title))
	for _, t := range state.Targets {
		line := fmt.Sprintf("%-20s sync=%s check=%s publish=%s", t.Name, t.SyncStatus, t.CheckStatus, t.PublishStatus)
		if t.Decisions.SkipReason != "" {
			line += " skip=" + t.Decisions.SkipReason
		}
		if msg := firstNonEmpty(t.PublishError, t.SyncError); msg != "" {
			line += " error=" + msg
		}
		r.writePlain("%s\n", line)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// PublishCheck reads the mass-send state of a draft on each account. Arguments are
// account=appmsgid pairs.
func (r *Runner) PublishCheck(ctx context.Context, cmd *cli.Command) error {
	pairs := cmd.StringSlice("draft")
	if len(pairs) == 0 {
		return fmt.Errorf("%w: pass --draft account=appmsgid", shared.ErrMissingArgument)
	}

	targets := make([]*tasks.PublishTarget, 0, len(pairs))
	for _, pair := range pairs {
		id, appMsgID, ok := cutPair(pair)
		if !ok {
			return fmt.Errorf("%w: %q is not account=appmsgid", shared.ErrInvalidArgument, pair)
		}
		account, err := r.accounts.Get(id)
		if err != nil {
			return err
		}
		targets = append(targets, &tasks.PublishTarget{
			ID:             account.ID(),
			Name:           account.Name(),
			SyncStatus:     tasks.StepDone,
			SyncedAppMsgID: appMsgID,
			CheckStatus:    tasks.StepPending,
		})
	}

	result, err := r.runBatch(ctx, cmd, func(ctx context.Context, opts tasks.Options) (*models.BatchResult, error) {
		return r.batcher.RunMasssendCheck(ctx, targets, opts)
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(targets, true)
	}
	r.writePlainHeader("Mass-send check")
	for _, t := range targets {
		qr := "no"
		if t.Check.NeedScanQRCode {
			qr = "yes"
		}
		r.writePlain("%-20s %-8s qrcode=%s groups=%d quota=%d\n", t.Name, t.CheckStatus, qr, len(t.Check.ContactGroups), len(t.Check.QuotaItems))
	}
	return r.writeResult(cmd, "群发检测", result)
}

func cutPair(s string) (string, string, bool) {
	id, appMsgID, ok := strings.Cut(s, "=")
	return id, appMsgID, ok && id != "" && appMsgID != ""
}

// PublishRegions prints the children of a region for group-notify targeting. Region 0 is the
// list of countries.
func (r *Runner) PublishRegions(ctx context.Context, cmd *cli.Command) error {
	account, err := r.accounts.Get(cmd.String("account"))
	if err != nil {
		return err
	}
	regionID := 0
	if arg := cmd.StringArg("region"); arg != "" {
		if regionID, err = strconv.Atoi(arg); err != nil {
			return fmt.Errorf("%w: region %q", shared.ErrInvalidArgument, arg)
		}
	}
	regions, err := r.gateway.GetRegions(ctx, account.ID(), regionID)
	if err != nil {
		return err
	}
	return r.writeJSON(regions, true)
}
