package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
)

// StepStatus is the per-target state of one publish stage.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// CheckResult is what the mass-send page reported for a target's synced draft.
type CheckResult struct {
	QuotaItems     []json.RawMessage `json:"quotaInfo"`
	NeedScanQRCode bool              `json:"needScanQrcode"`
	OperationSeq   string            `json:"operationSeq"`
	ContactGroups  []json.RawMessage `json:"contactGroupList"`
}

// Decisions are the user's answers to issues found while checking a target.
//
// A non-empty SkipReason excludes the target from publishing. UseNotify false publishes
// without notifying followers.
type Decisions struct {
	SkipReason      string   `json:"skipReason,omitempty"`
	UseNotify       bool     `json:"useNotify"`
	GuideWords      []string `json:"guideWords,omitempty"`
	QRCodeValidated bool     `json:"qrcodeValidated"`
	QRCodeUUID      string   `json:"qrcodeUuid,omitempty"`
}

// PublishTarget tracks one account through sync, check and publish.
type PublishTarget struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`

	SyncStatus     StepStatus `json:"syncStatus"`
	SyncedAppMsgID string     `json:"syncedAppmsgid,omitempty"`
	SyncError      string     `json:"syncError,omitempty"`

	CheckStatus StepStatus  `json:"checkStatus"`
	Check       CheckResult `json:"checkResult"`

	Decisions Decisions `json:"decisions"`

	PublishStatus StepStatus `json:"publishStatus"`
	PublishError  string     `json:"publishError,omitempty"`
}

// GroupNotify restricts a notified publish to an audience segment.
type GroupNotify struct {
	Enabled  bool   `json:"enabled"`
	GroupID  int    `json:"groupid"`
	Sex      int    `json:"sex"`
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
}

// GlobalPublishParams apply to every target.
type GlobalPublishParams struct {
	HasNotify       bool        `json:"hasNotify"`
	IsFreePublish   bool        `json:"isFreePublish"`
	SendTime        int64       `json:"sendTime"`
	AppmsgItemCount int         `json:"appmsgItemCount"`
	GuideWords      []string    `json:"guideWords,omitempty"`
	GroupNotify     GroupNotify `json:"groupNotify"`
}

// SourceDraft is the draft being published everywhere.
type SourceDraft struct {
	AccountID string                    `json:"accountId"`
	AppMsgID  string                    `json:"appmsgid"`
	Title     string                    `json:"title"`
	Detail    *services.DraftDetail     `json:"-"`
	Copyright *services.CopyrightResult `json:"copyrightResult,omitempty"`
}

// BatchPublishState carries a publish run across its stages.
type BatchPublishState struct {
	Source  SourceDraft         `json:"sourceDraft"`
	Targets []*PublishTarget    `json:"targetAccounts"`
	Params  GlobalPublishParams `json:"publishParams"`
}

// NewBatchPublishState initializes every target as pending with notification on, and the
// global params as an immediate notified publish to all followers.
func NewBatchPublishState(source SourceDraft, accounts []TargetAccount) *BatchPublishState {
	targets := make([]*PublishTarget, len(accounts))
	for i, a := range accounts {
		targets[i] = &PublishTarget{
			ID:            a.ID,
			Name:          a.Name,
			Avatar:        a.Avatar,
			SyncStatus:    StepPending,
			CheckStatus:   StepPending,
			Check:         CheckResult{ContactGroups: []json.RawMessage{}},
			Decisions:     Decisions{UseNotify: true},
			PublishStatus: StepPending,
		}
	}
	return &BatchPublishState{
		Source:  source,
		Targets: targets,
		Params: GlobalPublishParams{
			HasNotify:       true,
			AppmsgItemCount: 1,
			GroupNotify:     GroupNotify{GroupID: -1, Sex: -1},
		},
	}
}

// BuildPublishParams builds the publish call for one target.
//
// When the source matched original content every target sends reprint info, but only the
// source account may send the copyright list, since its article urls belong to the source.
func BuildPublishParams(t *PublishTarget, global GlobalPublishParams, copyright *services.CopyrightResult, isSource bool) services.PublishParams {
	count := global.AppmsgItemCount
	if count <= 0 {
		count = 1
	}
	p := services.PublishParams{
		AppMsgID:        t.SyncedAppMsgID,
		SendTime:        global.SendTime,
		HasNotify:       t.Decisions.UseNotify && global.HasNotify,
		IsFreePublish:   !t.Decisions.UseNotify || global.IsFreePublish,
		OperationSeq:    t.Check.OperationSeq,
		AppmsgItemCount: count,
		GroupID:         -1,
		Sex:             -1,
	}

	if copyright != nil && copyright.Copyright == 1 {
		if isSource {
			p.ListRaw = copyright.ListRaw
		}
		items := make([]services.ReprintItem, len(copyright.List))
		for i := range copyright.List {
			items[i] = services.ReprintItem{
				Idx:         i + 1,
				ReprintType: "EN_REPRINT_TYPE_SHARE",
				GuideWords:  guideWord(t.Decisions.GuideWords, global.GuideWords, i),
			}
		}
		p.ReprintInfo = &services.ReprintInfo{ItemList: items}
	}

	if t.Decisions.QRCodeUUID != "" {
		p.Code = t.Decisions.QRCodeUUID
	}

	if g := global.GroupNotify; g.Enabled {
		p.GroupID, p.Sex = g.GroupID, g.Sex
		p.Country, p.Province, p.City = g.Country, g.Province, g.City
	}
	return p
}

func guideWord(own, global []string, i int) string {
	if i < len(own) && own[i] != "" {
		return own[i]
	}
	if i < len(global) {
		return global[i]
	}
	return ""
}

func (s *BatchPublishState) isSource(t *PublishTarget) bool {
	return s.Source.AccountID != "" && t.ID == s.Source.AccountID
}

func targetItems(targets []*PublishTarget) []Item {
	items := make([]Item, len(targets))
	for i, t := range targets {
		items[i] = Item{Key: t.ID, Label: t.Name}
	}
	return items
}

// RunPublishSync copies the source draft to every target, recording the new draft ids.
// The source account keeps its own draft.
func (b *Batcher) RunPublishSync(ctx context.Context, state *BatchPublishState, opts Options) (*models.BatchResult, error) {
	params, err := draftParams(state.Source.Detail)
	if err != nil {
		return nil, err
	}
	accounts := make([]TargetAccount, len(state.Targets))
	for i, t := range state.Targets {
		accounts[i] = TargetAccount{ID: t.ID, Name: t.Name}
	}

	return b.runner.Run(ctx, syncJob(accounts, opts, b.delays.Sync, func(ctx context.Context, i int, step Step) error {
		t := state.Targets[i]
		t.SyncStatus = StepRunning
		if state.isSource(t) {
			t.SyncStatus, t.SyncedAppMsgID = StepDone, state.Source.AppMsgID
			return nil
		}
		id, err := b.platform.OperateDraft(ctx, t.ID, services.DraftCreate, params, step.RequestID)
		if err != nil {
			t.SyncStatus, t.SyncError = StepFailed, err.Error()
			return err
		}
		t.SyncStatus, t.SyncedAppMsgID, t.SyncError = StepDone, id, ""
		return nil
	}))
}

// RunMasssendCheck reads the mass-send page of every target's synced draft. Targets that
// were never synced fail with "未同步".
func (b *Batcher) RunMasssendCheck(ctx context.Context, targets []*PublishTarget, opts Options) (*models.BatchResult, error) {
	return b.runner.Run(ctx, Job{
		Name:     opts.name("群发检测"),
		Type:     models.TaskTypeCheck,
		Detail:   "准备检测...",
		Items:    targetItems(targets),
		Delay:    opts.delay(b.delays.Check),
		Progress: opts.Progress,
		Do: func(ctx context.Context, _ Item, step Step) error {
			t := targets[step.Index]
			if t.SyncedAppMsgID == "" {
				t.CheckStatus = StepFailed
				return errors.New("未同步")
			}
			t.CheckStatus = StepRunning
			info, err := b.platform.GetMasssendInfo(ctx, t.ID, t.SyncedAppMsgID, step.RequestID)
			if err != nil {
				t.CheckStatus = StepFailed
				return err
			}
			t.CheckStatus = StepDone
			t.Check = CheckResult{
				QuotaItems:     info.QuotaItems,
				NeedScanQRCode: info.NeedScanQRCode,
				OperationSeq:   info.OperationSeq,
				ContactGroups:  info.ContactGroups,
			}
			return nil
		},
		Running: func(it Item) string { return fmt.Sprintf("正在检测《%s》", it.Label) },
		Done:    func(it Item) string { return fmt.Sprintf("已检测《%s》", it.Label) },
		Failed:  func(it Item) string { return fmt.Sprintf("检测《%s》失败", it.Label) },
		Summary: func(r *models.BatchResult) string {
			return fmt.Sprintf("检测失败 %d/%d", r.FailedCount, r.Total)
		},
	})
}

// CheckSourceCopyright runs the originality check on the source draft and stores the
// result on state.
func (b *Batcher) CheckSourceCopyright(ctx context.Context, state *BatchPublishState, onProgress func(services.CopyrightProgress)) (*services.CopyrightResult, error) {
	if state.Source.AccountID == "" || state.Source.AppMsgID == "" {
		return nil, fmt.Errorf("%w: source account and draft are required", shared.ErrMissingArgument)
	}
	res, err := b.platform.CheckCopyright(ctx, state.Source.AccountID, state.Source.AppMsgID, "", onProgress)
	if err != nil {
		return nil, err
	}
	state.Source.Copyright = res
	return res, nil
}

// Publishable returns the targets that synced and were not skipped.
func (s *BatchPublishState) Publishable() []*PublishTarget {
	var out []*PublishTarget
	for _, t := range s.Targets {
		if t.Decisions.SkipReason == "" && t.SyncStatus == StepDone {
			out = append(out, t)
			continue
		}
		if t.Decisions.SkipReason != "" {
			t.PublishStatus = StepSkipped
		}
	}
	return out
}

// RunPublishBatch publishes the synced draft on every publishable target.
//
// With nothing to publish it returns an empty result and [shared.ErrNoPublishableAccounts]
// without creating a task.
func (b *Batcher) RunPublishBatch(ctx context.Context, state *BatchPublishState, opts Options) (*models.BatchResult, error) {
	targets := state.Publishable()
	if len(targets) == 0 {
		return &models.BatchResult{FailedItems: []models.FailedItem{}}, shared.ErrNoPublishableAccounts
	}

	return b.runner.Run(ctx, Job{
		Name:     opts.name("批量发布"),
		Type:     models.TaskTypePublish,
		Detail:   "准备发布...",
		Items:    targetItems(targets),
		Delay:    opts.delay(b.delays.Publish),
		Progress: opts.Progress,
		Do: func(ctx context.Context, _ Item, step Step) error {
			t := targets[step.Index]
			t.PublishStatus = StepRunning
			p := BuildPublishParams(t, state.Params, state.Source.Copyright, state.isSource(t))
			res, err := b.platform.Publish(ctx, t.ID, p, step.RequestID)
			if err == nil && !res.Success {
				msg := res.Message
				if msg == "" {
					msg = "发布失败"
				}
				err = &services.BusinessError{Code: res.Code, Message: msg}
			}
			if err != nil {
				t.PublishStatus, t.PublishError = StepFailed, err.Error()
				return err
			}
			t.PublishStatus, t.PublishError = StepDone, ""
			return nil
		},
		Running: func(it Item) string { return fmt.Sprintf("正在发布到《%s》", it.Label) },
		Done:    func(it Item) string { return fmt.Sprintf("已发布到《%s》", it.Label) },
		Failed:  func(it Item) string { return fmt.Sprintf("发布到《%s》失败", it.Label) },
		Summary: func(*models.BatchResult) string { return "全部发布失败" },
	})
}
