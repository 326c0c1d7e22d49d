package tasks

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
)

// mockPlatform records calls and answers from per-key tables. Hooks run before the answer
// is returned and may mutate the registry to simulate user actions mid-run.
type mockPlatform struct {
	mu sync.Mutex

	deleteErrs map[string]error
	deleted    []string
	requestIDs []string
	onDelete   func(appMsgID string, call int) error

	operateErrs map[string]error
	operated    []string
	operateIDs  map[string]string
	onOperate   func(accountID string)

	masssend    map[string]*services.MasssendInfo
	masssendErr map[string]error

	publishResults map[string]*services.PublishResult
	publishErrs    map[string]error
	published      map[string]services.PublishParams

	copyright    *services.CopyrightResult
	copyrightErr error

	qrResult services.QRPollResult
	qrErr    error
	qrOpts   services.QRPollOptions
}

func newMockPlatform() *mockPlatform {
	return &mockPlatform{
		deleteErrs:     map[string]error{},
		operateErrs:    map[string]error{},
		operateIDs:     map[string]string{},
		masssend:       map[string]*services.MasssendInfo{},
		masssendErr:    map[string]error{},
		publishResults: map[string]*services.PublishResult{},
		publishErrs:    map[string]error{},
		published:      map[string]services.PublishParams{},
	}
}

func (m *mockPlatform) ListDrafts(context.Context, string, services.DraftQuery) (*services.DraftList, error) {
	return &services.DraftList{}, nil
}

func (m *mockPlatform) GetDraft(_ context.Context, _, appMsgID, _ string) (*services.DraftDetail, error) {
	return &services.DraftDetail{AppMsgID: appMsgID, AppMsgInfo: []byte(sampleDraftInfo)}, nil
}

func (m *mockPlatform) DeleteDraft(_ context.Context, _, appMsgID, requestID string) (string, error) {
	m.mu.Lock()
	m.deleted = append(m.deleted, appMsgID)
	m.requestIDs = append(m.requestIDs, requestID)
	call := 0
	for _, id := range m.deleted {
		if id == appMsgID {
			call++
		}
	}
	hook := m.onDelete
	err := m.deleteErrs[appMsgID]
	m.mu.Unlock()

	if hook != nil {
		if herr := hook(appMsgID, call); herr != nil {
			return "", herr
		}
	}
	if err != nil {
		return "", err
	}
	return appMsgID, nil
}

func (m *mockPlatform) OperateDraft(_ context.Context, accountID string, _ services.DraftOp, _ url.Values, _ string) (string, error) {
	m.mu.Lock()
	m.operated = append(m.operated, accountID)
	hook := m.onOperate
	err := m.operateErrs[accountID]
	id := m.operateIDs[accountID]
	m.mu.Unlock()

	if hook != nil {
		hook(accountID)
	}
	if err != nil {
		return "", err
	}
	if id == "" {
		id = "new-" + accountID
	}
	return id, nil
}

func (m *mockPlatform) GetMasssendInfo(_ context.Context, accountID, _, _ string) (*services.MasssendInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.masssendErr[accountID]; err != nil {
		return nil, err
	}
	if info, ok := m.masssend[accountID]; ok {
		return info, nil
	}
	return &services.MasssendInfo{OperationSeq: "seq-" + accountID}, nil
}

func (m *mockPlatform) CheckCopyright(context.Context, string, string, string, func(services.CopyrightProgress)) (*services.CopyrightResult, error) {
	return m.copyright, m.copyrightErr
}

func (m *mockPlatform) Publish(_ context.Context, accountID string, p services.PublishParams, _ string) (*services.PublishResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published[accountID] = p
	if err := m.publishErrs[accountID]; err != nil {
		return nil, err
	}
	if res, ok := m.publishResults[accountID]; ok {
		return res, nil
	}
	return &services.PublishResult{Success: true}, nil
}

func (m *mockPlatform) PollQRStatus(_ context.Context, _ string, opts services.QRPollOptions) (services.QRPollResult, error) {
	m.mu.Lock()
	m.qrOpts = opts
	m.mu.Unlock()
	return m.qrResult, m.qrErr
}

func (m *mockPlatform) Transport() services.Transport { return nil }

type fakeRecorder struct {
	mu    sync.Mutex
	tasks []models.Task
	runs  []models.BatchResult
}

func (f *fakeRecorder) RecordRun(_ context.Context, task models.Task, result models.BatchResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	f.runs = append(f.runs, result)
	return nil
}

// newTestBatcher builds a batcher without pacing and with a fast pause poll.
func newTestBatcher(p services.Platform) (*Batcher, *Registry, *fakeAborter) {
	aborter := &fakeAborter{}
	registry := NewRegistry(aborter, nil)
	runner := NewRunner(registry, time.Millisecond, nil)
	return NewBatcher(runner, p, Delays{}, nil), registry, aborter
}

const sampleDraftInfo = `{
	"item": [{
		"multi_item": [{
			"title": "测试文章",
			"author": "作者",
			"digest": "摘要",
			"content": "<p>正文</p>",
			"cdn_url": "https://mmbiz.qpic.cn/a.jpg",
			"copyright_type": 0,
			"need_open_comment": 1
		}]
	}]
}`
