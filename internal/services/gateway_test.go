package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

type staticResolver map[string]Credentials

func (s staticResolver) Resolve(accountID string) (Credentials, error) {
	c, ok := s[accountID]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, accountID)
	}
	return c, nil
}

var testCreds = Credentials{
	Token: "tok123",
	Cookies: []models.Cookie{
		{Domain: ".mp.weixin.qq.com", Path: "/", Name: "slave_sid", Value: "sid"},
		{Domain: ".mp.weixin.qq.com", Path: "/", Name: "slave_user", Value: "gh_1"},
	},
}

// fakePlatform routes requests by path and records what it received.
type fakePlatform struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	calls    map[string]int
	forms    map[string][]url.Values
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		handlers: map[string]http.HandlerFunc{},
		calls:    map[string]int{},
		forms:    map[string][]url.Values{},
	}
}

func (f *fakePlatform) handle(path string, h http.HandlerFunc) { f.handlers[path] = h }

func (f *fakePlatform) json(path string, body string) {
	f.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})
}

func (f *fakePlatform) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func (f *fakePlatform) form(path string, i int) url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[path][i]
}

func (f *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.ParseForm()
	f.mu.Lock()
	f.calls[r.URL.Path]++
	if r.Method == http.MethodPost {
		f.forms[r.URL.Path] = append(f.forms[r.URL.Path], r.PostForm)
	}
	h, ok := f.handlers[r.URL.Path]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func newTestGateway(t *testing.T, platform *fakePlatform) *Gateway {
	t.Helper()
	server := httptest.NewServer(platform)
	t.Cleanup(server.Close)

	logger := shared.NewLogger(io.Discard)
	tr := NewHTTPTransport(server.Client(), nil, logger)
	return NewGateway(tr, staticResolver{"acc-1": testCreds}, GatewayConfig{
		BaseURL:           server.URL,
		CopyrightAttempts: 3,
		CopyrightInterval: time.Millisecond,
		QRTimeout:         time.Second,
		QRInterval:        time.Millisecond,
	}, logger)
}

func TestGatewayDo(t *testing.T) {
	t.Run("Sends Platform Headers", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/ping", func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("token"); got != "tok123" {
				t.Errorf("expected token in URL, got %q", got)
			}
			if got := r.Header.Get("Cookie"); !strings.Contains(got, "slave_sid=sid") {
				t.Errorf("expected cookie header, got %q", got)
			}
			if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
				t.Errorf("expected default user agent, got %q", got)
			}
			if got := r.Header.Get("Content-Type"); !strings.HasPrefix(got, "application/x-www-form-urlencoded") {
				t.Errorf("expected form content type, got %q", got)
			}
			if got := r.PostForm.Get("token"); got != "tok123" {
				t.Errorf("expected token in body, got %q", got)
			}
			io.WriteString(w, `{"base_resp":{"ret":0}}`)
		})
		g := newTestGateway(t, platform)

		_, err := g.Do(context.Background(), Request{
			AccountID: "acc-1",
			Method:    http.MethodPost,
			URL:       func(token string) string { return g.endpoint("/ping?token=" + token) },
			Body:      func(token string) url.Values { return form(token, nil) },
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("Requires Account Or Credentials", func(t *testing.T) {
		g := newTestGateway(t, newFakePlatform())
		_, err := g.Do(context.Background(), Request{URL: func(string) string { return g.endpoint("/") }})
		if !errors.Is(err, shared.ErrMissingArgument) {
			t.Fatalf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Unknown Account", func(t *testing.T) {
		g := newTestGateway(t, newFakePlatform())
		_, err := g.ListDrafts(context.Background(), "nobody", DraftQuery{})
		if !errors.Is(err, shared.ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("HTTP Failure", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/cgi-bin/appmsg", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		g := newTestGateway(t, platform)

		_, err := g.ListDrafts(context.Background(), "acc-1", DraftQuery{})
		if !errors.Is(err, shared.ErrRequestFailed) {
			t.Fatalf("expected ErrRequestFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "API 请求失败: 502 Bad Gateway") {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("Business Failure", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/operate_appmsg", `{"base_resp":{"ret":10003,"err_msg":"declared"}}`)
		g := newTestGateway(t, platform)

		_, err := g.DeleteDraft(context.Background(), "acc-1", "42", "")
		if !errors.Is(err, shared.ErrBusiness) {
			t.Fatalf("expected business error, got %v", err)
		}
		if err.Error() != "已被他人声明原创" {
			t.Errorf("expected mapped message, got %q", err.Error())
		}
	})

	t.Run("Aborted Request", func(t *testing.T) {
		tr := &abortingTransport{}
		g := NewGateway(tr, staticResolver{"acc-1": testCreds}, GatewayConfig{}, shared.NewLogger(io.Discard))

		_, err := g.DeleteDraft(context.Background(), "acc-1", "42", "req-1")
		if !IsAborted(err) {
			t.Fatalf("expected abort error, got %v", err)
		}
		if !strings.Contains(err.Error(), "请求已中止") {
			t.Errorf("unexpected message %q", err.Error())
		}
		if tr.lastRequestID != "req-1" {
			t.Errorf("expected request id to reach the transport, got %q", tr.lastRequestID)
		}
	})
}

type abortingTransport struct {
	lastRequestID string
}

func (a *abortingTransport) Fetch(_ context.Context, _ string, opts FetchOptions) (*Response, error) {
	a.lastRequestID = opts.RequestID
	return abortedResponse(), nil
}

func (a *abortingTransport) Abort(string) bool { return true }

func TestGatewayDrafts(t *testing.T) {
	t.Run("ListDrafts", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/cgi-bin/appmsg", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("action") != "list_card" || q.Get("begin") != "5" || q.Get("count") != "5" || q.Get("query") != "周报" {
				t.Errorf("unexpected query %v", q)
			}
			io.WriteString(w, `{"base_resp":{"ret":0},"app_msg_info":{"item":[
				{"app_id":100000001,"update_time":1700000000,"multi_item":[{"title":"第一篇"},{"title":"第二篇"}]},
				{"app_id":"100000002","multi_item":[]}
			],"file_cnt":{"draft_count":12}}}`)
		})
		g := newTestGateway(t, platform)

		list, err := g.ListDrafts(context.Background(), "acc-1", DraftQuery{Begin: 5, Count: 5, Query: "周报"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if list.Total != 12 || len(list.Items) != 2 {
			t.Fatalf("unexpected list %+v", list)
		}
		if list.Items[0].AppID != "100000001" || list.Items[1].AppID != "100000002" {
			t.Errorf("unexpected ids %q %q", list.Items[0].AppID, list.Items[1].AppID)
		}
		if list.Items[0].Title() != "第一篇" || list.Items[1].Title() != "" {
			t.Errorf("unexpected titles %q %q", list.Items[0].Title(), list.Items[1].Title())
		}
	})

	t.Run("ListDrafts Empty", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/appmsg", `{"base_resp":{"ret":0}}`)
		g := newTestGateway(t, platform)

		list, err := g.ListDrafts(context.Background(), "acc-1", DraftQuery{})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if list.Items == nil || len(list.Items) != 0 || list.Total != 0 {
			t.Errorf("expected empty list, got %+v", list)
		}
	})

	t.Run("GetDraft", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/cgi-bin/appmsg", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("appmsgid") != "77" {
				t.Errorf("expected appmsgid 77, got %q", r.URL.Query().Get("appmsgid"))
			}
			io.WriteString(w, `{"base_resp":{"ret":0},"app_msg_info":"{\"app_id\":77,\"item\":[{\"multi_item\":[{\"title\":\"标题\"}]}]}"}`)
		})
		g := newTestGateway(t, platform)

		detail, err := g.GetDraft(context.Background(), "acc-1", "77", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if detail.Title() != "标题" {
			t.Errorf("expected title 标题, got %q", detail.Title())
		}
	})

	t.Run("GetDraft Without Info", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/appmsg", `{"base_resp":{"ret":0}}`)
		g := newTestGateway(t, platform)

		if _, err := g.GetDraft(context.Background(), "acc-1", "77", ""); err == nil {
			t.Fatal("expected an error for a missing app_msg_info")
		}
	})

	t.Run("DeleteDraft", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/operate_appmsg", `{"base_resp":{"ret":0}}`)
		g := newTestGateway(t, platform)

		id, err := g.DeleteDraft(context.Background(), "acc-1", "42", "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "42" {
			t.Errorf("expected fallback id 42, got %q", id)
		}
		f := platform.form("/cgi-bin/operate_appmsg", 0)
		if f.Get("AppMsgId") != "42" || f.Get("ajax") != "1" || f.Get("f") != "json" {
			t.Errorf("unexpected form %v", f)
		}
	})

	t.Run("OperateDraft", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/cgi-bin/operate_appmsg", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("sub") != "create" {
				t.Errorf("expected sub=create, got %q", r.URL.Query().Get("sub"))
			}
			io.WriteString(w, `{"base_resp":{"ret":0},"appmsgid":2247483650}`)
		})
		g := newTestGateway(t, platform)

		params := url.Values{"title0": {"hello"}, "token": {"stale"}}
		id, err := g.OperateDraft(context.Background(), "acc-1", DraftCreate, params, "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id != "2247483650" {
			t.Errorf("expected id 2247483650, got %q", id)
		}
		f := platform.form("/cgi-bin/operate_appmsg", 0)
		if f.Get("title0") != "hello" || f.Get("token") != "tok123" {
			t.Errorf("unexpected form %v", f)
		}
	})

	t.Run("OperateDraft Rejects Unknown Op", func(t *testing.T) {
		g := newTestGateway(t, newFakePlatform())
		if _, err := g.OperateDraft(context.Background(), "acc-1", DraftOp("del"), nil, ""); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestGatewayMasssend(t *testing.T) {
	t.Run("GetMasssendInfo", func(t *testing.T) {
		tests := []struct {
			name     string
			strategy string
			wantScan bool
		}{
			{"protection off", `"{\"protect_status\":1}"`, false},
			{"protection on", `"{\"protect_status\":2}"`, true},
			{"missing strategy", `""`, true},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				platform := newFakePlatform()
				platform.json("/cgi-bin/masssendpage", `{"base_resp":{"ret":0},
					"quota_detail_list":[{"quota_type":"kQuotaTypeOther","quota_item_list":[{"a":1}]},
						{"quota_type":"kQuotaTypeMassSendNormal","quota_item_list":[{"left":1},{"left":0}]}],
					"contact_group_list":"{\"group_info_list\":[{\"group_id\":0},{\"group_id\":2}]}",
					"strategy_info":`+tt.strategy+`,
					"operation_seq":998877}`)
				g := newTestGateway(t, platform)

				info, err := g.GetMasssendInfo(context.Background(), "acc-1", "42", "")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if len(info.QuotaItems) != 2 || len(info.ContactGroups) != 2 {
					t.Errorf("unexpected info %+v", info)
				}
				if info.OperationSeq != "998877" {
					t.Errorf("expected operation seq 998877, got %q", info.OperationSeq)
				}
				if info.NeedScanQRCode != tt.wantScan {
					t.Errorf("expected NeedScanQRCode %v, got %v", tt.wantScan, info.NeedScanQRCode)
				}
			})
		}
	})

	t.Run("GetRegions Without Children", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/getregions", `{"base_resp":{"ret":1000000}}`)
		g := newTestGateway(t, platform)

		regions, err := g.GetRegions(context.Background(), "acc-1", 86)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if regions.HasChildren || len(regions.Regions) != 0 {
			t.Errorf("expected no children, got %+v", regions)
		}
	})

	t.Run("GetRegions", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/getregions", `{"base_resp":{"ret":0},"data":[{"id":1},{"id":2}],"num":2}`)
		g := newTestGateway(t, platform)

		regions, err := g.GetRegions(context.Background(), "acc-1", 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !regions.HasChildren || regions.Total != 2 || len(regions.Regions) != 2 {
			t.Errorf("unexpected regions %+v", regions)
		}
	})
}

func TestCheckCopyright(t *testing.T) {
	t.Run("Polls Until Hit", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/cgi-bin/masssend", func(w http.ResponseWriter, r *http.Request) {
			if platform.count("/cgi-bin/masssend") < 3 {
				io.WriteString(w, `{"base_resp":{"ret":154011}}`)
				return
			}
			io.WriteString(w, `{"base_resp":{"ret":154008},"list":"{\"list\":[{\"idx\":1,\"title\":\"原文\"}]}"}`)
		})
		g := newTestGateway(t, platform)

		var progress []CopyrightProgress
		result, err := g.CheckCopyright(context.Background(), "acc-1", "42", "", func(p CopyrightProgress) {
			progress = append(progress, p)
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Copyright != 1 || len(result.List) != 1 || result.ListRaw == "" {
			t.Errorf("unexpected result %+v", result)
		}
		if len(progress) != 2 || progress[0].Retry != 1 || progress[0].MaxRetries != 3 {
			t.Errorf("unexpected progress %+v", progress)
		}
		if platform.form("/cgi-bin/masssend", 0).Get("first_check") != "1" {
			t.Error("expected first request to set first_check=1")
		}
		if platform.form("/cgi-bin/masssend", 1).Get("first_check") != "0" {
			t.Error("expected later requests to set first_check=0")
		}
	})

	t.Run("No Hit", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/masssend", `{"base_resp":{"ret":154009}}`)
		g := newTestGateway(t, platform)

		result, err := g.CheckCopyright(context.Background(), "acc-1", "42", "", nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Copyright != 0 || result.ListRaw != "" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("Still Pending After Retries", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/masssend", `{"base_resp":{"ret":154011}}`)
		g := newTestGateway(t, platform)

		_, err := g.CheckCopyright(context.Background(), "acc-1", "42", "", nil)
		if err == nil || err.Error() != "原创检测失败，错误码: 154011" {
			t.Fatalf("expected pending failure, got %v", err)
		}
		if got := platform.count("/cgi-bin/masssend"); got != 4 {
			t.Errorf("expected 1 check plus 3 retries, got %d", got)
		}
	})

	t.Run("Unexpected Code", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/masssend", `{"base_resp":{"ret":200003}}`)
		g := newTestGateway(t, platform)

		_, err := g.CheckCopyright(context.Background(), "acc-1", "42", "", nil)
		if code, ok := CodeOf(err); !ok || code != 200003 {
			t.Fatalf("expected code 200003, got %v", err)
		}
		if platform.count("/cgi-bin/masssend") != 1 {
			t.Error("expected no retries for a terminal code")
		}
	})
}

func TestPublish(t *testing.T) {
	t.Run("URL Variants", func(t *testing.T) {
		tests := []struct {
			name      string
			sendTime  int64
			hasNotify bool
			want      string
		}{
			{"immediate with notify", 0, true, "&is_release_publish_page=0"},
			{"immediate without notify", 0, false, "&is_release_publish_page=1"},
			{"scheduled with notify", 1700000000, true, "&action=time_send"},
			{"scheduled without notify", 1700000000, false, "&is_release_publish_page=1"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				p := PublishParams{SendTime: tt.sendTime, HasNotify: tt.hasNotify}
				got := p.PublishURL("https://mp.weixin.qq.com", "tok")
				if !strings.HasSuffix(got, tt.want) {
					t.Errorf("expected URL ending in %q, got %q", tt.want, got)
				}
			})
		}
	})

	t.Run("Form", func(t *testing.T) {
		p := DefaultPublishParams("42")
		p.AppmsgItemCount = 3
		p.OperationSeq = "seq"
		p.Code = "uuid-1"
		p.ReprintInfo = &ReprintInfo{ItemList: []ReprintItem{{Idx: 1, ReprintType: "EN_REPRINT_TYPE_SHARE", GuideWords: "转载"}}}

		f, err := p.Form("tok", time.UnixMilli(1700000000123))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		checks := map[string]string{
			"appmsgid":        "42",
			"isMulti":         "1",
			"operation_seq":   "seq",
			"code":            "uuid-1",
			"req_time":        "1700000000123",
			"isFreePublish":   "false",
			"reprint_confirm": "1",
			"send_time":       "0",
			"type":            "10",
		}
		for k, want := range checks {
			if got := f.Get(k); got != want {
				t.Errorf("%s = %q, want %q", k, got, want)
			}
		}
		if !strings.Contains(f.Get("reprint_info"), `"guide_words":"转载"`) {
			t.Errorf("unexpected reprint_info %q", f.Get("reprint_info"))
		}
		if f.Has("groupid") || f.Has("sex") || f.Has("country") {
			t.Error("audience fields must be omitted for the default audience")
		}
	})

	t.Run("Form With Audience", func(t *testing.T) {
		p := DefaultPublishParams("42")
		p.GroupID, p.Sex, p.Country = 2, 1, "中国"

		f, err := p.Form("tok", time.Now())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.Get("groupid") != "2" || f.Get("sex") != "1" || f.Get("country") != "中国" {
			t.Errorf("unexpected audience fields %v", f)
		}
		if f.Get("reprint_info") != `{"item_list":[]}` {
			t.Errorf("expected empty reprint info, got %q", f.Get("reprint_info"))
		}
	})

	t.Run("Publish", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/cgi-bin/masssend", `{"base_resp":{"ret":0,"err_msg":"ok"}}`)
		g := newTestGateway(t, platform)

		result, err := g.Publish(context.Background(), "acc-1", DefaultPublishParams("42"), "")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !result.Success || result.Message != "ok" {
			t.Errorf("unexpected result %+v", result)
		}
	})
}

func TestGetUserInfo(t *testing.T) {
	platform := newFakePlatform()
	platform.json("/cgi-bin/safecenterstatus", `{"base_resp":{"ret":0,"master_ticket_id":"gh_abc"},"user_info":{"nick_name":"公众号","head_img":"https://mmbiz.qpic.cn/a.png"}}`)
	g := newTestGateway(t, platform)

	info, err := g.GetUserInfo(context.Background(), testCreds)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if info.NickName != "公众号" || info.PlatformID != "gh_abc" || info.HeadImg == "" {
		t.Errorf("unexpected info %+v", info)
	}

	platform.json("/cgi-bin/safecenterstatus", `{"base_resp":{"ret":0}}`)
	if _, err := g.GetUserInfo(context.Background(), testCreds); err == nil {
		t.Error("expected an error when user_info is missing")
	}
}
