package services

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

func qrStatusHandler(platform *fakePlatform, codes ...int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := platform.count("/safe/safeuuid") - 1
		code := codes[len(codes)-1]
		if n < len(codes) {
			code = codes[n]
		}
		io.WriteString(w, `{"errcode":`+strconv.Itoa(code)+`}`)
	}
}

func TestQRCode(t *testing.T) {
	t.Run("GetQRTicket", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/misc/safeassistant", `{"base_resp":{"ret":0},"ticket":"tk-1"}`)
		g := newTestGateway(t, platform)

		result := g.GetQRTicket(context.Background(), "acc-1")
		if !result.Success || result.Ticket != "tk-1" {
			t.Errorf("unexpected result %+v", result)
		}
		f := platform.form("/misc/safeassistant", 0)
		if f.Get("action") != "get_ticket" || len(f.Get("fingerprint")) != 32 {
			t.Errorf("unexpected form %v", f)
		}
	})

	t.Run("GetQRTicket Soft Failure", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/misc/safeassistant", `{"base_resp":{"ret":0}}`)
		g := newTestGateway(t, platform)

		result := g.GetQRTicket(context.Background(), "acc-1")
		if result.Success || result.Error != "响应中没有 ticket 字段" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("GetQRUUID", func(t *testing.T) {
		platform := newFakePlatform()
		platform.json("/safe/safeqrconnect", `{"uuid":"u-1"}`)
		g := newTestGateway(t, platform)

		result := g.GetQRUUID(context.Background(), "acc-1", "tk-1")
		if !result.Success || result.UUID != "u-1" {
			t.Errorf("unexpected result %+v", result)
		}
		if f := platform.form("/safe/safeqrconnect", 0); f.Get("ticket") != "tk-1" || f.Get("login_type") != "safe_center" {
			t.Errorf("unexpected form %v", f)
		}

		platform.json("/safe/safeqrconnect", `{"errmsg":"no uuid"}`)
		result = g.GetQRUUID(context.Background(), "acc-1", "tk-1")
		if result.Success || result.Error != "no uuid" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("QRImageURL", func(t *testing.T) {
		g := NewGateway(nil, nil, GatewayConfig{}, nil)
		got := g.QRImageURL("a b", "u-1", "42", false)
		want := "https://mp.weixin.qq.com/safe/safeqrcode?ticket=a+b&uuid=u-1&action=check&service_type=1&type=msgs&msgid=42&publish_type=1"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
		if strings.Contains(g.QRImageURL("t", "u", "1", true), "publish_type") {
			t.Error("publish_type is only sent without notification")
		}
	})

	t.Run("FetchQRImage", func(t *testing.T) {
		platform := newFakePlatform()
		platform.handle("/safe/safeqrcode", func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Referer"), "appmsgid=42") {
				t.Errorf("unexpected referer %q", r.Header.Get("Referer"))
			}
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png"))
		})
		g := newTestGateway(t, platform)

		data, err := g.FetchQRImage(context.Background(), "acc-1", "tk", "u-1", "42", true)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if data != "data:image/png;base64,cG5n" {
			t.Errorf("unexpected data URL %q", data)
		}
	})

	t.Run("CheckQRStatus", func(t *testing.T) {
		tests := []struct {
			code     int
			status   QRStatusCode
			validate bool
		}{
			{401, QRWaiting, false},
			{404, QRScanned, false},
			{405, QRConfirmed, true},
			{403, QRCancelled, false},
			{500, QRUnknown, false},
		}

		for _, tt := range tests {
			t.Run(string(tt.status), func(t *testing.T) {
				platform := newFakePlatform()
				platform.handle("/safe/safeuuid", qrStatusHandler(platform, tt.code))
				g := newTestGateway(t, platform)

				st, err := g.CheckQRStatus(context.Background(), "acc-1", "u-1", "42", "")
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if st.Status != tt.status || st.IsValidate != tt.validate || st.ErrCode != tt.code {
					t.Errorf("unexpected status %+v", st)
				}
			})
		}
	})

	t.Run("PollQRStatus", func(t *testing.T) {
		t.Run("Confirmed", func(t *testing.T) {
			platform := newFakePlatform()
			platform.handle("/safe/safeuuid", qrStatusHandler(platform, 401, 404, 405))
			g := newTestGateway(t, platform)

			var seen []QRStatusCode
			result, err := g.PollQRStatus(context.Background(), "acc-1", QRPollOptions{
				UUID:     "u-1",
				OnStatus: func(s QRStatus) { seen = append(seen, s.Status) },
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !result.Success || result.Status != QRConfirmed {
				t.Errorf("unexpected result %+v", result)
			}
			if len(seen) != 3 || seen[1] != QRScanned {
				t.Errorf("unexpected status sequence %v", seen)
			}
		})

		t.Run("Cancelled", func(t *testing.T) {
			platform := newFakePlatform()
			platform.handle("/safe/safeuuid", qrStatusHandler(platform, 401, 403))
			g := newTestGateway(t, platform)

			result, err := g.PollQRStatus(context.Background(), "acc-1", QRPollOptions{UUID: "u-1"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result.Success || result.Status != QRCancelled {
				t.Errorf("unexpected result %+v", result)
			}
		})

		t.Run("Timeout After Attempt Cap", func(t *testing.T) {
			platform := newFakePlatform()
			platform.handle("/safe/safeuuid", qrStatusHandler(platform, 401))
			g := newTestGateway(t, platform)

			result, err := g.PollQRStatus(context.Background(), "acc-1", QRPollOptions{UUID: "u-1", MaxAttempts: 10})
			if err != nil {
				t.Fatalf("a timeout must not be an error, got %v", err)
			}
			if result.Success || result.Status != QRTimeout || result.Message != "超时，请点击刷新重试" {
				t.Errorf("unexpected result %+v", result)
			}
			if got := platform.count("/safe/safeuuid"); got != 10 {
				t.Errorf("expected 10 status checks, got %d", got)
			}
		})

		t.Run("Aborted", func(t *testing.T) {
			platform := newFakePlatform()
			platform.handle("/safe/safeuuid", qrStatusHandler(platform, 401))
			g := newTestGateway(t, platform)

			checks := 0
			result, err := g.PollQRStatus(context.Background(), "acc-1", QRPollOptions{
				UUID:    "u-1",
				Aborted: func() bool { checks++; return checks > 2 },
			})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if result.Status != QRAborted {
				t.Errorf("expected aborted, got %+v", result)
			}
			if got := platform.count("/safe/safeuuid"); got != 2 {
				t.Errorf("expected 2 status checks before abort, got %d", got)
			}
		})
	})
}
