package tasks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/shared"
)

// hookResolver hands out fixed credentials and runs onResolve before each lookup.
type hookResolver struct {
	onResolve func(call int)
	calls     atomic.Int32
}

func (h *hookResolver) Resolve(string) (services.Credentials, error) {
	n := int(h.calls.Add(1))
	if h.onResolve != nil {
		h.onResolve(n)
	}
	return services.Credentials{
		Token:   "tok123",
		Cookies: []models.Cookie{{Domain: ".mp.weixin.qq.com", Path: "/", Name: "slave_sid", Value: "sid"}},
	}, nil
}

// newGatewayBatcher wires a batcher to a real gateway and transport against handler.
// The transport is also the registry's aborter, as in the CLI.
func newGatewayBatcher(t *testing.T, handler http.Handler, resolver services.CredentialResolver) (*Batcher, *Registry) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := shared.NewLogger(io.Discard)
	tr := services.NewHTTPTransport(server.Client(), nil, logger)
	gateway := services.NewGateway(tr, resolver, services.GatewayConfig{BaseURL: server.URL}, logger)
	registry := NewRegistry(tr, logger)
	return NewBatcher(NewRunner(registry, time.Millisecond, logger), gateway, Delays{}, logger), registry
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestGatewayBackedTasks(t *testing.T) {
	t.Run("pause before the request registers sends nothing", func(t *testing.T) {
		var hits atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			io.WriteString(w, `{"base_resp":{"ret":0}}`)
		})

		var registry *Registry
		paused := make(chan struct{})
		resolver := &hookResolver{onResolve: func(call int) {
			if call != 1 {
				return
			}
			if err := registry.Pause(registry.List()[0].ID); err != nil {
				t.Errorf("Pause() error = %v", err)
			}
			close(paused)
		}}

		var b *Batcher
		b, registry = newGatewayBatcher(t, handler, resolver)

		done := make(chan *models.BatchResult, 1)
		go func() {
			result, _ := b.RunDeleteBatch(context.Background(), "acc-1", DraftRefsFromIDs([]string{"42"}), Options{})
			done <- result
		}()

		<-paused
		time.Sleep(50 * time.Millisecond)
		if n := hits.Load(); n != 0 {
			t.Fatalf("expected no remote call while paused, got %d", n)
		}

		task := registry.List()[0]
		if err := registry.Cancel(task.ID); err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}

		select {
		case result := <-done:
			if !result.Cancelled || result.SuccessCount != 0 {
				t.Errorf("expected a cancelled run with no successes, got %+v", result)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("run did not finish after cancel")
		}
		if n := hits.Load(); n != 0 {
			t.Errorf("expected no remote call at all, got %d", n)
		}
	})

	t.Run("paused qr poll stops fetching until resumed", func(t *testing.T) {
		var (
			hits      atomic.Int32
			confirmed atomic.Bool
		)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/safe/safeuuid" {
				http.NotFound(w, r)
				return
			}
			hits.Add(1)
			if confirmed.Load() {
				io.WriteString(w, `{"errcode":405}`)
				return
			}
			io.WriteString(w, `{"errcode":401}`)
		})
		b, registry := newGatewayBatcher(t, handler, &hookResolver{})
		b.SetQRSettings(QRSettings{Timeout: 10 * time.Second, Interval: 10 * time.Millisecond})

		type outcome struct {
			res    services.QRPollResult
			result *models.BatchResult
		}
		done := make(chan outcome, 1)
		target := &PublishTarget{Name: "目标"}
		go func() {
			res, result, _ := b.RunQRPoll(context.Background(), "acc-1", "uuid-1", "7", target, Options{})
			done <- outcome{res, result}
		}()

		waitFor(t, "the poll to start", func() bool { return hits.Load() >= 2 })
		task := registry.List()[0]
		if err := registry.Pause(task.ID); err != nil {
			t.Fatalf("Pause() error = %v", err)
		}

		time.Sleep(30 * time.Millisecond)
		before := hits.Load()
		time.Sleep(150 * time.Millisecond)
		if after := hits.Load(); after != before {
			t.Fatalf("expected no status checks while paused, got %d more", after-before)
		}

		confirmed.Store(true)
		if err := registry.Resume(task.ID); err != nil {
			t.Fatalf("Resume() error = %v", err)
		}

		select {
		case o := <-done:
			if !o.res.Success || o.result.SuccessCount != 1 {
				t.Errorf("expected confirmation after resume, got %+v / %+v", o.res, o.result)
			}
			if !target.Decisions.QRCodeValidated || target.Decisions.QRCodeUUID != "uuid-1" {
				t.Errorf("expected decisions to record the scan, got %+v", target.Decisions)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("poll did not finish after resume")
		}
		if hits.Load() <= before {
			t.Error("expected polling to restart after resume")
		}
	})
}
