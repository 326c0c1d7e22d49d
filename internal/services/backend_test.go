package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

func TestBackendClient(t *testing.T) {
	newServer := func(t *testing.T, h http.HandlerFunc) *BackendClient {
		t.Helper()
		server := httptest.NewServer(h)
		t.Cleanup(server.Close)
		return NewBackendClient(context.Background(), server.URL+"/api/v1/", "secret", shared.NewLogger(io.Discard))
	}

	t.Run("SyncAuth", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch || r.URL.Path != "/api/v1/accounts/7/auth" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer secret" {
				t.Errorf("expected bearer token, got %q", got)
			}
			var diff models.AuthDiff
			if err := json.NewDecoder(r.Body).Decode(&diff); err != nil {
				t.Errorf("failed to decode diff: %v", err)
			}
			if len(diff.Cookies.Added) != 1 || diff.Cookies.Added[0].Name != "slave_sid" {
				t.Errorf("unexpected diff %+v", diff)
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"cookies_added":1}`)
		})

		diff := models.AuthDiff{Cookies: models.CookieDiff{
			Added:    []models.Cookie{{Domain: ".mp.weixin.qq.com", Path: "/", Name: "slave_sid", Value: "x"}},
			Modified: []models.Cookie{},
			Removed:  []models.CookieRef{},
		}}
		if err := client.SyncAuth(context.Background(), "7", diff); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
	})

	t.Run("CreateOrUpdateAccount", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v1/accounts/create_or_update" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			var body BackendAccount
			json.NewDecoder(r.Body).Decode(&body)
			if body.PlatformType != PlatformType || body.PlatformID != "gh_1" {
				t.Errorf("unexpected body %+v", body)
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"id":12,"platform_id":"gh_1","name":"账号"}`)
		})

		a := models.NewAccount(1, "gh_1", "账号", "")
		out, err := client.CreateOrUpdateAccount(context.Background(), BackendAccountFrom(a))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.ID != "12" || out.Name != "账号" {
			t.Errorf("unexpected account %+v", out)
		}
	})

	t.Run("ListAccounts", func(t *testing.T) {
		client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `[{"id":1,"platform_id":"a"},{"id":2,"platform_id":"b","is_expired":true}]`)
		})

		accounts, err := client.ListAccounts(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(accounts) != 2 || !accounts[1].IsExpired {
			t.Errorf("unexpected accounts %+v", accounts)
		}
	})

	t.Run("Error Mapping", func(t *testing.T) {
		tests := []struct {
			name   string
			status int
			want   error
		}{
			{"unauthorized", http.StatusUnauthorized, shared.ErrNotAuthenticated},
			{"not found", http.StatusNotFound, shared.ErrAccountNotFound},
			{"bad request", http.StatusBadRequest, shared.ErrRequestFailed},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				client := newServer(t, func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(tt.status)
					io.WriteString(w, `{"detail":"nope"}`)
				})

				_, err := client.InvalidateAccount(context.Background(), "9")
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
			})
		}
	})
}
