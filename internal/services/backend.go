package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// PlatformType identifies the publishing platform in the remote account store.
const PlatformType = "wechat_mp"

// BackendAccount is an account as stored by the remote account API.
type BackendAccount struct {
	ID           FlexID `json:"id"`
	PlatformType string `json:"platform_type"`
	PlatformID   string `json:"platform_id"`
	Name         string `json:"name"`
	Avatar       string `json:"avatar"`
	URL          string `json:"url,omitempty"`
	AuthData     string `json:"auth_data,omitempty"`
	IsExpired    bool   `json:"is_expired"`
	ExtraData    string `json:"extra_data,omitempty"`
}

// AuthSyncStats is returned by the incremental auth endpoint.
type AuthSyncStats map[string]any

type backendError struct {
	Detail any `json:"detail"`
}

// BackendClient talks to the remote account API with a bearer token.
type BackendClient struct {
	client *resty.Client
	logger *log.Logger
}

// NewBackendClient creates a client for the account API rooted at baseURL.
func NewBackendClient(ctx context.Context, baseURL, token string, logger *log.Logger) *BackendClient {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	httpClient := http.DefaultClient
	if token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	}
	client := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(10*time.Second).
		SetHeader("Accept", "application/json")
	return &BackendClient{client: client, logger: logger}
}

func (b *BackendClient) request(ctx context.Context, path, method string, callback func(*resty.Request), result any) error {
	req := b.client.R().SetContext(ctx)
	if callback != nil {
		callback(req)
	}
	if result != nil {
		req.SetResult(result)
	}
	var e backendError
	req.SetError(&e)

	res, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	if res.IsError() {
		detail := fmt.Sprint(e.Detail)
		if e.Detail == nil {
			detail = res.Status()
		}
		switch res.StatusCode() {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, detail)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, detail)
		default:
			return fmt.Errorf("%w: backend %s %s: %s", shared.ErrRequestFailed, method, path, detail)
		}
	}
	return nil
}

// SyncAuth sends an incremental auth change for an account.
func (b *BackendClient) SyncAuth(ctx context.Context, accountID string, diff models.AuthDiff) error {
	var stats AuthSyncStats
	err := b.request(ctx, "/accounts/"+accountID+"/auth", http.MethodPatch, func(req *resty.Request) {
		req.SetBody(diff)
	}, &stats)
	if err != nil {
		return err
	}
	b.logger.Debug("Synced auth diff", "account", accountID, "stats", stats)
	return nil
}

// CreateOrUpdateAccount upserts an account keyed by its platform id.
func (b *BackendClient) CreateOrUpdateAccount(ctx context.Context, account BackendAccount) (*BackendAccount, error) {
	if account.PlatformType == "" {
		account.PlatformType = PlatformType
	}
	var out BackendAccount
	err := b.request(ctx, "/accounts/create_or_update", http.MethodPost, func(req *resty.Request) {
		req.SetBody(account)
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// InvalidateAccount marks an account's session as expired.
func (b *BackendClient) InvalidateAccount(ctx context.Context, accountID string) (*BackendAccount, error) {
	var out BackendAccount
	if err := b.request(ctx, "/accounts/"+accountID+"/invalidate", http.MethodPost, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListAccounts returns every account in the remote store.
func (b *BackendClient) ListAccounts(ctx context.Context) ([]BackendAccount, error) {
	var out []BackendAccount
	if err := b.request(ctx, "/accounts/", http.MethodGet, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAccount returns one remote account.
func (b *BackendClient) GetAccount(ctx context.Context, accountID string) (*BackendAccount, error) {
	var out BackendAccount
	if err := b.request(ctx, "/accounts/"+accountID, http.MethodGet, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BackendAccountFrom converts a local account for upload.
func BackendAccountFrom(a *models.Account) BackendAccount {
	return BackendAccount{
		PlatformType: PlatformType,
		PlatformID:   a.PlatformID(),
		Name:         a.Name(),
		Avatar:       a.Avatar(),
		URL:          DefaultBaseURL,
		AuthData:     a.AuthData(),
		IsExpired:    a.IsExpired(),
	}
}
