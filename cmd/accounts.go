package main

import (
	"context"
	stdjson "encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/services"
	"github.com/desertthunder/mpsync/internal/session"
	"github.com/desertthunder/mpsync/internal/shared"
)

func (r *Runner) requireBackend() error {
	if r.backend == nil {
		return fmt.Errorf("%w: set [backend] url or MPSYNC_BACKEND_URL", shared.ErrMissingConfig)
	}
	return nil
}

func (r *Runner) account(cmd *cli.Command) (*models.Account, error) {
	id := cmd.StringArg("id")
	if id == "" {
		return nil, fmt.Errorf("%w: account id", shared.ErrMissingArgument)
	}
	return r.accounts.Get(id)
}

// AccountsList prints every stored account.
func (r *Runner) AccountsList(ctx context.Context, cmd *cli.Command) error {
	criteria := map[string]any{}
	if cmd.Bool("active") {
		criteria["expired"] = false
	}
	accounts, err := r.accounts.List(criteria)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(accounts, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("Accounts (%d)", len(accounts)))
	now := time.Now()
	for _, a := range accounts {
		status := "✓ active"
		if _, err := services.CredentialsFromAccount(a, now); err != nil {
			status = "✗ expired"
		}
		r.writePlain("%-4d %-20s %-24s %s\n", a.Sequence(), a.Name(), a.ID(), status)
	}
	return nil
}

// AccountsShow prints one account and, with --remote, the profile behind its session.
func (r *Runner) AccountsShow(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}

	creds, credErr := services.CredentialsFromAccount(account, time.Now())
	view := map[string]any{
		"account":       account,
		"authenticated": credErr == nil,
	}
	if credErr != nil {
		view["auth_error"] = credErr.Error()
	} else {
		view["cookies"] = len(creds.Cookies)
	}

	if cmd.Bool("remote") && credErr == nil {
		info, err := r.gateway.GetUserInfo(ctx, creds)
		if err != nil {
			return fmt.Errorf("failed to read profile: %w", err)
		}
		view["user_info"] = info
	}

	return r.writeJSON(view, true)
}

// AccountsImport creates or refreshes an account from a browser request copied as cURL.
//
// The session's cookies are written to the account's partition, then captured into its
// auth blob. With a backend configured the account is stored there first and keeps the
// backend id locally.
func (r *Runner) AccountsImport(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}
	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var curlHeaders *shared.CurlHeaders
	var err error
	if curlFile != "" {
		curlHeaders, err = shared.ParseCurlFile(curlFile)
	} else {
		curlHeaders, err = shared.ParseCurlCommand([]byte(curlCmd))
	}
	if err != nil {
		return fmt.Errorf("failed to parse cURL: %w", err)
	}

	token := cmd.String("token")
	if token == "" {
		token = session.TokenFromURL(curlHeaders.URL)
	}
	if token == "" {
		return fmt.Errorf("%w: no token in the request url, pass --token", shared.ErrMissingArgument)
	}

	host := cookieHost(curlHeaders.URL, r.config.Platform.BaseURL)
	cookies := make([]models.Cookie, 0, len(curlHeaders.Cookies()))
	for _, pair := range curlHeaders.Cookies() {
		cookies = append(cookies, models.Cookie{Domain: host, Path: "/", Name: pair.Name, Value: pair.Value})
	}
	if !session.HasRequiredCookies(cookies, session.RequiredLoginCookies...) {
		return fmt.Errorf("%w: need %v", shared.ErrMissingCookies, session.RequiredLoginCookies)
	}

	info, err := r.gateway.GetUserInfo(ctx, services.Credentials{Token: token, Cookies: cookies})
	if err != nil {
		return fmt.Errorf("failed to verify session: %w", err)
	}
	platformID := info.PlatformID
	if platformID == "" {
		platformID, _ = session.GetCookieValue(cookies, "data_bizuin")
	}
	name := info.NickName
	if name == "" {
		name = platformID
	}

	account := models.NewAccount(0, platformID, name, info.HeadImg)
	if existing, err := r.accounts.GetByPlatformID(platformID); err == nil {
		account.SetPartitionKey(existing.PartitionKey())
	}

	partition := account.PartitionKey()
	if err := r.sessions.Clear(partition); err != nil {
		return err
	}
	for _, c := range cookies {
		if err := r.cookies.Set(partition, session.CookieURL(c), c); err != nil {
			return err
		}
	}
	snapshot, err := r.sessions.Capture(partition, r.config.Sync.Domain)
	if err != nil {
		return err
	}

	rawToken, err := json.Marshal(token)
	if err != nil {
		return err
	}
	blob, err := session.EncodeAuthBlob(map[string]stdjson.RawMessage{"token": rawToken}, snapshot)
	if err != nil {
		return err
	}
	account.SetAuthData(blob)

	if r.backend != nil {
		remote, err := r.backend.CreateOrUpdateAccount(ctx, services.BackendAccountFrom(account))
		if err != nil {
			return fmt.Errorf("failed to store account in backend: %w", err)
		}
		account.SetID(remote.ID.String())
	}

	stored, created, err := r.accounts.CreateOrUpdate(account)
	if err != nil {
		return err
	}

	verb := "Updated"
	if created {
		verb = "Imported"
	}
	r.logger.Info("account stored", "id", stored.ID(), "platform_id", platformID, "cookies", len(snapshot.Cookies))
	return r.writePlain("✓ %s account %s (%s)\n", verb, stored.Name(), stored.ID())
}

// cookieHost is the host cookies from a Cookie header are scoped to.
func cookieHost(rawURL, fallback string) string {
	for _, candidate := range []string{rawURL, fallback} {
		if u, err := url.Parse(candidate); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return "mp.weixin.qq.com"
}

// AccountsInvalidate drops an account's session locally, in its partition and in the backend.
func (r *Runner) AccountsInvalidate(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}
	if err := r.accounts.Invalidate(account.ID()); err != nil {
		return err
	}
	if err := r.sessions.Clear(account.PartitionKey()); err != nil {
		r.logger.Warn("failed to clear partition", "partition", account.PartitionKey(), "error", err)
	}
	if r.backend != nil {
		if _, err := r.backend.InvalidateAccount(ctx, account.ID()); err != nil {
			return fmt.Errorf("account invalidated locally, backend failed: %w", err)
		}
	}
	return r.writePlain("✓ Invalidated %s\n", account.Name())
}

// AccountsCapture stores the current contents of an account's partition as its auth blob.
// The token of the previous blob is kept.
func (r *Runner) AccountsCapture(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}

	snapshot, err := r.sessions.Capture(account.PartitionKey(), r.config.Sync.Domain)
	if err != nil {
		return err
	}
	if len(snapshot.Cookies) == 0 {
		return fmt.Errorf("%w: partition %s is empty", shared.ErrMissingCookies, account.PartitionKey())
	}

	outer := map[string]stdjson.RawMessage{}
	if account.AuthData() != "" {
		if err := json.Unmarshal([]byte(account.AuthData()), &outer); err != nil {
			r.logger.Warn("discarding malformed auth blob", "account", account.ID(), "error", err)
			outer = map[string]stdjson.RawMessage{}
		}
	}
	blob, err := session.EncodeAuthBlob(outer, snapshot)
	if err != nil {
		return err
	}
	if err := r.accounts.UpdateAuth(account.ID(), blob); err != nil {
		return err
	}
	return r.writePlain("✓ Captured %d cookies and %d storage keys for %s\n", len(snapshot.Cookies), len(snapshot.LocalStorage), account.Name())
}

// AccountsRestore writes an account's stored session back into its partition.
func (r *Runner) AccountsRestore(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}
	if cmd.Bool("clear") {
		if err := r.sessions.Clear(account.PartitionKey()); err != nil {
			return err
		}
	}

	ls, err := r.sessions.RestoreAccount(account)
	if err != nil {
		return err
	}
	if len(ls) > 0 {
		if err := r.storage.Write(account.PartitionKey(), ls); err != nil {
			return err
		}
	}

	keys := make([]string, 0, len(ls))
	for k := range ls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	r.writePlain("✓ Restored %s into %s\n", account.Name(), account.PartitionKey())
	if len(keys) > 0 {
		r.writePlain("Local storage: %v\n", keys)
	}
	return nil
}

// AccountsPull copies every backend account into the local store, keeping backend ids.
func (r *Runner) AccountsPull(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireBackend(); err != nil {
		return err
	}
	remote, err := r.backend.ListAccounts(ctx)
	if err != nil {
		return err
	}

	var created, updated int
	for _, b := range remote {
		if b.PlatformType != "" && b.PlatformType != services.PlatformType {
			continue
		}
		account := models.NewAccount(0, b.PlatformID, b.Name, b.Avatar)
		account.SetID(b.ID.String())
		account.SetAuthData(b.AuthData)
		account.SetExpired(b.IsExpired)

		_, isNew, err := r.accounts.CreateOrUpdate(account)
		if err != nil {
			r.logger.Warn("skipping backend account", "id", b.ID, "error", err)
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}
	return r.writePlain("✓ Pulled %d accounts (%d new, %d updated)\n", created+updated, created, updated)
}

// AccountsNotices prints one page of an account's system notifications as JSON.
func (r *Runner) AccountsNotices(ctx context.Context, cmd *cli.Command) error {
	account, err := r.account(cmd)
	if err != nil {
		return err
	}
	notices, err := r.gateway.ListNotifications(ctx, account.ID(), cmd.Int("begin"), cmd.Int("count"), cmd.Int("status"))
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", notices.Raw)
}
