package services

import (
	"fmt"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/session"
	"github.com/desertthunder/mpsync/internal/shared"
)

// AccountGetter loads an account by id.
type AccountGetter interface {
	Get(id string) (*models.Account, error)
}

// AccountResolver resolves credentials from the auth blob stored on an account.
type AccountResolver struct {
	accounts AccountGetter
	now      func() time.Time
}

// NewAccountResolver creates an AccountResolver backed by accounts.
func NewAccountResolver(accounts AccountGetter) *AccountResolver {
	return &AccountResolver{accounts: accounts, now: time.Now}
}

// Resolve returns the token and cookies of an account. Accounts without a usable
// session yield [shared.ErrNotAuthenticated].
func (r *AccountResolver) Resolve(accountID string) (Credentials, error) {
	account, err := r.accounts.Get(accountID)
	if err != nil {
		return Credentials{}, err
	}
	return CredentialsFromAccount(account, r.now())
}

// CredentialsFromAccount extracts credentials from an account's auth blob.
func CredentialsFromAccount(account *models.Account, now time.Time) (Credentials, error) {
	if account.IsExpired() || account.AuthData() == "" {
		return Credentials{}, fmt.Errorf("%w: account %s has no active session", shared.ErrNotAuthenticated, account.ID())
	}
	outer, inner, err := models.ParseAuthBlob(account.AuthData())
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}
	creds := Credentials{Token: outer.Token, Cookies: inner.Cookies}
	if !session.HasRequiredCookies(creds.Cookies, session.RequiredLoginCookies...) {
		return Credentials{}, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrMissingCookies)
	}
	if session.AreCookiesExpired(creds.Cookies, now) {
		return Credentials{}, fmt.Errorf("%w: session cookies expired", shared.ErrNotAuthenticated)
	}
	return creds, nil
}
