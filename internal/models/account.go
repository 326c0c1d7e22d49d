package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Account identifies a managed identity on the publishing platform.
//
// The auth blob is the serialized session (see [AuthBlob]); clearing it and setting the
// expired flag invalidates the account without deleting it.
type Account struct {
	id           string
	sequence     int
	platformID   string
	name         string
	avatar       string
	partitionKey string
	authData     string
	expired      bool
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

type accountFields struct {
	PlatformID   string `validate:"required,max=128"`
	Name         string `validate:"required,max=128"`
	Avatar       string `validate:"omitempty,url"`
	PartitionKey string `validate:"required"`
}

// NewAccount creates an account. The partition key defaults to "persist:account_<platformID>".
func NewAccount(sequence int, platformID, name, avatar string) *Account {
	now := time.Now()
	return &Account{
		sequence:     sequence,
		platformID:   platformID,
		name:         name,
		avatar:       avatar,
		partitionKey: "persist:account_" + platformID,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (a *Account) ID() string            { return a.id }
func (a *Account) Sequence() int         { return a.sequence }
func (a *Account) PlatformID() string    { return a.platformID }
func (a *Account) Name() string          { return a.name }
func (a *Account) Avatar() string        { return a.avatar }
func (a *Account) PartitionKey() string  { return a.partitionKey }
func (a *Account) AuthData() string      { return a.authData }
func (a *Account) IsExpired() bool       { return a.expired }
func (a *Account) CreatedAt() time.Time  { return a.createdAt }
func (a *Account) UpdatedAt() time.Time  { return a.updatedAt }
func (a *Account) DeletedAt() *time.Time { return a.deletedAt }

func (a *Account) SetID(id string)            { a.id = id }
func (a *Account) SetSequence(seq int)        { a.sequence = seq }
func (a *Account) SetName(name string)        { a.name = name }
func (a *Account) SetAvatar(avatar string)    { a.avatar = avatar }
func (a *Account) SetPartitionKey(key string) { a.partitionKey = key }
func (a *Account) SetAuthData(data string)    { a.authData = data }
func (a *Account) SetExpired(expired bool)    { a.expired = expired }
func (a *Account) SetCreatedAt(t time.Time)   { a.createdAt = t }
func (a *Account) SetUpdatedAt(t time.Time)   { a.updatedAt = t }
func (a *Account) SetDeletedAt(t *time.Time)  { a.deletedAt = t }

// Invalidate clears the stored session and marks the account expired.
func (a *Account) Invalidate() {
	a.authData = ""
	a.expired = true
}

// Validate checks required fields.
func (a *Account) Validate() error {
	err := validate.Struct(accountFields{
		PlatformID:   a.platformID,
		Name:         a.name,
		Avatar:       a.avatar,
		PartitionKey: a.partitionKey,
	})
	if err != nil {
		return fmt.Errorf("invalid account: %w", err)
	}
	return nil
}

// MarshalJSON renders the account without its auth blob.
func (a *Account) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID           string    `json:"id"`
		PlatformID   string    `json:"platform_id"`
		Name         string    `json:"name"`
		Avatar       string    `json:"avatar,omitempty"`
		PartitionKey string    `json:"partition"`
		HasAuth      bool      `json:"has_auth"`
		Expired      bool      `json:"is_expired"`
		UpdatedAt    time.Time `json:"updated_at"`
	}{
		ID:           a.id,
		PlatformID:   a.platformID,
		Name:         a.name,
		Avatar:       a.avatar,
		PartitionKey: a.partitionKey,
		HasAuth:      a.authData != "",
		Expired:      a.expired,
		UpdatedAt:    a.updatedAt,
	})
}
