package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Cookie is one browser cookie as captured from a partition.
//
// ExpirationDate is seconds since the epoch; nil means a session cookie.
type Cookie struct {
	Domain         string   `json:"domain"`
	Path           string   `json:"path,omitempty"`
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	ExpirationDate *float64 `json:"expirationDate,omitempty"`
	Secure         bool     `json:"secure,omitempty"`
	HTTPOnly       bool     `json:"httpOnly,omitempty"`
}

// Ref returns the identity of the cookie without its value.
func (c Cookie) Ref() CookieRef {
	return CookieRef{Domain: c.Domain, Path: c.Path, Name: c.Name}
}

// CookieRef identifies a cookie by domain, path and name.
type CookieRef struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Name   string `json:"name"`
}

// AuthSnapshot is the authentication state of one partition at a point in time.
type AuthSnapshot struct {
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage"`
}

// CookieDiff partitions cookie changes between two snapshots.
type CookieDiff struct {
	Added    []Cookie    `json:"added"`
	Modified []Cookie    `json:"modified"`
	Removed  []CookieRef `json:"removed"`
}

// LocalStorageDiff partitions local storage changes between two snapshots.
type LocalStorageDiff struct {
	Added    map[string]string `json:"added"`
	Modified map[string]string `json:"modified"`
	Removed  []string          `json:"removed"`
}

// AuthDiff is the incremental change sent to the account store.
type AuthDiff struct {
	Cookies      CookieDiff       `json:"cookies"`
	LocalStorage LocalStorageDiff `json:"localStorage"`
}

// CurrentBlobVersion is written into every new [PartitionBlob].
var CurrentBlobVersion = json.RawMessage("1")

// PartitionBlob is the versioned, serialized form of an [AuthSnapshot].
//
// Older captures wrote the version as a string ("1.0") and newer ones as a number,
// so the raw value is kept and only its presence is checked.
type PartitionBlob struct {
	Version      json.RawMessage   `json:"version,omitempty"`
	Cookies      []Cookie          `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage,omitempty"`
}

// NewPartitionBlob wraps a snapshot with the current version.
func NewPartitionBlob(s AuthSnapshot) PartitionBlob {
	return PartitionBlob{Version: CurrentBlobVersion, Cookies: s.Cookies, LocalStorage: s.LocalStorage}
}

// HasVersion reports whether the blob carried a non-null version.
func (b PartitionBlob) HasVersion() bool {
	v := bytes.TrimSpace(b.Version)
	return len(v) > 0 && !bytes.Equal(v, []byte("null")) && !bytes.Equal(v, []byte(`""`))
}

// Snapshot returns the blob contents as an [AuthSnapshot].
func (b PartitionBlob) Snapshot() AuthSnapshot {
	ls := b.LocalStorage
	if ls == nil {
		ls = map[string]string{}
	}
	return AuthSnapshot{Cookies: b.Cookies, LocalStorage: ls}
}

// AuthBlob is the outer auth record stored on an [Account].
//
// Partition holds a JSON-encoded [PartitionBlob]; Token is carried through unchanged.
type AuthBlob struct {
	Partition string `json:"partition"`
	Token     string `json:"token,omitempty"`
}

// ParseAuthBlob decodes the outer blob and its partition payload.
func ParseAuthBlob(data string) (AuthBlob, PartitionBlob, error) {
	var outer AuthBlob
	var inner PartitionBlob
	if data == "" {
		return outer, inner, fmt.Errorf("empty auth blob")
	}
	if err := json.Unmarshal([]byte(data), &outer); err != nil {
		return outer, inner, fmt.Errorf("decode auth blob: %w", err)
	}
	if outer.Partition == "" {
		return outer, inner, fmt.Errorf("auth blob has no partition payload")
	}
	if err := json.Unmarshal([]byte(outer.Partition), &inner); err != nil {
		return outer, inner, fmt.Errorf("decode partition payload: %w", err)
	}
	return outer, inner, nil
}
