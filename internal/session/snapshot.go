package session

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// AuthDataStore reads and writes the raw auth blob of an account.
type AuthDataStore interface {
	AuthData(accountID string) (string, error)
	SetAuthData(accountID, data string) error
}

// SnapshotStore owns the last-synced baseline of each account.
type SnapshotStore struct {
	store  AuthDataStore
	logger *log.Logger
}

// NewSnapshotStore creates a SnapshotStore backed by store.
func NewSnapshotStore(store AuthDataStore, logger *log.Logger) *SnapshotStore {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SnapshotStore{store: store, logger: logger}
}

// GetBaseline returns the stored baseline, or nil when the account has no usable blob.
func (s *SnapshotStore) GetBaseline(accountID string) *models.AuthSnapshot {
	data, err := s.store.AuthData(accountID)
	if err != nil {
		s.logger.Warn("Failed to read auth data", "account", accountID, "error", err)
		return nil
	}
	if data == "" {
		return nil
	}

	_, blob, err := models.ParseAuthBlob(data)
	if err != nil {
		s.logger.Warn("Ignoring malformed auth data", "account", accountID, "error", err)
		return nil
	}

	snapshot := blob.Snapshot()
	if snapshot.Cookies == nil {
		snapshot.Cookies = []models.Cookie{}
	}
	return &snapshot
}

// Commit overwrites the baseline with snapshot. Fields of the outer blob other than
// the partition payload (such as the token) are kept as they were.
func (s *SnapshotStore) Commit(accountID string, snapshot models.AuthSnapshot) error {
	outer := map[string]json.RawMessage{}
	if existing, err := s.store.AuthData(accountID); err == nil && existing != "" {
		if err := json.Unmarshal([]byte(existing), &outer); err != nil {
			s.logger.Warn("Replacing unreadable auth data", "account", accountID, "error", err)
			outer = map[string]json.RawMessage{}
		}
	}

	data, err := EncodeAuthBlob(outer, snapshot)
	if err != nil {
		return err
	}
	if err := s.store.SetAuthData(accountID, data); err != nil {
		return fmt.Errorf("failed to commit baseline for %s: %w", accountID, err)
	}
	return nil
}

// EncodeAuthBlob writes snapshot as the partition payload of outer and returns the encoded blob.
// A missing token field is written as an empty string.
func EncodeAuthBlob(outer map[string]json.RawMessage, snapshot models.AuthSnapshot) (string, error) {
	if snapshot.Cookies == nil {
		snapshot.Cookies = []models.Cookie{}
	}
	if snapshot.LocalStorage == nil {
		snapshot.LocalStorage = map[string]string{}
	}
	inner, err := json.Marshal(models.NewPartitionBlob(snapshot))
	if err != nil {
		return "", fmt.Errorf("encode partition payload: %w", err)
	}
	partition, err := json.Marshal(string(inner))
	if err != nil {
		return "", err
	}

	if outer == nil {
		outer = map[string]json.RawMessage{}
	}
	outer["partition"] = partition
	if _, ok := outer["token"]; !ok {
		outer["token"] = json.RawMessage(`""`)
	}

	data, err := json.Marshal(outer)
	if err != nil {
		return "", fmt.Errorf("encode auth blob: %w", err)
	}
	return string(data), nil
}
