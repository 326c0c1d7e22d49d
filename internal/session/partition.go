package session

import (
	"encoding/json"
	"fmt"
	"maps"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

// CookieStore is an isolated cookie jar per partition.
type CookieStore interface {
	Get(partition string) ([]models.Cookie, error)
	Set(partition, url string, cookie models.Cookie) error
	Remove(partition, url, name string) error
	Clear(partition string) error
}

// LocalStorageBridge reads and writes the local storage of a partition's page.
type LocalStorageBridge interface {
	Read(partition string) (map[string]string, error)
	Write(partition string, data map[string]string) error
}

// Manager captures and restores per-partition sessions.
//
// Different partitions never share state; callers serialize work on a single partition.
type Manager struct {
	cookies CookieStore
	storage LocalStorageBridge
	logger  *log.Logger

	mu      sync.Mutex
	pending map[string]map[string]string
}

// NewManager creates a Manager. storage may be nil when local storage is not captured.
func NewManager(cookies CookieStore, storage LocalStorageBridge, logger *log.Logger) *Manager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Manager{
		cookies: cookies,
		storage: storage,
		logger:  logger,
		pending: make(map[string]map[string]string),
	}
}

// Capture reads the partition's cookies, optionally restricted to domain and its subdomains,
// and the auth-relevant subset of its local storage.
func (m *Manager) Capture(partition, domain string) (models.AuthSnapshot, error) {
	cookies, err := m.cookies.Get(partition)
	if err != nil {
		return models.AuthSnapshot{}, fmt.Errorf("failed to read cookies for %s: %w", partition, err)
	}
	cookies = FilterCookies(cookies, domain)
	if cookies == nil {
		cookies = []models.Cookie{}
	}

	ls := map[string]string{}
	if m.storage != nil {
		data, err := m.storage.Read(partition)
		if err != nil {
			m.logger.Warn("Failed to read local storage", "partition", partition, "error", err)
		} else {
			ls = FilterAuthKeys(data)
		}
	}

	return models.AuthSnapshot{Cookies: cookies, LocalStorage: ls}, nil
}

// Serialize captures the partition and encodes it as a versioned partition payload.
func (m *Manager) Serialize(partition, domain string) (string, error) {
	snapshot, err := m.Capture(partition, domain)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(models.NewPartitionBlob(snapshot))
	if err != nil {
		return "", fmt.Errorf("encode partition payload: %w", err)
	}
	m.logger.Debug("Serialized partition", "partition", partition, "cookies", len(snapshot.Cookies), "bytes", len(data))
	return string(data), nil
}

type restoreBlob struct {
	Version      json.RawMessage   `json:"version"`
	Cookies      *[]models.Cookie  `json:"cookies"`
	LocalStorage map[string]string `json:"localStorage"`
}

// Restore sets every cookie of a serialized partition payload into partition and stages its
// local storage for the next [Manager.ConsumeForInjection]. The restored local storage is returned.
func (m *Manager) Restore(blob, partition string) (map[string]string, error) {
	var parsed restoreBlob
	if err := json.Unmarshal([]byte(blob), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidAuthBlob, err)
	}
	if !(models.PartitionBlob{Version: parsed.Version}).HasVersion() {
		return nil, fmt.Errorf("%w: missing version", shared.ErrInvalidAuthBlob)
	}
	if parsed.Cookies == nil {
		return nil, fmt.Errorf("%w: missing cookies", shared.ErrInvalidAuthBlob)
	}

	for _, c := range *parsed.Cookies {
		if c.Domain == "" || c.Name == "" {
			return nil, fmt.Errorf("%w: cookie without domain or name", shared.ErrInvalidAuthBlob)
		}
		if err := m.cookies.Set(partition, CookieURL(c), c); err != nil {
			return nil, fmt.Errorf("failed to set cookie %s on %s: %w", c.Name, partition, err)
		}
	}

	if len(parsed.LocalStorage) > 0 {
		if err := m.PrepareForInjection(partition, parsed.LocalStorage); err != nil {
			return nil, err
		}
	}

	m.logger.Info("Restored partition", "partition", partition, "cookies", len(*parsed.Cookies))
	return parsed.LocalStorage, nil
}

// RestoreAccount restores the partition payload held in an account's auth blob.
func (m *Manager) RestoreAccount(account *models.Account) (map[string]string, error) {
	if account.AuthData() == "" {
		return nil, fmt.Errorf("%w: account %s has no auth data", shared.ErrNotAuthenticated, account.ID())
	}
	var outer models.AuthBlob
	if err := json.Unmarshal([]byte(account.AuthData()), &outer); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidAuthBlob, err)
	}
	if outer.Partition == "" {
		return nil, fmt.Errorf("%w: missing partition payload", shared.ErrInvalidAuthBlob)
	}
	return m.Restore(outer.Partition, account.PartitionKey())
}

// Clear removes every cookie of partition and drops any staged local storage.
func (m *Manager) Clear(partition string) error {
	m.mu.Lock()
	delete(m.pending, partition)
	m.mu.Unlock()
	return m.cookies.Clear(partition)
}

// PrepareForInjection stages local storage for the next page opened in partition.
func (m *Manager) PrepareForInjection(partition string, data map[string]string) error {
	if partition == "" {
		return fmt.Errorf("%w: partition is required", shared.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[partition] = maps.Clone(data)
	return nil
}

// ConsumeForInjection returns and evicts the staged local storage of partition.
// A second call for the same staging returns false.
func (m *Manager) ConsumeForInjection(partition string) (map[string]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.pending[partition]
	if ok {
		delete(m.pending, partition)
	}
	return data, ok
}

// Inject writes staged local storage into the partition's page, if any was staged.
func (m *Manager) Inject(partition string) (bool, error) {
	if m.storage == nil {
		return false, nil
	}
	data, ok := m.ConsumeForInjection(partition)
	if !ok {
		return false, nil
	}
	if err := m.storage.Write(partition, data); err != nil {
		return false, fmt.Errorf("failed to inject local storage into %s: %w", partition, err)
	}
	return true, nil
}
