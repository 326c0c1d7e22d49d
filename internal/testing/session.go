package testing

import (
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"

	"github.com/desertthunder/mpsync/internal/models"
)

// MemoryCookieStore is an in-memory cookie jar keyed by partition
type MemoryCookieStore struct {
	mu      sync.Mutex
	jars    map[string][]models.Cookie
	SetURLs []string
	SetErr  error
	GetErr  error
}

func NewMemoryCookieStore() *MemoryCookieStore {
	return &MemoryCookieStore{jars: make(map[string][]models.Cookie)}
}

func (m *MemoryCookieStore) Get(partition string) ([]models.Cookie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return append([]models.Cookie(nil), m.jars[partition]...), nil
}

func (m *MemoryCookieStore) Set(partition, rawURL string, cookie models.Cookie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.SetURLs = append(m.SetURLs, rawURL)
	jar := m.jars[partition]
	for i, c := range jar {
		if c.Domain == cookie.Domain && c.Path == cookie.Path && c.Name == cookie.Name {
			jar[i] = cookie
			return nil
		}
	}
	m.jars[partition] = append(jar, cookie)
	return nil
}

func (m *MemoryCookieStore) Remove(partition, rawURL, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	jar := m.jars[partition][:0]
	for _, c := range m.jars[partition] {
		if c.Name == name && strings.TrimPrefix(c.Domain, ".") == u.Hostname() {
			continue
		}
		jar = append(jar, c)
	}
	m.jars[partition] = jar
	return nil
}

func (m *MemoryCookieStore) Clear(partition string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jars, partition)
	return nil
}

// MemoryLocalStorage is an in-memory local storage bridge
type MemoryLocalStorage struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func NewMemoryLocalStorage() *MemoryLocalStorage {
	return &MemoryLocalStorage{data: make(map[string]map[string]string)}
}

func (m *MemoryLocalStorage) Read(partition string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.data[partition]), nil
}

func (m *MemoryLocalStorage) Write(partition string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[partition] == nil {
		m.data[partition] = make(map[string]string)
	}
	maps.Copy(m.data[partition], data)
	return nil
}

// MemoryAuthStore holds raw auth blobs keyed by account id
type MemoryAuthStore struct {
	mu     sync.Mutex
	Blobs  map[string]string
	Writes int
}

func NewMemoryAuthStore() *MemoryAuthStore {
	return &MemoryAuthStore{Blobs: make(map[string]string)}
}

func (m *MemoryAuthStore) AuthData(accountID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.Blobs[accountID]
	if !ok {
		return "", fmt.Errorf("account %s not found", accountID)
	}
	return data, nil
}

func (m *MemoryAuthStore) SetAuthData(accountID, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Blobs[accountID] = data
	m.Writes++
	return nil
}
