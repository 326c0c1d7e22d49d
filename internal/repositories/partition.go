package repositories

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
)

// CookieRepository is a persistent per-partition cookie jar. It implements
// session.CookieStore so captured sessions survive restarts.
type CookieRepository struct {
	db *sql.DB
}

// NewCookieRepository creates a new CookieRepository with the given database connection
func NewCookieRepository(db *sql.DB) *CookieRepository {
	return &CookieRepository{db: db}
}

// Get returns every cookie of a partition
func (r *CookieRepository) Get(partition string) ([]models.Cookie, error) {
	rows, err := r.db.Query(`
		SELECT domain, path, name, value, expiration_date, secure, http_only
		FROM partition_cookies
		WHERE partition = ?
		ORDER BY domain, path, name
	`, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to query cookies: %w", err)
	}
	defer rows.Close()

	cookies := []models.Cookie{}
	for rows.Next() {
		var (
			c       models.Cookie
			expires sql.NullFloat64
		)
		if err := rows.Scan(&c.Domain, &c.Path, &c.Name, &c.Value, &expires, &c.Secure, &c.HTTPOnly); err != nil {
			return nil, fmt.Errorf("failed to scan cookie: %w", err)
		}
		if expires.Valid {
			v := expires.Float64
			c.ExpirationDate = &v
		}
		cookies = append(cookies, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cookies, nil
}

// Set inserts or replaces a cookie. A cookie without a domain takes the host of rawURL.
func (r *CookieRepository) Set(partition, rawURL string, cookie models.Cookie) error {
	if cookie.Domain == "" {
		u, err := url.Parse(rawURL)
		if err != nil || u.Hostname() == "" {
			return fmt.Errorf("cookie %s has no domain and url %q has no host", cookie.Name, rawURL)
		}
		cookie.Domain = u.Hostname()
	}
	if cookie.Path == "" {
		cookie.Path = "/"
	}

	var expires sql.NullFloat64
	if cookie.ExpirationDate != nil {
		expires = sql.NullFloat64{Float64: *cookie.ExpirationDate, Valid: true}
	}

	_, err := r.db.Exec(`
		INSERT INTO partition_cookies (partition, domain, path, name, value, expiration_date, secure, http_only, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (partition, domain, path, name) DO UPDATE SET
			value = excluded.value,
			expiration_date = excluded.expiration_date,
			secure = excluded.secure,
			http_only = excluded.http_only,
			updated_at = excluded.updated_at
	`, partition, cookie.Domain, cookie.Path, cookie.Name, cookie.Value, expires, cookie.Secure, cookie.HTTPOnly, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set cookie: %w", err)
	}
	return nil
}

// Remove deletes the cookies named name that belong to the host of rawURL, with or
// without a leading dot on their domain.
func (r *CookieRepository) Remove(partition, rawURL, name string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid cookie url: %w", err)
	}
	host := strings.ToLower(u.Hostname())

	_, err = r.db.Exec(`
		DELETE FROM partition_cookies
		WHERE partition = ? AND name = ? AND (domain = ? OR domain = ?)
	`, partition, name, host, "."+host)
	if err != nil {
		return fmt.Errorf("failed to remove cookie: %w", err)
	}
	return nil
}

// Clear empties a partition's cookie jar
func (r *CookieRepository) Clear(partition string) error {
	if _, err := r.db.Exec(`DELETE FROM partition_cookies WHERE partition = ?`, partition); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	return nil
}

// Partitions lists partitions that hold at least one cookie
func (r *CookieRepository) Partitions() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT partition FROM partition_cookies ORDER BY partition`)
	if err != nil {
		return nil, fmt.Errorf("failed to query partitions: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LocalStorageRepository persists each partition's local storage. It implements
// session.LocalStorageBridge.
type LocalStorageRepository struct {
	db *sql.DB
}

// NewLocalStorageRepository creates a new LocalStorageRepository with the given database connection
func NewLocalStorageRepository(db *sql.DB) *LocalStorageRepository {
	return &LocalStorageRepository{db: db}
}

// Read returns a partition's local storage, empty when nothing was written
func (r *LocalStorageRepository) Read(partition string) (map[string]string, error) {
	rows, err := r.db.Query(`SELECT key, value FROM partition_local_storage WHERE partition = ?`, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to query local storage: %w", err)
	}
	defer rows.Close()

	data := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan local storage: %w", err)
		}
		data[k] = v
	}
	return data, rows.Err()
}

// Write merges data into a partition's local storage
func (r *LocalStorageRepository) Write(partition string, data map[string]string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO partition_local_storage (partition, key, value) VALUES (?, ?, ?)
		ON CONFLICT (partition, key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare local storage write: %w", err)
	}
	defer stmt.Close()

	for k, v := range data {
		if _, err := stmt.Exec(partition, k, v); err != nil {
			return fmt.Errorf("failed to write local storage key %s: %w", k, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit local storage: %w", err)
	}
	return nil
}

// Clear removes a partition's local storage
func (r *LocalStorageRepository) Clear(partition string) error {
	if _, err := r.db.Exec(`DELETE FROM partition_local_storage WHERE partition = ?`, partition); err != nil {
		return fmt.Errorf("failed to clear local storage: %w", err)
	}
	return nil
}
