package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mpsync/internal/models"
	"github.com/desertthunder/mpsync/internal/shared"
)

const accountColumns = `id, sequence, platform_id, name, avatar, partition_key, auth_data, is_expired, created_at, updated_at, deleted_at`

// AccountRepository implements models.Repository[*models.Account] and is the store of
// each account's auth blob.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account with a generated sequence. An id already set on the account
// (for example one assigned by the remote account store) is kept.
func (r *AccountRepository) Create(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "accounts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}
	if account.ID() == "" {
		account.SetID(shared.GenerateID())
	}
	account.SetSequence(sequence)

	query := `
		INSERT INTO accounts (id, sequence, platform_id, name, avatar, partition_key, auth_data, is_expired, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		account.ID(),
		sequence,
		account.PlatformID(),
		account.Name(),
		account.Avatar(),
		account.PartitionKey(),
		nullString(account.AuthData()),
		account.IsExpired(),
		account.CreatedAt(),
		account.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}

	return nil
}

// Get retrieves an account by ID, excluding soft-deleted accounts
func (r *AccountRepository) Get(id string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, id))
}

// GetByPlatformID retrieves an account by its platform identifier
func (r *AccountRepository) GetByPlatformID(platformID string) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE platform_id = ? AND deleted_at IS NULL`
	return r.scan(r.db.QueryRow(query, platformID))
}

// Update modifies an existing account, including its auth blob and expired flag
func (r *AccountRepository) Update(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	account.SetUpdatedAt(now)

	query := `
		UPDATE accounts
		SET name = ?, avatar = ?, partition_key = ?, auth_data = ?, is_expired = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		account.Name(),
		account.Avatar(),
		account.PartitionKey(),
		nullString(account.AuthData()),
		account.IsExpired(),
		now,
		account.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, account.ID()))
}

// CreateOrUpdate stores a freshly captured login. An existing account with the same
// platform id takes the new name, avatar and auth blob and is no longer expired.
func (r *AccountRepository) CreateOrUpdate(account *models.Account) (*models.Account, bool, error) {
	existing, err := r.GetByPlatformID(account.PlatformID())
	switch {
	case errors.Is(err, shared.ErrAccountNotFound):
		if err := r.Create(account); err != nil {
			return nil, false, err
		}
		return account, true, nil
	case err != nil:
		return nil, false, err
	}

	existing.SetName(account.Name())
	if account.Avatar() != "" {
		existing.SetAvatar(account.Avatar())
	}
	if account.AuthData() != "" {
		existing.SetAuthData(account.AuthData())
		existing.SetExpired(false)
	}
	if err := r.Update(existing); err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// Invalidate clears an account's auth blob and marks it expired
func (r *AccountRepository) Invalidate(id string) error {
	result, err := r.db.Exec(`
		UPDATE accounts
		SET auth_data = NULL, is_expired = 1, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to invalidate account: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id))
}

// UpdateAuth replaces an account's auth blob and clears its expired flag
func (r *AccountRepository) UpdateAuth(id, data string) error {
	result, err := r.db.Exec(`
		UPDATE accounts
		SET auth_data = ?, is_expired = 0, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, nullString(data), time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update auth data: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id))
}

// AuthData returns the raw auth blob, empty when the account has none.
func (r *AccountRepository) AuthData(id string) (string, error) {
	var data sql.NullString
	err := r.db.QueryRow(`SELECT auth_data FROM accounts WHERE id = ? AND deleted_at IS NULL`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read auth data: %w", err)
	}
	return data.String, nil
}

// SetAuthData stores the raw auth blob
func (r *AccountRepository) SetAuthData(id, data string) error {
	return r.UpdateAuth(id, data)
}

// Delete soft-deletes an account by ID
func (r *AccountRepository) Delete(id string) error {
	result, err := r.db.Exec(`
		UPDATE accounts
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return expectOne(result, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id))
}

// List retrieves accounts ordered by sequence. Supported criteria: "expired" (bool).
func (r *AccountRepository) List(criteria map[string]any) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE deleted_at IS NULL`
	args := []any{}

	if expired, ok := criteria["expired"].(bool); ok {
		query += " AND is_expired = ?"
		args = append(args, expired)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*models.Account{}
	for rows.Next() {
		account, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return accounts, nil
}

func (r *AccountRepository) scan(row scanner) (*models.Account, error) {
	var (
		id           string
		sequence     int
		platformID   string
		name         string
		avatar       string
		partitionKey string
		authData     sql.NullString
		expired      bool
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
	)

	err := row.Scan(&id, &sequence, &platformID, &name, &avatar, &partitionKey, &authData, &expired, &createdAt, &updatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	account := models.NewAccount(sequence, platformID, name, avatar)
	account.SetID(id)
	account.SetPartitionKey(partitionKey)
	account.SetAuthData(authData.String)
	account.SetExpired(expired)
	account.SetCreatedAt(createdAt)
	account.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		account.SetDeletedAt(&deletedAt.Time)
	}

	return account, nil
}
