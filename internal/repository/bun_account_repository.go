package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// BunAccountRepository persists accounts using Bun.
type BunAccountRepository struct {
	db bun.IDB
}

// NewBunAccountRepository constructs a repository backed by Bun. It accepts
// bun.IDB so callers can scope it to a transaction.
func NewBunAccountRepository(db bun.IDB) AccountRepository {
	return &BunAccountRepository{db: db}
}

// Create inserts a new account row.
func (r *BunAccountRepository) Create(ctx context.Context, account *models.Account) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(account).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("account %s: %w", account.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByID fetches a non-deleted account.
func (r *BunAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	account := new(models.Account)
	err := r.db.NewSelect().
		Model(account).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

// SetEnabled toggles the enabled flag and stamps disabled_at accordingly.
func (r *BunAccountRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	q := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("enabled = ?", enabled).
		Where("id = ?", id).
		Where("deleted_at IS NULL")
	if enabled {
		q = q.Set("disabled_at = NULL")
	} else {
		q = q.Set("disabled_at = ?", time.Now())
	}

	result, err := q.Exec(ctx)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("account %s", id))
}

// SoftDelete tombstones the account.
func (r *BunAccountRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Account)(nil)).
		Set("deleted_at = ?", time.Now()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("account %s", id))
}

// requireAffected turns a zero-row write into ErrNotFound.
func requireAffected(result sql.Result, subject string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", subject, ErrNotFound)
	}
	return nil
}
