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

// BunIdentityRepository persists provider identities using Bun.
type BunIdentityRepository struct {
	db bun.IDB
}

// NewBunIdentityRepository constructs a repository backed by Bun.
func NewBunIdentityRepository(db bun.IDB) IdentityRepository {
	return &BunIdentityRepository{db: db}
}

// Create inserts a new identity row.
func (r *BunIdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(identity).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("identity %s: %w", identity, ErrAlreadyExists)
		}
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

// Get fetches an identity by its full key.
func (r *BunIdentityRepository) Get(ctx context.Context, provider, label, uid string) (*models.Identity, error) {
	identity := new(models.Identity)
	err := r.db.NewSelect().
		Model(identity).
		Where("provider = ?", provider).
		Where("label = ?", label).
		Where("uid = ?", uid).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity %s.%s.%s: %w", provider, label, uid, ErrNotFound)
		}
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return identity, nil
}

// Delete removes an identity row.
func (r *BunIdentityRepository) Delete(ctx context.Context, provider, label, uid string) error {
	result, err := r.db.NewDelete().
		Model((*models.Identity)(nil)).
		Where("provider = ?", provider).
		Where("label = ?", label).
		Where("uid = ?", uid).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("identity %s.%s.%s", provider, label, uid))
}

// ListByAccount pages over the identities mapped to an account, newest last.
func (r *BunIdentityRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Identity, error) {
	var identities []models.Identity
	err := r.db.NewSelect().
		Model(&identities).
		Where("account_id = ?", accountID).
		Order("created_at ASC", "provider ASC", "label ASC", "uid ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return identities, nil
}

// CountByAccount reports how many identities map to the account.
func (r *BunIdentityRepository) CountByAccount(ctx context.Context, accountID string) (int, error) {
	count, err := r.db.NewSelect().
		Model((*models.Identity)(nil)).
		Where("account_id = ?", accountID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count identities: %w", err)
	}
	return count, nil
}
