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

// BunRefreshTokenRepository persists refresh-token signing state using Bun.
type BunRefreshTokenRepository struct {
	db bun.IDB
}

// NewBunRefreshTokenRepository constructs a repository backed by Bun.
func NewBunRefreshTokenRepository(db bun.IDB) RefreshTokenRepository {
	return &BunRefreshTokenRepository{db: db}
}

// Create inserts the signing state for a new account.
func (r *BunRefreshTokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(token).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("refresh token for account %s: %w", token.AccountID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetByAccount fetches the signing state for an account.
func (r *BunRefreshTokenRepository) GetByAccount(ctx context.Context, accountID string) (*models.RefreshToken, error) {
	token := new(models.RefreshToken)
	err := r.db.NewSelect().
		Model(token).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refresh token for account %s: %w", accountID, ErrNotFound)
		}
		return nil, fmt.Errorf("query refresh token: %w", err)
	}
	return token, nil
}

// ReplaceKeys swaps the key list. Tokens signed with any previous key stop
// verifying the moment this commits.
func (r *BunRefreshTokenRepository) ReplaceKeys(ctx context.Context, accountID string, keys models.SecretKeys) error {
	result, err := r.db.NewUpdate().
		Model((*models.RefreshToken)(nil)).
		Set("keys = ?", keys).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("rotate refresh keys: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("refresh token for account %s", accountID))
}

// DeleteByAccount removes the signing state. Used by the account cascade.
func (r *BunRefreshTokenRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.NewDelete().
		Model((*models.RefreshToken)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
