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

// BunNamespaceRepository persists namespaces using Bun.
type BunNamespaceRepository struct {
	db bun.IDB
}

// NewBunNamespaceRepository constructs a repository backed by Bun.
func NewBunNamespaceRepository(db bun.IDB) NamespaceRepository {
	return &BunNamespaceRepository{db: db}
}

// Create inserts a new namespace row. Labels are unique among non-deleted
// namespaces (partial index), so a live duplicate maps to ErrAlreadyExists.
func (r *BunNamespaceRepository) Create(ctx context.Context, ns *models.Namespace) error {
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(ns).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("namespace %q: %w", ns.Label, ErrAlreadyExists)
		}
		return fmt.Errorf("insert namespace: %w", err)
	}
	return nil
}

// GetByID fetches a non-deleted namespace.
func (r *BunNamespaceRepository) GetByID(ctx context.Context, id string) (*models.Namespace, error) {
	ns := new(models.Namespace)
	err := r.db.NewSelect().
		Model(ns).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("namespace %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("query namespace: %w", err)
	}
	return ns, nil
}

// GetByLabel fetches an enabled, non-deleted namespace by label.
func (r *BunNamespaceRepository) GetByLabel(ctx context.Context, label string) (*models.Namespace, error) {
	ns := new(models.Namespace)
	err := r.db.NewSelect().
		Model(ns).
		Where("label = ?", label).
		Where("enabled = ?", true).
		Where("deleted_at IS NULL").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("namespace %q: %w", label, ErrNotFound)
		}
		return nil, fmt.Errorf("query namespace by label: %w", err)
	}
	return ns, nil
}

// UpdateLabel renames a namespace.
func (r *BunNamespaceRepository) UpdateLabel(ctx context.Context, id, label string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Namespace)(nil)).
		Set("label = ?", label).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("namespace %q: %w", label, ErrAlreadyExists)
		}
		return fmt.Errorf("update namespace: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("namespace %s", id))
}

// SoftDelete tombstones the namespace.
func (r *BunNamespaceRepository) SoftDelete(ctx context.Context, id string) error {
	result, err := r.db.NewUpdate().
		Model((*models.Namespace)(nil)).
		Set("deleted_at = ?", time.Now()).
		Where("id = ?", id).
		Where("deleted_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}
	return requireAffected(result, fmt.Sprintf("namespace %s", id))
}

// ListByAccount pages over the non-deleted namespaces owned by an account.
func (r *BunNamespaceRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Namespace, error) {
	var namespaces []models.Namespace
	err := r.db.NewSelect().
		Model(&namespaces).
		Where("account_id = ?", accountID).
		Where("deleted_at IS NULL").
		Order("created_at ASC", "id ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	return namespaces, nil
}
