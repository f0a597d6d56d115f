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

// BunPolicyRepository persists policies using Bun. The three composite
// columns hold canonical JSON, so binding an AttributeList as a query value
// compares the stored encoding byte for byte: componentwise, order-sensitive.
type BunPolicyRepository struct {
	db bun.IDB
}

// NewBunPolicyRepository constructs a repository backed by Bun.
func NewBunPolicyRepository(db bun.IDB) PolicyRepository {
	return &BunPolicyRepository{db: db}
}

// Create inserts a new policy row.
func (r *BunPolicyRepository) Create(ctx context.Context, policy *models.Policy) error {
	if len(policy.Subject) == 0 || len(policy.Object) == 0 || len(policy.Action) == 0 {
		return errors.New("validation failed: policy sides must be non-empty")
	}
	if policy.NamespaceID == "" {
		return errors.New("validation failed: namespace_id is required")
	}
	if policy.CreatedAt.IsZero() {
		policy.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().Model(policy).Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("policy: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

// Get fetches a policy by its full composite key.
func (r *BunPolicyRepository) Get(ctx context.Context, subject, object, action models.AttributeList, namespaceID string) (*models.Policy, error) {
	policy := new(models.Policy)
	err := matchPolicy(r.db.NewSelect().Model(policy), subject, object, action, namespaceID).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("policy: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("query policy: %w", err)
	}
	return policy, nil
}

// Delete removes a policy by its full composite key.
func (r *BunPolicyRepository) Delete(ctx context.Context, subject, object, action models.AttributeList, namespaceID string) error {
	result, err := r.db.NewDelete().
		Model((*models.Policy)(nil)).
		Where("subject = ?", subject).
		Where("object = ?", object).
		Where("action = ?", action).
		Where("namespace_id = ?", namespaceID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return requireAffected(result, "policy")
}

// SelectByNamespaces pages over the policies of the given namespaces.
func (r *BunPolicyRepository) SelectByNamespaces(ctx context.Context, namespaceIDs []string, limit, offset int) ([]models.Policy, error) {
	if len(namespaceIDs) == 0 {
		return nil, nil
	}

	var policies []models.Policy
	err := r.db.NewSelect().
		Model(&policies).
		Where("namespace_id IN (?)", bun.In(namespaceIDs)).
		Order(policyOrder...).
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	return policies, nil
}

// SelectActiveByNamespaces returns the policies whose validity window
// contains now.
func (r *BunPolicyRepository) SelectActiveByNamespaces(ctx context.Context, namespaceIDs []string, now time.Time) ([]models.Policy, error) {
	if len(namespaceIDs) == 0 {
		return nil, nil
	}

	var policies []models.Policy
	err := r.db.NewSelect().
		Model(&policies).
		Where("namespace_id IN (?)", bun.In(namespaceIDs)).
		Where("(not_before IS NULL OR not_before <= ?)", now).
		Where("(expired_at IS NULL OR expired_at > ?)", now).
		Order(policyOrder...).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select active policies: %w", err)
	}
	return policies, nil
}

// DeleteBySubject purges every policy carrying the exact subject composite.
func (r *BunPolicyRepository) DeleteBySubject(ctx context.Context, subject models.AttributeList) (int64, error) {
	result, err := r.db.NewDelete().
		Model((*models.Policy)(nil)).
		Where("subject = ?", subject).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete policies by subject: %w", err)
	}
	return result.RowsAffected()
}

// policyOrder pages policies oldest first; the key columns only break ties
// between rows inserted within the same timestamp.
var policyOrder = []string{"created_at ASC", "namespace_id ASC", "subject ASC", "object ASC", "action ASC"}

func matchPolicy(q *bun.SelectQuery, subject, object, action models.AttributeList, namespaceID string) *bun.SelectQuery {
	return q.
		Where("subject = ?", subject).
		Where("object = ?", object).
		Where("action = ?", action).
		Where("namespace_id = ?", namespaceID)
}
