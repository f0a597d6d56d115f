package repository

import (
	"context"
	"time"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// AccountRepository exposes persistence operations for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	// GetByID fetches an account that has not been deleted.
	GetByID(ctx context.Context, id string) (*models.Account, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	// SoftDelete tombstones the account; subsequent reads return ErrNotFound.
	SoftDelete(ctx context.Context, id string) error
}

// IdentityRepository exposes persistence operations for provider identities.
type IdentityRepository interface {
	Create(ctx context.Context, identity *models.Identity) error
	Get(ctx context.Context, provider, label, uid string) (*models.Identity, error)
	Delete(ctx context.Context, provider, label, uid string) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Identity, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
}

// NamespaceRepository exposes persistence operations for namespaces.
type NamespaceRepository interface {
	Create(ctx context.Context, ns *models.Namespace) error
	// GetByID fetches a namespace that has not been deleted.
	GetByID(ctx context.Context, id string) (*models.Namespace, error)
	// GetByLabel fetches an enabled, non-deleted namespace by its label.
	// Used to resolve identity providers from the token endpoint path.
	GetByLabel(ctx context.Context, label string) (*models.Namespace, error)
	UpdateLabel(ctx context.Context, id, label string) error
	SoftDelete(ctx context.Context, id string) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]models.Namespace, error)
}

// RefreshTokenRepository exposes persistence operations for the per-account
// refresh-token signing state.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	GetByAccount(ctx context.Context, accountID string) (*models.RefreshToken, error)
	// ReplaceKeys swaps the whole key list, invalidating tokens signed with
	// any previous key.
	ReplaceKeys(ctx context.Context, accountID string, keys models.SecretKeys) error
	DeleteByAccount(ctx context.Context, accountID string) error
}

// EdgeRepository exposes persistence operations for the three relation graphs.
// Every method takes the relation explicitly; the tables share one shape.
type EdgeRepository interface {
	Create(ctx context.Context, rel models.Relation, edge *models.Edge) error
	Get(ctx context.Context, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error)
	Delete(ctx context.Context, rel models.Relation, inbound, outbound models.Attribute) error

	// SelectOutbound returns every edge whose inbound endpoint is one of the
	// seeds. This is the single step of the transitive expansion.
	SelectOutbound(ctx context.Context, rel models.Relation, seeds []models.Attribute) ([]models.Edge, error)
	// SelectNeighbors pages over the edges adjacent to seed: direction
	// outbound matches edges leaving the seed, inbound matches edges
	// arriving at it.
	SelectNeighbors(ctx context.Context, rel models.Relation, direction models.Direction, seed models.Attribute, limit, offset int) ([]models.Edge, error)
	// ListAll streams the whole relation, paged. Diagnostic use.
	ListAll(ctx context.Context, rel models.Relation, limit, offset int) ([]models.Edge, error)

	// DeleteByAttribute removes every edge touching the attribute on either
	// side, returning the number of rows removed.
	DeleteByAttribute(ctx context.Context, rel models.Relation, attr models.Attribute) (int64, error)
	// DeleteByNamespace removes every edge with either endpoint scoped to the
	// namespace, returning the number of rows removed.
	DeleteByNamespace(ctx context.Context, rel models.Relation, namespaceID string) (int64, error)
}

// PolicyRepository exposes persistence operations for policies.
type PolicyRepository interface {
	Create(ctx context.Context, policy *models.Policy) error
	Get(ctx context.Context, subject, object, action models.AttributeList, namespaceID string) (*models.Policy, error)
	Delete(ctx context.Context, subject, object, action models.AttributeList, namespaceID string) error

	SelectByNamespaces(ctx context.Context, namespaceIDs []string, limit, offset int) ([]models.Policy, error)
	// SelectActiveByNamespaces returns the policies whose validity window
	// contains now. The evaluator works over this set only.
	SelectActiveByNamespaces(ctx context.Context, namespaceIDs []string, now time.Time) ([]models.Policy, error)

	// DeleteBySubject purges every policy whose subject composite equals the
	// given list exactly, returning the number of rows removed.
	DeleteBySubject(ctx context.Context, subject models.AttributeList) (int64, error)
}
