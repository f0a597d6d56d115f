package iam

import (
	"context"
	"errors"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// ErrInvalidArgument rejects requests that are well-formed JSON but violate a
// domain rule (empty policy side, missing filter, limit over the ceiling).
// The transport layer maps it to a BadRequest response.
var ErrInvalidArgument = errors.New("invalid argument")

// TokenGrant is the response payload of the token endpoints. Fields are
// omitted when the flow does not produce them: refresh returns no refresh
// token, revoke returns nothing else.
type TokenGrant struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Service provides every identity and access management operation behind the
// RPC and token endpoints.
//
// All guarded methods take the caller's account id as resolved by the
// authentication middleware; the empty string is an anonymous caller and is
// refused before any store access. Mutations run their guard check and the
// write in one transaction, so a successful call is observed all-or-nothing.
type Service interface {
	// =========================================================================
	// Authorization
	// =========================================================================

	// Authorize answers an application's access question: expand the three
	// sides, fetch the active policies of the given namespaces, allow iff some
	// policy's composites are contained in the closures. Requires an
	// authenticated caller but no policy gate of its own.
	Authorize(ctx context.Context, caller, subjectID string, object, action models.AttributeList, namespaceIDs []string) (bool, error)

	// =========================================================================
	// Accounts & identities
	// =========================================================================

	// ReadAccount fetches a non-deleted account.
	ReadAccount(ctx context.Context, caller, id string) (*models.Account, error)

	// SetAccountEnabled toggles the enabled flag. Disabled accounts keep their
	// identities and policies but are refused the token lifecycle.
	SetAccountEnabled(ctx context.Context, caller, id string, enabled bool) (*models.Account, error)

	// DeleteAccount tombstones the account and purges policies whose subject
	// is exactly the account's uri, in one transaction.
	DeleteAccount(ctx context.Context, caller, id string) error

	// CreateIdentity registers a provider identity by hand. Unlike the token
	// flow's upsert it fails with ErrAlreadyExists when the triple is taken.
	CreateIdentity(ctx context.Context, caller, provider, label, uid string) (*models.Identity, error)

	// ReadIdentity fetches an identity by its (provider, label, uid) triple.
	ReadIdentity(ctx context.Context, caller, provider, label, uid string) (*models.Identity, error)

	// DeleteIdentity removes the identity and its derived subject edges. When
	// it was the account's last identity the account is tombstoned in the same
	// transaction: refresh-token record deleted, subject policies purged, all
	// edges touching the account uri dropped.
	DeleteIdentity(ctx context.Context, caller, provider, label, uid string) error

	// ListIdentities pages the identities of one account.
	ListIdentities(ctx context.Context, caller, accountID string, limit, offset int) ([]models.Identity, error)

	// =========================================================================
	// Namespaces
	// =========================================================================

	// CreateNamespace inserts a namespace, links it into the vocabulary
	// (object edge namespace-uri -> type:namespace) and seeds the owner policy,
	// in one transaction. The owner is the caller unless accountID names
	// another account.
	CreateNamespace(ctx context.Context, caller, label, accountID string) (*models.Namespace, error)

	// ReadNamespace fetches a non-deleted namespace.
	ReadNamespace(ctx context.Context, caller, id string) (*models.Namespace, error)

	// UpdateNamespaceLabel renames a namespace. Labels are unique among active
	// namespaces.
	UpdateNamespaceLabel(ctx context.Context, caller, id, label string) (*models.Namespace, error)

	// DeleteNamespace tombstones the namespace and purges every graph edge
	// with an endpoint in it, in one transaction.
	DeleteNamespace(ctx context.Context, caller, id string) error

	// ListNamespaces pages the namespaces owned by one account.
	ListNamespaces(ctx context.Context, caller, accountID string, limit, offset int) ([]models.Namespace, error)

	// =========================================================================
	// Attribute graph
	// =========================================================================

	// CreateEdge inserts a directed edge into one of the three relations. The
	// guard tries both endpoint namespaces and admits the call if either
	// passes.
	CreateEdge(ctx context.Context, caller string, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error)

	// ReadEdge fetches one edge by its endpoints.
	ReadEdge(ctx context.Context, caller string, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error)

	// DeleteEdge removes one edge by its endpoints.
	DeleteEdge(ctx context.Context, caller string, rel models.Relation, inbound, outbound models.Attribute) error

	// ListClosure pages the transitive outbound closure of one attribute, the
	// attribute itself included, in discovery order.
	ListClosure(ctx context.Context, caller string, rel models.Relation, seed models.Attribute, limit, offset int) ([]models.Attribute, error)

	// TreeEdges pages the direct neighbors of one attribute in the given
	// direction.
	TreeEdges(ctx context.Context, caller string, rel models.Relation, seed models.Attribute, direction models.Direction, limit, offset int) ([]models.Edge, error)

	// =========================================================================
	// Policies
	// =========================================================================

	// CreatePolicy stores a policy. All three composites must be non-empty: an
	// empty side would otherwise never match and only breed dead rows.
	CreatePolicy(ctx context.Context, caller string, policy *models.Policy) (*models.Policy, error)

	// ReadPolicy fetches a policy by its full composite key.
	ReadPolicy(ctx context.Context, caller string, subject, object, action models.AttributeList, namespaceID string) (*models.Policy, error)

	// DeletePolicy removes a policy by its full composite key.
	DeletePolicy(ctx context.Context, caller string, subject, object, action models.AttributeList, namespaceID string) error

	// ListPolicies pages the policies of the given namespaces. The caller must
	// pass the guard in every listed namespace.
	ListPolicies(ctx context.Context, caller string, namespaceIDs []string, limit, offset int) ([]models.Policy, error)

	// =========================================================================
	// Token lifecycle
	// =========================================================================

	// RetrieveToken exchanges a provider-signed client token for an access and
	// refresh token pair. client is the "{provider}.{label}" path segment;
	// unknown identities are registered on the fly (account, refresh-token
	// record and derived edges included).
	RetrieveToken(ctx context.Context, client, clientToken string, expiresIn int) (*TokenGrant, error)

	// RefreshToken mints a new access token against a verified refresh token.
	// id is the account uuid or "me", which resolves through the token's own
	// subject claim; the requested lifetime is clamped to the ceiling.
	RefreshToken(ctx context.Context, id, refreshToken string, expiresIn int) (*TokenGrant, error)

	// RevokeToken rotates the account's refresh secret and returns a refresh
	// token signed with the new one. Every previously issued refresh token
	// dies with the rotation.
	RevokeToken(ctx context.Context, id, refreshToken string) (*TokenGrant, error)
}
