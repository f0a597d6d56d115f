package iam

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	repos := store.repos()

	result, err := seed(ctx, repos, testNS, "admin", "root-1")
	require.NoError(t, err)
	require.True(t, result.AccountCreated)
	require.True(t, result.NamespaceCreated)
	require.NotEmpty(t, result.AccountID)

	// One vocabulary node for the governing namespace, one per collection,
	// one per verb.
	assert.Equal(t, 1+len(abac.Collections)+len(abac.Verbs), result.EdgesCreated)
	// The self policy plus one wide policy per collection.
	assert.Equal(t, 1+len(abac.Collections), result.PoliciesCreated)

	t.Run("governing namespace is owned by the admin", func(t *testing.T) {
		namespace := store.namespaces[testNS]
		require.NotNil(t, namespace)
		assert.Equal(t, "iam", namespace.Label)
		assert.Equal(t, result.AccountID, namespace.AccountID)
		assert.True(t, namespace.Enabled)
	})

	t.Run("admin identity lives in the governing namespace", func(t *testing.T) {
		identity, err := repos.Identities.Get(ctx, testNS, "admin", "root-1")
		require.NoError(t, err)
		assert.Equal(t, result.AccountID, identity.AccountID)
	})

	t.Run("vocabulary edges are in place", func(t *testing.T) {
		namespaceURI := abac.NamespaceURI(testNS, testNS)
		assert.Contains(t, store.edges[models.RelationObject],
			*models.NewEdge(abac.TypeAttr(testNS, abac.CollectionPolicy), namespaceURI))
		assert.Contains(t, store.edges[models.RelationObject],
			*models.NewEdge(namespaceURI, abac.TypeAttr(testNS, abac.CollectionNamespace)))
		assert.Contains(t, store.edges[models.RelationAction],
			*models.NewEdge(abac.OperationAttr(testNS, abac.VerbList), abac.OperationAttr(testNS, abac.VerbAny)))
	})

	t.Run("rerun changes nothing", func(t *testing.T) {
		again, err := seed(ctx, repos, testNS, "admin", "root-1")
		require.NoError(t, err)
		assert.Equal(t, result.AccountID, again.AccountID)
		assert.False(t, again.AccountCreated)
		assert.False(t, again.NamespaceCreated)
		assert.Zero(t, again.EdgesCreated)
		assert.Zero(t, again.PoliciesCreated)
	})
}

// TestSeedSatisfiesGuard drives a guarded operation with the seeded rows only,
// proving the wide policies match through expansion.
func TestSeedSatisfiesGuard(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	result, err := seed(ctx, store.repos(), testNS, "admin", "root-1")
	require.NoError(t, err)

	svc := newTestService(store, nil)

	namespace, err := svc.CreateNamespace(ctx, result.AccountID, "media", "")
	require.NoError(t, err)
	assert.Equal(t, result.AccountID, namespace.AccountID)

	_, err = svc.ReadNamespace(ctx, "00000000-0000-4000-8000-00000000dead", testNS)
	assert.ErrorIs(t, err, abac.ErrForbidden)
}

func TestSeedRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	_, err := seed(ctx, store.repos(), testNS, "", "root-1")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = seed(ctx, store.repos(), testNS, "admin", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
