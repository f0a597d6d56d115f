package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

func testAttr(namespaceID, key, value string) models.Attribute {
	return models.Attribute{NamespaceID: namespaceID, Key: key, Value: value}
}

func TestBunEdgeRepository_CRUD(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	ns := uuid.NewString()
	member := testAttr(ns, "uri", "account/41")
	group := testAttr(ns, "group", "admins")

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, models.NewEdge(member, group)))

		edge, err := repo.Get(ctx, models.RelationSubject, member, group)
		require.NoError(t, err)
		assert.Equal(t, member, edge.Inbound())
		assert.Equal(t, group, edge.Outbound())
		assert.NotZero(t, edge.CreatedAt)
	})

	t.Run("relations are separate tables", func(t *testing.T) {
		_, err := repo.Get(ctx, models.RelationObject, member, group)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate endpoints", func(t *testing.T) {
		err := repo.Create(ctx, models.RelationSubject, models.NewEdge(member, group))
		assert.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("reverse edge is distinct", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, models.NewEdge(group, member)))
	})

	t.Run("self edge is storable", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, models.NewEdge(member, member)))
	})

	t.Run("incomplete endpoints", func(t *testing.T) {
		err := repo.Create(ctx, models.RelationSubject, models.NewEdge(testAttr(ns, "uri", ""), group))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation failed")
	})

	t.Run("unknown relation", func(t *testing.T) {
		err := repo.Create(ctx, models.Relation("role"), models.NewEdge(member, group))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown relation")
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.Delete(ctx, models.RelationSubject, member, group))
		_, err := repo.Get(ctx, models.RelationSubject, member, group)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("delete missing", func(t *testing.T) {
		err := repo.Delete(ctx, models.RelationSubject, member, group)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestBunEdgeRepository_SelectOutbound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	ns := uuid.NewString()
	alice := testAttr(ns, "uri", "account/alice")
	bob := testAttr(ns, "uri", "account/bob")
	staff := testAttr(ns, "group", "staff")
	admins := testAttr(ns, "group", "admins")

	for _, edge := range []*models.Edge{
		models.NewEdge(alice, staff),
		models.NewEdge(alice, admins),
		models.NewEdge(bob, staff),
		models.NewEdge(staff, admins),
	} {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, edge))
	}

	t.Run("single seed", func(t *testing.T) {
		edges, err := repo.SelectOutbound(ctx, models.RelationSubject, []models.Attribute{bob})
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, staff, edges[0].Outbound())
	})

	t.Run("multiple seeds", func(t *testing.T) {
		edges, err := repo.SelectOutbound(ctx, models.RelationSubject, []models.Attribute{alice, staff})
		require.NoError(t, err)
		assert.Len(t, edges, 3)
	})

	t.Run("no seeds", func(t *testing.T) {
		edges, err := repo.SelectOutbound(ctx, models.RelationSubject, nil)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})

	t.Run("seed without outbound edges", func(t *testing.T) {
		edges, err := repo.SelectOutbound(ctx, models.RelationSubject, []models.Attribute{admins})
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func TestBunEdgeRepository_SelectNeighbors(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	ns := uuid.NewString()
	group := testAttr(ns, "group", "staff")
	parent := testAttr(ns, "group", "employees")
	members := []models.Attribute{
		testAttr(ns, "uri", "account/alice"),
		testAttr(ns, "uri", "account/bob"),
		testAttr(ns, "uri", "account/carol"),
	}

	for _, member := range members {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, models.NewEdge(member, group)))
	}
	require.NoError(t, repo.Create(ctx, models.RelationSubject, models.NewEdge(group, parent)))

	t.Run("inbound lists members", func(t *testing.T) {
		edges, err := repo.SelectNeighbors(ctx, models.RelationSubject, models.DirectionInbound, group, 10, 0)
		require.NoError(t, err)
		assert.Len(t, edges, 3)
	})

	t.Run("outbound lists groups", func(t *testing.T) {
		edges, err := repo.SelectNeighbors(ctx, models.RelationSubject, models.DirectionOutbound, group, 10, 0)
		require.NoError(t, err)
		require.Len(t, edges, 1)
		assert.Equal(t, parent, edges[0].Outbound())
	})

	t.Run("pages deterministically", func(t *testing.T) {
		first, err := repo.SelectNeighbors(ctx, models.RelationSubject, models.DirectionInbound, group, 2, 0)
		require.NoError(t, err)
		require.Len(t, first, 2)
		assert.Equal(t, members[0], first[0].Inbound())
		assert.Equal(t, members[1], first[1].Inbound())

		second, err := repo.SelectNeighbors(ctx, models.RelationSubject, models.DirectionInbound, group, 2, 2)
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, members[2], second[0].Inbound())
	})

	t.Run("unknown direction", func(t *testing.T) {
		_, err := repo.SelectNeighbors(ctx, models.RelationSubject, models.Direction("sideways"), group, 10, 0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown direction")
	})
}

func TestBunEdgeRepository_OrderedByAge(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	ns := uuid.NewString()
	group := testAttr(ns, "group", "staff")
	now := time.Now().UTC()

	// The older member sorts after the newer one on every key column, so an
	// age-ordered page cannot agree with key order.
	older := models.NewEdge(testAttr(ns, "uri", "account/zoe"), group)
	older.CreatedAt = now.Add(-time.Hour)
	newer := models.NewEdge(testAttr(ns, "uri", "account/abe"), group)
	newer.CreatedAt = now

	require.NoError(t, repo.Create(ctx, models.RelationSubject, newer))
	require.NoError(t, repo.Create(ctx, models.RelationSubject, older))

	neighbors, err := repo.SelectNeighbors(ctx, models.RelationSubject, models.DirectionInbound, group, 10, 0)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, older.Inbound(), neighbors[0].Inbound())
	assert.Equal(t, newer.Inbound(), neighbors[1].Inbound())

	all, err := repo.ListAll(ctx, models.RelationSubject, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, older.Inbound(), all[0].Inbound())
}

func TestBunEdgeRepository_ListAll(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	ns := uuid.NewString()
	group := testAttr(ns, "group", "staff")
	for _, value := range []string{"account/alice", "account/bob", "account/carol"} {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, models.NewEdge(testAttr(ns, "uri", value), group)))
	}

	t.Run("zero limit returns everything", func(t *testing.T) {
		edges, err := repo.ListAll(ctx, models.RelationSubject, 0, 0)
		require.NoError(t, err)
		assert.Len(t, edges, 3)
	})

	t.Run("pages", func(t *testing.T) {
		edges, err := repo.ListAll(ctx, models.RelationSubject, 2, 2)
		require.NoError(t, err)
		assert.Len(t, edges, 1)
	})

	t.Run("other relation is empty", func(t *testing.T) {
		edges, err := repo.ListAll(ctx, models.RelationAction, 0, 0)
		require.NoError(t, err)
		assert.Empty(t, edges)
	})
}

func TestBunEdgeRepository_DeleteByAttribute(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	ns := uuid.NewString()
	doomed := testAttr(ns, "group", "doomed")
	member := testAttr(ns, "uri", "account/alice")
	parent := testAttr(ns, "group", "parent")

	for _, edge := range []*models.Edge{
		models.NewEdge(member, doomed),
		models.NewEdge(doomed, parent),
		models.NewEdge(member, parent),
	} {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, edge))
	}

	removed, err := repo.DeleteByAttribute(ctx, models.RelationSubject, doomed)
	require.NoError(t, err)
	assert.EqualValues(t, 2, removed)

	remaining, err := repo.ListAll(ctx, models.RelationSubject, 0, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, member, remaining[0].Inbound())
	assert.Equal(t, parent, remaining[0].Outbound())
}

func TestBunEdgeRepository_DeleteByNamespace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewBunEdgeRepository(db)
	ctx := context.Background()

	purged := uuid.NewString()
	kept := uuid.NewString()

	for _, edge := range []*models.Edge{
		models.NewEdge(testAttr(purged, "uri", "account/a"), testAttr(purged, "group", "staff")),
		models.NewEdge(testAttr(kept, "uri", "account/b"), testAttr(purged, "group", "staff")),
		models.NewEdge(testAttr(purged, "group", "staff"), testAttr(kept, "group", "all")),
		models.NewEdge(testAttr(kept, "uri", "account/b"), testAttr(kept, "group", "all")),
	} {
		require.NoError(t, repo.Create(ctx, models.RelationSubject, edge))
	}

	// The other relations must not be touched.
	crossRel := models.NewEdge(testAttr(purged, "type", "document"), testAttr(purged, "uri", "namespace/x"))
	require.NoError(t, repo.Create(ctx, models.RelationObject, crossRel))

	removed, err := repo.DeleteByNamespace(ctx, models.RelationSubject, purged)
	require.NoError(t, err)
	assert.EqualValues(t, 3, removed)

	remaining, err := repo.ListAll(ctx, models.RelationSubject, 0, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, kept, remaining[0].InboundNamespaceID)
	assert.Equal(t, kept, remaining[0].OutboundNamespaceID)

	object, err := repo.ListAll(ctx, models.RelationObject, 0, 0)
	require.NoError(t, err)
	assert.Len(t, object, 1)
}
