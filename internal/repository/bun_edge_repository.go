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

// seedChunkSize bounds the number of OR-groups per expansion query.
const seedChunkSize = 50

// BunEdgeRepository persists relation edges using Bun. The three relation
// tables share one row shape, so every query routes through ModelTableExpr
// with the relation's table name.
type BunEdgeRepository struct {
	db bun.IDB
}

// NewBunEdgeRepository constructs a repository backed by Bun.
func NewBunEdgeRepository(db bun.IDB) EdgeRepository {
	return &BunEdgeRepository{db: db}
}

func edgeTable(rel models.Relation) bun.Ident {
	return bun.Ident(rel.Table())
}

// Create inserts a new edge row.
func (r *BunEdgeRepository) Create(ctx context.Context, rel models.Relation, edge *models.Edge) error {
	if !rel.Valid() {
		return fmt.Errorf("unknown relation %q", rel)
	}
	if err := edge.ValidateForCreate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now()
	}

	_, err := r.db.NewInsert().
		Model(edge).
		ModelTableExpr("?", edgeTable(rel)).
		Exec(ctx)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%s edge %s: %w", rel, edge, ErrAlreadyExists)
		}
		return fmt.Errorf("insert %s edge: %w", rel, err)
	}
	return nil
}

// Get fetches an edge by both endpoints.
func (r *BunEdgeRepository) Get(ctx context.Context, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error) {
	if !rel.Valid() {
		return nil, fmt.Errorf("unknown relation %q", rel)
	}

	edge := new(models.Edge)
	err := matchEdge(r.db.NewSelect().Model(edge).ModelTableExpr("? AS edge", edgeTable(rel)), inbound, outbound).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s edge %s -> %s: %w", rel, inbound, outbound, ErrNotFound)
		}
		return nil, fmt.Errorf("query %s edge: %w", rel, err)
	}
	return edge, nil
}

// Delete removes an edge by both endpoints.
func (r *BunEdgeRepository) Delete(ctx context.Context, rel models.Relation, inbound, outbound models.Attribute) error {
	if !rel.Valid() {
		return fmt.Errorf("unknown relation %q", rel)
	}

	result, err := r.db.NewDelete().
		Model((*models.Edge)(nil)).
		ModelTableExpr("?", edgeTable(rel)).
		Where("inbound_namespace_id = ?", inbound.NamespaceID).
		Where("inbound_key = ?", inbound.Key).
		Where("inbound_value = ?", inbound.Value).
		Where("outbound_namespace_id = ?", outbound.NamespaceID).
		Where("outbound_key = ?", outbound.Key).
		Where("outbound_value = ?", outbound.Value).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete %s edge: %w", rel, err)
	}
	return requireAffected(result, fmt.Sprintf("%s edge %s -> %s", rel, inbound, outbound))
}

// SelectOutbound returns every edge leaving one of the seed attributes,
// chunking the seed set to keep individual statements bounded.
func (r *BunEdgeRepository) SelectOutbound(ctx context.Context, rel models.Relation, seeds []models.Attribute) ([]models.Edge, error) {
	if !rel.Valid() {
		return nil, fmt.Errorf("unknown relation %q", rel)
	}
	if len(seeds) == 0 {
		return nil, nil
	}

	var edges []models.Edge
	for start := 0; start < len(seeds); start += seedChunkSize {
		end := start + seedChunkSize
		if end > len(seeds) {
			end = len(seeds)
		}
		chunk := seeds[start:end]

		var page []models.Edge
		err := r.db.NewSelect().
			Model(&page).
			ModelTableExpr("? AS edge", edgeTable(rel)).
			WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
				for _, seed := range chunk {
					seed := seed
					q = q.WhereGroup(" OR ", func(q *bun.SelectQuery) *bun.SelectQuery {
						return q.
							Where("inbound_namespace_id = ?", seed.NamespaceID).
							Where("inbound_key = ?", seed.Key).
							Where("inbound_value = ?", seed.Value)
					})
				}
				return q
			}).
			Order(edgeOrder...).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("select outbound %s edges: %w", rel, err)
		}
		edges = append(edges, page...)
	}
	return edges, nil
}

// SelectNeighbors pages over the one-hop neighborhood of a seed endpoint.
func (r *BunEdgeRepository) SelectNeighbors(ctx context.Context, rel models.Relation, direction models.Direction, seed models.Attribute, limit, offset int) ([]models.Edge, error) {
	if !rel.Valid() {
		return nil, fmt.Errorf("unknown relation %q", rel)
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("unknown direction %q", direction)
	}

	var edges []models.Edge
	q := r.db.NewSelect().
		Model(&edges).
		ModelTableExpr("? AS edge", edgeTable(rel))

	switch direction {
	case models.DirectionOutbound:
		// Edges leaving the seed: seed is the inbound endpoint.
		q = q.Where("inbound_namespace_id = ?", seed.NamespaceID).
			Where("inbound_key = ?", seed.Key).
			Where("inbound_value = ?", seed.Value)
	case models.DirectionInbound:
		// Edges arriving at the seed: seed is the outbound endpoint.
		q = q.Where("outbound_namespace_id = ?", seed.NamespaceID).
			Where("outbound_key = ?", seed.Key).
			Where("outbound_value = ?", seed.Value)
	}

	err := q.Order(edgeOrder...).
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select %s neighbors: %w", rel, err)
	}
	return edges, nil
}

// ListAll pages over the whole relation, oldest edges first.
func (r *BunEdgeRepository) ListAll(ctx context.Context, rel models.Relation, limit, offset int) ([]models.Edge, error) {
	if !rel.Valid() {
		return nil, fmt.Errorf("unknown relation %q", rel)
	}

	var edges []models.Edge
	q := r.db.NewSelect().
		Model(&edges).
		ModelTableExpr("? AS edge", edgeTable(rel)).
		Order(edgeOrder...)
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list %s edges: %w", rel, err)
	}
	return edges, nil
}

// DeleteByAttribute removes every edge touching the attribute on either side.
func (r *BunEdgeRepository) DeleteByAttribute(ctx context.Context, rel models.Relation, attr models.Attribute) (int64, error) {
	if !rel.Valid() {
		return 0, fmt.Errorf("unknown relation %q", rel)
	}

	result, err := r.db.NewDelete().
		Model((*models.Edge)(nil)).
		ModelTableExpr("?", edgeTable(rel)).
		WhereGroup(" OR ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
			return q.
				Where("inbound_namespace_id = ?", attr.NamespaceID).
				Where("inbound_key = ?", attr.Key).
				Where("inbound_value = ?", attr.Value)
		}).
		WhereGroup(" OR ", func(q *bun.DeleteQuery) *bun.DeleteQuery {
			return q.
				Where("outbound_namespace_id = ?", attr.NamespaceID).
				Where("outbound_key = ?", attr.Key).
				Where("outbound_value = ?", attr.Value)
		}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete %s edges by attribute: %w", rel, err)
	}
	return result.RowsAffected()
}

// DeleteByNamespace removes every edge with either endpoint in the namespace.
func (r *BunEdgeRepository) DeleteByNamespace(ctx context.Context, rel models.Relation, namespaceID string) (int64, error) {
	if !rel.Valid() {
		return 0, fmt.Errorf("unknown relation %q", rel)
	}

	result, err := r.db.NewDelete().
		Model((*models.Edge)(nil)).
		ModelTableExpr("?", edgeTable(rel)).
		Where("inbound_namespace_id = ?", namespaceID).
		WhereOr("outbound_namespace_id = ?", namespaceID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete %s edges by namespace: %w", rel, err)
	}
	return result.RowsAffected()
}

// edgeOrder pages edges oldest first; the key columns only break ties
// between rows inserted within the same timestamp.
var edgeOrder = []string{
	"created_at ASC",
	"inbound_namespace_id ASC", "inbound_key ASC", "inbound_value ASC",
	"outbound_namespace_id ASC", "outbound_key ASC", "outbound_value ASC",
}

func matchEdge(q *bun.SelectQuery, inbound, outbound models.Attribute) *bun.SelectQuery {
	return q.
		Where("inbound_namespace_id = ?", inbound.NamespaceID).
		Where("inbound_key = ?", inbound.Key).
		Where("inbound_value = ?", inbound.Value).
		Where("outbound_namespace_id = ?", outbound.NamespaceID).
		Where("outbound_key = ?", outbound.Key).
		Where("outbound_value = ?", outbound.Value)
}
