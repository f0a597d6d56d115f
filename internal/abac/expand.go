package abac

import (
	"context"
	"fmt"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// Expansion caps. Hitting either one truncates the closure instead of
// failing: a partial set can only under-grant, never over-grant.
const (
	DefaultMaxDepth = 16
	DefaultMaxRows  = 1024
)

// Expander computes the transitive outbound closure of attribute sets over
// one relation graph. The walk is an iterative breadth-first worklist: each
// level fetches every edge leaving the current frontier in one (chunked)
// query, so closure depth costs one round trip per level, not per node.
type Expander struct {
	edges    repository.EdgeRepository
	maxDepth int
	maxRows  int
}

// NewExpander constructs an expander with the given caps; non-positive values
// fall back to the defaults.
func NewExpander(edges repository.EdgeRepository, maxDepth, maxRows int) *Expander {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Expander{edges: edges, maxDepth: maxDepth, maxRows: maxRows}
}

// Closure returns the expansion of the seeds as a set. The seeds are always
// members of their own expansion, even when no edges leave them.
func (e *Expander) Closure(ctx context.Context, rel models.Relation, seeds []models.Attribute) (map[models.Attribute]struct{}, error) {
	_, set, err := e.walk(ctx, rel, seeds)
	return set, err
}

// ClosureList returns the expansion of the seeds in discovery order, paged.
// Discovery order is deterministic: seeds first in the given order, then each
// BFS level in edge primary-key order.
func (e *Expander) ClosureList(ctx context.Context, rel models.Relation, seeds []models.Attribute, limit, offset int) ([]models.Attribute, error) {
	ordered, _, err := e.walk(ctx, rel, seeds)
	if err != nil {
		return nil, err
	}
	if offset >= len(ordered) {
		return nil, nil
	}
	ordered = ordered[offset:]
	if limit > 0 && limit < len(ordered) {
		ordered = ordered[:limit]
	}
	return ordered, nil
}

func (e *Expander) walk(ctx context.Context, rel models.Relation, seeds []models.Attribute) ([]models.Attribute, map[models.Attribute]struct{}, error) {
	if !rel.Valid() {
		return nil, nil, fmt.Errorf("unknown relation %q", rel)
	}

	set := make(map[models.Attribute]struct{}, len(seeds))
	ordered := make([]models.Attribute, 0, len(seeds))
	var frontier []models.Attribute

	for _, seed := range seeds {
		if _, seen := set[seed]; seen {
			continue
		}
		if len(set) >= e.maxRows {
			return ordered, set, nil
		}
		set[seed] = struct{}{}
		ordered = append(ordered, seed)
		frontier = append(frontier, seed)
	}

	for depth := 0; depth < e.maxDepth && len(frontier) > 0; depth++ {
		edges, err := e.edges.SelectOutbound(ctx, rel, frontier)
		if err != nil {
			return nil, nil, fmt.Errorf("expand %s relation: %w", rel, err)
		}

		var next []models.Attribute
		for i := range edges {
			out := edges[i].Outbound()
			if _, seen := set[out]; seen {
				continue
			}
			if len(set) >= e.maxRows {
				return ordered, set, nil
			}
			set[out] = struct{}{}
			ordered = append(ordered, out)
			next = append(next, out)
		}
		frontier = next
	}

	return ordered, set, nil
}
