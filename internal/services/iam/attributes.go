package iam

import (
	"context"
	"fmt"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

func validRelation(rel models.Relation) error {
	if !rel.Valid() {
		return fmt.Errorf("%w: unknown relation %q", ErrInvalidArgument, rel)
	}
	return nil
}

func (s *iamService) CreateEdge(ctx context.Context, caller string, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error) {
	if err := validRelation(rel); err != nil {
		return nil, err
	}
	edge := models.NewEdge(inbound, outbound)
	if err := edge.ValidateForCreate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionFor(rel), abac.VerbCreate, inbound.NamespaceID, outbound.NamespaceID); err != nil {
			return err
		}
		return repos.Edges.Create(ctx, rel, edge)
	})
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func (s *iamService) ReadEdge(ctx context.Context, caller string, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error) {
	if err := validRelation(rel); err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionFor(rel), abac.VerbRead, inbound.NamespaceID, outbound.NamespaceID); err != nil {
		return nil, err
	}
	return s.repos.Edges.Get(ctx, rel, inbound, outbound)
}

func (s *iamService) DeleteEdge(ctx context.Context, caller string, rel models.Relation, inbound, outbound models.Attribute) error {
	if err := validRelation(rel); err != nil {
		return err
	}
	return s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionFor(rel), abac.VerbDelete, inbound.NamespaceID, outbound.NamespaceID); err != nil {
			return err
		}
		return repos.Edges.Delete(ctx, rel, inbound, outbound)
	})
}

// ListClosure pages the seed's transitive outbound closure in discovery
// order. The page is cut from the capped expansion, so offsets past the row
// ceiling return empty pages rather than an error.
func (s *iamService) ListClosure(ctx context.Context, caller string, rel models.Relation, seed models.Attribute, limit, offset int) ([]models.Attribute, error) {
	if err := validRelation(rel); err != nil {
		return nil, err
	}
	if err := validAttribute(seed); err != nil {
		return nil, err
	}
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionFor(rel), abac.VerbList, seed.NamespaceID); err != nil {
		return nil, err
	}
	return s.expander.ClosureList(ctx, rel, []models.Attribute{seed}, limit, offset)
}

func (s *iamService) TreeEdges(ctx context.Context, caller string, rel models.Relation, seed models.Attribute, direction models.Direction, limit, offset int) ([]models.Edge, error) {
	if err := validRelation(rel); err != nil {
		return nil, err
	}
	if err := validAttribute(seed); err != nil {
		return nil, err
	}
	if !direction.Valid() {
		return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidArgument, direction)
	}
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionFor(rel), abac.VerbList, seed.NamespaceID); err != nil {
		return nil, err
	}
	return s.repos.Edges.SelectNeighbors(ctx, rel, direction, seed, limit, offset)
}
