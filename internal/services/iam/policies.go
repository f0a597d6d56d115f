package iam

import (
	"context"
	"fmt"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// validComposites requires every policy side to be non-empty and every member
// attribute to be fully specified.
func validComposites(subject, object, action models.AttributeList) error {
	for _, side := range []struct {
		name string
		list models.AttributeList
	}{
		{"subject", subject},
		{"object", object},
		{"action", action},
	} {
		if len(side.list) == 0 {
			return fmt.Errorf("%w: %s must not be empty", ErrInvalidArgument, side.name)
		}
		for _, a := range side.list {
			if err := validAttribute(a); err != nil {
				return fmt.Errorf("%s: %w", side.name, err)
			}
		}
	}
	return nil
}

func (s *iamService) CreatePolicy(ctx context.Context, caller string, policy *models.Policy) (*models.Policy, error) {
	if policy == nil || policy.NamespaceID == "" {
		return nil, fmt.Errorf("%w: namespace_id is required", ErrInvalidArgument)
	}
	if err := validComposites(policy.Subject, policy.Object, policy.Action); err != nil {
		return nil, err
	}

	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionPolicy, abac.VerbCreate, policy.NamespaceID); err != nil {
			return err
		}
		if _, err := repos.Namespaces.GetByID(ctx, policy.NamespaceID); err != nil {
			return err
		}
		return repos.Policies.Create(ctx, policy)
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

func (s *iamService) ReadPolicy(ctx context.Context, caller string, subject, object, action models.AttributeList, namespaceID string) (*models.Policy, error) {
	if namespaceID == "" {
		return nil, fmt.Errorf("%w: namespace_id is required", ErrInvalidArgument)
	}
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionPolicy, abac.VerbRead, namespaceID); err != nil {
		return nil, err
	}
	return s.repos.Policies.Get(ctx, subject, object, action, namespaceID)
}

func (s *iamService) DeletePolicy(ctx context.Context, caller string, subject, object, action models.AttributeList, namespaceID string) error {
	if namespaceID == "" {
		return fmt.Errorf("%w: namespace_id is required", ErrInvalidArgument)
	}
	return s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionPolicy, abac.VerbDelete, namespaceID); err != nil {
			return err
		}
		return repos.Policies.Delete(ctx, subject, object, action, namespaceID)
	})
}

// ListPolicies requires the guard to pass in every requested namespace; the
// either-side rule is for edges, listing across namespaces must not leak any.
func (s *iamService) ListPolicies(ctx context.Context, caller string, namespaceIDs []string, limit, offset int) ([]models.Policy, error) {
	if len(namespaceIDs) == 0 {
		return nil, fmt.Errorf("%w: namespace_id filter is required", ErrInvalidArgument)
	}
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	for _, namespaceID := range namespaceIDs {
		if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionPolicy, abac.VerbList, namespaceID); err != nil {
			return nil, err
		}
	}
	return s.repos.Policies.SelectByNamespaces(ctx, namespaceIDs, limit, offset)
}
