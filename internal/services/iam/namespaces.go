package iam

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// CreateNamespace inserts the namespace and, in the same transaction, links
// it into the vocabulary and seeds the owner policy:
//
//	object edge  uri:"namespace/<id>" -> type:namespace
//	policy       {[uri:"account/<owner>"], [uri:"namespace/<id>"], [operation:any]}
//
// Both live in the governing namespace, so the owner passes the guard for
// every operation scoped to the new namespace from here on.
func (s *iamService) CreateNamespace(ctx context.Context, caller, label, accountID string) (*models.Namespace, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", ErrInvalidArgument)
	}
	owner := caller
	if accountID != "" {
		owner = accountID
	}

	namespace := &models.Namespace{ID: uuid.NewString(), Label: label, AccountID: owner, Enabled: true}
	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionNamespace, abac.VerbCreate, namespace.ID); err != nil {
			return err
		}
		if _, err := repos.Accounts.GetByID(ctx, owner); err != nil {
			return err
		}
		if err := repos.Namespaces.Create(ctx, namespace); err != nil {
			return err
		}

		iamNS := s.cfg.IAMNamespaceID
		namespaceURI := abac.NamespaceURI(iamNS, namespace.ID)
		typeEdge := models.NewEdge(namespaceURI, abac.TypeAttr(iamNS, abac.CollectionNamespace))
		if err := repos.Edges.Create(ctx, models.RelationObject, typeEdge); err != nil {
			return err
		}
		ownerPolicy := &models.Policy{
			Subject:     models.AttributeList{abac.AccountURI(iamNS, owner)},
			Object:      models.AttributeList{namespaceURI},
			Action:      models.AttributeList{abac.OperationAttr(iamNS, abac.VerbAny)},
			NamespaceID: iamNS,
		}
		return repos.Policies.Create(ctx, ownerPolicy)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("namespace created", "namespace_id", namespace.ID, "label", label, "owner", owner)
	return namespace, nil
}

func (s *iamService) ReadNamespace(ctx context.Context, caller, id string) (*models.Namespace, error) {
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionNamespace, abac.VerbRead, id); err != nil {
		return nil, err
	}
	return s.repos.Namespaces.GetByID(ctx, id)
}

func (s *iamService) UpdateNamespaceLabel(ctx context.Context, caller, id, label string) (*models.Namespace, error) {
	if label == "" {
		return nil, fmt.Errorf("%w: label is required", ErrInvalidArgument)
	}

	var namespace *models.Namespace
	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionNamespace, abac.VerbUpdate, id); err != nil {
			return err
		}
		if err := repos.Namespaces.UpdateLabel(ctx, id, label); err != nil {
			return err
		}
		var err error
		namespace, err = repos.Namespaces.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return namespace, nil
}

// DeleteNamespace tombstones the namespace and drops every edge with an
// endpoint in it, plus its own vocabulary node in the governing namespace.
// Policies scoped to the namespace become unreachable rather than deleted:
// the evaluator only ever fetches policies of namespaces it is asked about.
func (s *iamService) DeleteNamespace(ctx context.Context, caller, id string) error {
	return s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionNamespace, abac.VerbDelete, id); err != nil {
			return err
		}
		if _, err := repos.Namespaces.GetByID(ctx, id); err != nil {
			return err
		}
		if err := repos.Namespaces.SoftDelete(ctx, id); err != nil {
			return err
		}
		var dropped int64
		for _, rel := range models.Relations {
			n, err := repos.Edges.DeleteByNamespace(ctx, rel, id)
			if err != nil {
				return err
			}
			dropped += n
		}
		n, err := repos.Edges.DeleteByAttribute(ctx, models.RelationObject, abac.NamespaceURI(s.cfg.IAMNamespaceID, id))
		if err != nil {
			return err
		}
		dropped += n
		s.logger.Info("namespace deleted", "namespace_id", id, "edges_dropped", dropped)
		return nil
	})
}

func (s *iamService) ListNamespaces(ctx context.Context, caller, accountID string, limit, offset int) ([]models.Namespace, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id filter is required", ErrInvalidArgument)
	}
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionNamespace, abac.VerbList, s.cfg.IAMNamespaceID); err != nil {
		return nil, err
	}
	return s.repos.Namespaces.ListByAccount(ctx, accountID, limit, offset)
}
