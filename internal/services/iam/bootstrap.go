package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/config"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// BootstrapResult reports what a seeding pass changed. A re-run over a seeded
// database returns all-false, all-zero.
type BootstrapResult struct {
	AccountID        string
	AccountCreated   bool
	NamespaceCreated bool
	EdgesCreated     int
	PoliciesCreated  int
}

// Bootstrap seeds the governing namespace, the admin account and the built-in
// vocabulary in one transaction. It writes through the repositories directly,
// bypassing the guard: it is the step that creates the policies the guard
// needs. Safe to re-run; existing rows are kept as they are.
func Bootstrap(ctx context.Context, db *bun.DB, cfg *config.Config, adminLabel, adminUID string) (*BootstrapResult, error) {
	var result *BootstrapResult
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		result, err = seed(ctx, repository.NewRepositories(tx), cfg.IAMNamespaceID, adminLabel, adminUID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// seed performs the bootstrap writes over the given repositories:
//
//  1. admin account + identity (iamNS, adminLabel, adminUID) via the
//     identity upsert path, derived edges included
//  2. the governing namespace row, owned by the admin account, with its
//     own vocabulary node
//  3. object edges type:<collection> -> uri:"namespace/<iamNS>"
//  4. action edges operation:<verb> -> operation:any
//  5. the admin's self policy and one wide policy per collection
func seed(ctx context.Context, repos repository.Repositories, iamNS, adminLabel, adminUID string) (*BootstrapResult, error) {
	if adminLabel == "" || adminUID == "" {
		return nil, fmt.Errorf("%w: admin label and uid are required", ErrInvalidArgument)
	}

	result := &BootstrapResult{}

	_, account, created, err := UpsertIdentity(ctx, repos, iamNS, iamNS, adminLabel, adminUID)
	if err != nil {
		return nil, fmt.Errorf("upsert admin identity: %w", err)
	}
	result.AccountID = account.ID
	result.AccountCreated = created

	if _, err := repos.Namespaces.GetByID(ctx, iamNS); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		namespace := &models.Namespace{ID: iamNS, Label: "iam", AccountID: account.ID, Enabled: true}
		if err := repos.Namespaces.Create(ctx, namespace); err != nil {
			return nil, fmt.Errorf("create governing namespace: %w", err)
		}
		result.NamespaceCreated = true
	}

	namespaceURI := abac.NamespaceURI(iamNS, iamNS)

	type seedEdge struct {
		rel  models.Relation
		edge *models.Edge
	}
	// The governing namespace is a namespace like any other.
	edges := []seedEdge{
		{models.RelationObject, models.NewEdge(namespaceURI, abac.TypeAttr(iamNS, abac.CollectionNamespace))},
	}
	for _, collection := range abac.Collections {
		edges = append(edges, seedEdge{models.RelationObject, models.NewEdge(abac.TypeAttr(iamNS, collection), namespaceURI)})
	}
	for _, verb := range abac.Verbs {
		edges = append(edges, seedEdge{models.RelationAction, models.NewEdge(abac.OperationAttr(iamNS, verb), abac.OperationAttr(iamNS, abac.VerbAny))})
	}
	for _, e := range edges {
		created, err := ensureEdge(ctx, repos, e.rel, e.edge)
		if err != nil {
			return nil, fmt.Errorf("seed edge %s: %w", e.edge, err)
		}
		if created {
			result.EdgesCreated++
		}
	}

	adminURI := abac.AccountURI(iamNS, account.ID)
	anyAction := models.AttributeList{abac.OperationAttr(iamNS, abac.VerbAny)}
	policies := []*models.Policy{
		{
			Subject:     models.AttributeList{adminURI},
			Object:      models.AttributeList{adminURI},
			Action:      anyAction,
			NamespaceID: iamNS,
		},
	}
	for _, collection := range abac.Collections {
		policies = append(policies, &models.Policy{
			Subject:     models.AttributeList{adminURI},
			Object:      models.AttributeList{namespaceURI, abac.TypeAttr(iamNS, collection)},
			Action:      anyAction,
			NamespaceID: iamNS,
		})
	}
	for _, policy := range policies {
		created, err := ensurePolicy(ctx, repos, policy)
		if err != nil {
			return nil, fmt.Errorf("seed policy: %w", err)
		}
		if created {
			result.PoliciesCreated++
		}
	}

	return result, nil
}

func ensureEdge(ctx context.Context, repos repository.Repositories, rel models.Relation, edge *models.Edge) (bool, error) {
	err := repos.Edges.Create(ctx, rel, edge)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func ensurePolicy(ctx context.Context, repos repository.Repositories, policy *models.Policy) (bool, error) {
	err := repos.Policies.Create(ctx, policy)
	if errors.Is(err, repository.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
