package iam

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// UpsertIdentity returns the identity for the (provider, label, uid) triple,
// registering it if unknown. Registration creates, through the given
// repositories, the account, its refresh-token record with a fresh secret,
// the identity row and the derived graph edges:
//
//	subject  identity-uri -> account-uri
//	subject  identity-uri -> namespace-uri(provider)
//	subject  identity-uri -> type:identity
//	object   account-uri  -> type:account
//
// The caller owns transactionality; the token flow and bootstrap both run it
// inside one transaction. The returned flag reports whether a new account was
// created.
func UpsertIdentity(ctx context.Context, repos repository.Repositories, iamNS, provider, label, uid string) (*models.Identity, *models.Account, bool, error) {
	identity, err := repos.Identities.Get(ctx, provider, label, uid)
	if err == nil {
		account, err := repos.Accounts.GetByID(ctx, identity.AccountID)
		if err != nil {
			return nil, nil, false, err
		}
		return identity, account, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, false, err
	}

	account := &models.Account{ID: uuid.NewString(), Enabled: true}
	if err := repos.Accounts.Create(ctx, account); err != nil {
		return nil, nil, false, err
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return nil, nil, false, err
	}
	record := &models.RefreshToken{
		AccountID: account.ID,
		Algorithm: "HS256",
		Keys:      models.SecretKeys{secret},
	}
	if err := repos.RefreshTokens.Create(ctx, record); err != nil {
		return nil, nil, false, err
	}

	identity = &models.Identity{Provider: provider, Label: label, UID: uid, AccountID: account.ID}
	if err := repos.Identities.Create(ctx, identity); err != nil {
		return nil, nil, false, err
	}

	identityURI := abac.IdentityURI(iamNS, provider, label, uid)
	accountURI := abac.AccountURI(iamNS, account.ID)
	subjectEdges := []*models.Edge{
		models.NewEdge(identityURI, accountURI),
		models.NewEdge(identityURI, abac.NamespaceURI(iamNS, provider)),
		models.NewEdge(identityURI, abac.TypeAttr(iamNS, abac.CollectionIdentity)),
	}
	for _, edge := range subjectEdges {
		if err := repos.Edges.Create(ctx, models.RelationSubject, edge); err != nil {
			return nil, nil, false, err
		}
	}
	selfNode := models.NewEdge(accountURI, abac.TypeAttr(iamNS, abac.CollectionAccount))
	if err := repos.Edges.Create(ctx, models.RelationObject, selfNode); err != nil {
		return nil, nil, false, err
	}

	return identity, account, true, nil
}

func (s *iamService) CreateIdentity(ctx context.Context, caller, provider, label, uid string) (*models.Identity, error) {
	if provider == "" || label == "" || uid == "" {
		return nil, fmt.Errorf("%w: provider, label and uid are required", ErrInvalidArgument)
	}

	var identity *models.Identity
	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionIdentity, abac.VerbCreate, provider); err != nil {
			return err
		}
		if _, err := repos.Identities.Get(ctx, provider, label, uid); err == nil {
			return fmt.Errorf("identity %s.%s.%s: %w", provider, label, uid, repository.ErrAlreadyExists)
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		var err error
		identity, _, _, err = UpsertIdentity(ctx, repos, s.cfg.IAMNamespaceID, provider, label, uid)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("identity created", "identity", identity.String(), "account_id", identity.AccountID)
	return identity, nil
}

func (s *iamService) ReadIdentity(ctx context.Context, caller, provider, label, uid string) (*models.Identity, error) {
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionIdentity, abac.VerbRead, provider); err != nil {
		return nil, err
	}
	return s.repos.Identities.Get(ctx, provider, label, uid)
}

// DeleteIdentity removes the identity and its subject edges. Deleting the
// account's last identity cascades: the account is tombstoned, its
// refresh-token record removed, policies with its uri as the whole subject
// purged, and every edge touching the account uri dropped, all in the same
// transaction.
func (s *iamService) DeleteIdentity(ctx context.Context, caller, provider, label, uid string) error {
	var cascaded string
	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		cascaded = ""
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionIdentity, abac.VerbDelete, provider); err != nil {
			return err
		}
		identity, err := repos.Identities.Get(ctx, provider, label, uid)
		if err != nil {
			return err
		}
		remaining, err := repos.Identities.CountByAccount(ctx, identity.AccountID)
		if err != nil {
			return err
		}
		if err := repos.Identities.Delete(ctx, provider, label, uid); err != nil {
			return err
		}

		identityURI := abac.IdentityURI(s.cfg.IAMNamespaceID, provider, label, uid)
		if _, err := repos.Edges.DeleteByAttribute(ctx, models.RelationSubject, identityURI); err != nil {
			return err
		}

		if remaining > 1 {
			return nil
		}

		// Last identity: the account dies with it.
		if err := repos.Accounts.SoftDelete(ctx, identity.AccountID); err != nil {
			return err
		}
		if err := repos.RefreshTokens.DeleteByAccount(ctx, identity.AccountID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		accountURI := abac.AccountURI(s.cfg.IAMNamespaceID, identity.AccountID)
		if _, err := repos.Policies.DeleteBySubject(ctx, models.AttributeList{accountURI}); err != nil {
			return err
		}
		for _, rel := range models.Relations {
			if _, err := repos.Edges.DeleteByAttribute(ctx, rel, accountURI); err != nil {
				return err
			}
		}
		cascaded = identity.AccountID
		return nil
	})
	if err != nil {
		return err
	}
	if cascaded != "" {
		s.logger.Info("last identity deleted, account cascaded", "account_id", cascaded)
	}
	return nil
}

func (s *iamService) ListIdentities(ctx context.Context, caller, accountID string, limit, offset int) ([]models.Identity, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account_id filter is required", ErrInvalidArgument)
	}
	limit, offset, err := s.page(limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionIdentity, abac.VerbList, s.cfg.IAMNamespaceID); err != nil {
		return nil, err
	}
	return s.repos.Identities.ListByAccount(ctx, accountID, limit, offset)
}
