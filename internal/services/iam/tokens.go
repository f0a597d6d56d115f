package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// accessTTL resolves a requested lifetime in seconds against the default and
// the ceiling. Retrieve rejects requests over the ceiling; refresh clamps
// them instead, so long-lived clients keep working when the ceiling shrinks.
func (s *iamService) accessTTL(requested int, clamp bool) (time.Duration, error) {
	if requested < 0 {
		return 0, fmt.Errorf("%w: expires_in must not be negative", ErrInvalidArgument)
	}
	if requested == 0 {
		requested = s.cfg.Tokens.ExpiresIn
	}
	if requested > s.cfg.Tokens.ExpiresInMax {
		if !clamp {
			return 0, fmt.Errorf("%w: expires_in exceeds ceiling %d", ErrInvalidArgument, s.cfg.Tokens.ExpiresInMax)
		}
		requested = s.cfg.Tokens.ExpiresInMax
	}
	return time.Duration(requested) * time.Second, nil
}

// RetrieveToken exchanges a provider-signed client token for a token pair.
// The provider's namespace label is the first segment of the client path;
// unknown subjects are registered through the upsert path, so the first
// retrieve of a subject creates its account.
func (s *iamService) RetrieveToken(ctx context.Context, client, clientToken string, expiresIn int) (*TokenGrant, error) {
	if s.keys == nil {
		return nil, errors.New("token keys are not configured")
	}
	providerLabel, label, found := strings.Cut(client, ".")
	if !found || providerLabel == "" || label == "" {
		return nil, fmt.Errorf("%w: client must be of the form <provider>.<label>", ErrInvalidArgument)
	}
	ttl, err := s.accessTTL(expiresIn, false)
	if err != nil {
		return nil, err
	}
	uid, err := s.keys.VerifyClientToken(clientToken, providerLabel)
	if err != nil {
		return nil, err
	}

	var grant *TokenGrant
	err = s.run(ctx, func(ctx context.Context, repos repository.Repositories, _ *abac.Evaluator) error {
		provider, err := repos.Namespaces.GetByLabel(ctx, providerLabel)
		if err != nil {
			return err
		}
		identity, account, created, err := UpsertIdentity(ctx, repos, s.cfg.IAMNamespaceID, provider.ID, label, uid)
		if err != nil {
			return err
		}
		if !account.Usable() {
			return fmt.Errorf("account %s is disabled: %w", account.ID, abac.ErrForbidden)
		}
		record, err := repos.RefreshTokens.GetByAccount(ctx, account.ID)
		if err != nil {
			return err
		}

		refresh, err := s.keys.MintRefresh(account.ID, client, record.CurrentKey())
		if err != nil {
			return err
		}
		access, err := s.keys.MintAccess(account.ID, client, ttl)
		if err != nil {
			return err
		}
		grant = &TokenGrant{
			AccessToken:  access,
			RefreshToken: refresh,
			ExpiresIn:    int(ttl.Seconds()),
			TokenType:    "Bearer",
		}
		if created {
			s.logger.Info("identity registered", "identity", identity.String(), "account_id", account.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return grant, nil
}

// resolveRefresh turns the path id (account uuid or "me") and a presented
// refresh token into a verified account. "me" reads the token's sub claim
// without verification as a convenience; nothing is granted before the HS256
// check against the account's current secret passes.
func (s *iamService) resolveRefresh(ctx context.Context, id, refreshToken string) (*models.Account, *auth.Subject, error) {
	sub, err := auth.DecodeUnverified(refreshToken)
	if err != nil {
		return nil, nil, err
	}
	accountID := id
	if id == "me" {
		accountID = sub
	} else if sub != id {
		return nil, nil, fmt.Errorf("token subject mismatch: %w", abac.ErrForbidden)
	}

	account, err := s.repos.Accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	record, err := s.repos.RefreshTokens.GetByAccount(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	subject, err := s.keys.VerifyRefresh(refreshToken, record.CurrentKey())
	if err != nil {
		return nil, nil, err
	}
	if !account.Usable() {
		return nil, nil, fmt.Errorf("account %s is disabled: %w", account.ID, abac.ErrForbidden)
	}
	return account, subject, nil
}

func (s *iamService) RefreshToken(ctx context.Context, id, refreshToken string, expiresIn int) (*TokenGrant, error) {
	if s.keys == nil {
		return nil, errors.New("token keys are not configured")
	}
	account, subject, err := s.resolveRefresh(ctx, id, refreshToken)
	if err != nil {
		return nil, err
	}
	ttl, err := s.accessTTL(expiresIn, true)
	if err != nil {
		return nil, err
	}
	access, err := s.keys.MintAccess(account.ID, subject.Audience, ttl)
	if err != nil {
		return nil, err
	}
	return &TokenGrant{AccessToken: access, ExpiresIn: int(ttl.Seconds()), TokenType: "Bearer"}, nil
}

// RevokeToken rotates the account's refresh secret. Verification uses the
// first key only, so every refresh token signed before the rotation dies.
func (s *iamService) RevokeToken(ctx context.Context, id, refreshToken string) (*TokenGrant, error) {
	if s.keys == nil {
		return nil, errors.New("token keys are not configured")
	}
	account, subject, err := s.resolveRefresh(ctx, id, refreshToken)
	if err != nil {
		return nil, err
	}

	secret, err := auth.NewSecret()
	if err != nil {
		return nil, err
	}
	if err := s.repos.RefreshTokens.ReplaceKeys(ctx, account.ID, models.SecretKeys{secret}); err != nil {
		return nil, err
	}
	refresh, err := s.keys.MintRefresh(account.ID, subject.Audience, secret)
	if err != nil {
		return nil, err
	}
	s.logger.Info("refresh secret rotated", "account_id", account.ID, "kid", auth.FingerprintSecret(secret))
	return &TokenGrant{RefreshToken: refresh}, nil
}
