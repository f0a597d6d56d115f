package iam

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/uptrace/bun"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/config"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
	"github.com/ivanovaleksey/iam-sub000/internal/telemetry"
)

// txFunc runs fn inside one transaction, handing it repositories and an
// evaluator scoped to that transaction. Guarded mutations go through it so
// the guard check and the write commit or roll back together.
type txFunc func(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error) error

// iamService implements the Service interface over the repository layer, the
// expansion engine and the key set.
type iamService struct {
	repos     repository.Repositories
	expander  *abac.Expander
	evaluator *abac.Evaluator
	guard     *abac.Guard
	keys      *auth.KeySet
	metrics   *telemetry.Metrics
	logger    *log.Logger
	cfg       *config.Config
	run       txFunc
}

// Dependencies carries the runtime collaborators of the service. Keys may be
// nil when the token endpoints are not served (tests, offline tools).
type Dependencies struct {
	DB      *bun.DB
	Keys    *auth.KeySet
	Metrics *telemetry.Metrics
	Logger  *log.Logger
}

// NewService wires a Service over the given database. The read path uses
// repositories bound to the pool; mutations rebuild them per transaction.
func NewService(deps Dependencies, cfg *config.Config) Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}

	repos := repository.NewRepositories(deps.DB)
	expander := abac.NewExpander(repos.Edges, cfg.Expansion.MaxDepth, cfg.Expansion.MaxRows)

	return &iamService{
		repos:     repos,
		expander:  expander,
		evaluator: abac.NewEvaluator(expander, repos.Policies, deps.Metrics),
		guard:     abac.NewGuard(cfg.IAMNamespaceID),
		keys:      deps.Keys,
		metrics:   deps.Metrics,
		logger:    logger,
		cfg:       cfg,
		run:       bunTxRunner(deps.DB, cfg, deps.Metrics),
	}
}

// bunTxRunner builds the production txFunc over a bun connection pool.
func bunTxRunner(db *bun.DB, cfg *config.Config, metrics *telemetry.Metrics) txFunc {
	return func(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			ev := abac.NewTxEvaluator(tx, cfg.Expansion.MaxDepth, cfg.Expansion.MaxRows, metrics)
			return fn(ctx, repository.NewRepositories(tx), ev)
		})
	}
}

// page applies the configured default and ceiling to pagination parameters.
func (s *iamService) page(limit, offset int) (int, int, error) {
	if limit < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("%w: limit and offset must not be negative", ErrInvalidArgument)
	}
	if limit == 0 {
		limit = s.cfg.Pagination.Limit
	}
	if limit > s.cfg.Pagination.LimitMax {
		return 0, 0, fmt.Errorf("%w: limit exceeds ceiling %d", ErrInvalidArgument, s.cfg.Pagination.LimitMax)
	}
	return limit, offset, nil
}

// validAttribute requires all three parts of an attribute.
func validAttribute(a models.Attribute) error {
	if a.NamespaceID == "" || a.Key == "" || a.Value == "" {
		return fmt.Errorf("%w: attribute requires namespace_id, key and value", ErrInvalidArgument)
	}
	return nil
}

// Authorize evaluates an application's access question. The subject is the
// asked-about account, not the caller; callers only need to be authenticated.
func (s *iamService) Authorize(ctx context.Context, caller, subjectID string, object, action models.AttributeList, namespaceIDs []string) (bool, error) {
	if caller == "" {
		return false, abac.ErrForbidden
	}
	if subjectID == "" {
		return false, fmt.Errorf("%w: subject is required", ErrInvalidArgument)
	}
	if len(namespaceIDs) == 0 {
		return false, fmt.Errorf("%w: namespace_ids is required", ErrInvalidArgument)
	}

	return s.evaluator.Evaluate(ctx, abac.Query{
		Subject:      models.AttributeList{abac.AccountURI(s.cfg.IAMNamespaceID, subjectID)},
		Object:       object,
		Action:       action,
		NamespaceIDs: namespaceIDs,
	})
}

// =========================================================================
// Accounts
// =========================================================================

func (s *iamService) ReadAccount(ctx context.Context, caller, id string) (*models.Account, error) {
	if err := s.guard.Authorize(ctx, s.evaluator, caller, abac.CollectionAccount, abac.VerbRead, s.cfg.IAMNamespaceID); err != nil {
		return nil, err
	}
	return s.repos.Accounts.GetByID(ctx, id)
}

func (s *iamService) SetAccountEnabled(ctx context.Context, caller, id string, enabled bool) (*models.Account, error) {
	var account *models.Account
	err := s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionAccount, abac.VerbUpdate, s.cfg.IAMNamespaceID); err != nil {
			return err
		}
		if err := repos.Accounts.SetEnabled(ctx, id, enabled); err != nil {
			return err
		}
		var err error
		account, err = repos.Accounts.GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeleteAccount tombstones the account and purges policies keyed by its uri.
// Identities and graph edges stay until each identity is deleted.
func (s *iamService) DeleteAccount(ctx context.Context, caller, id string) error {
	return s.run(ctx, func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error {
		if err := s.guard.Authorize(ctx, ev, caller, abac.CollectionAccount, abac.VerbDelete, s.cfg.IAMNamespaceID); err != nil {
			return err
		}
		if err := repos.Accounts.SoftDelete(ctx, id); err != nil {
			return err
		}
		subject := models.AttributeList{abac.AccountURI(s.cfg.IAMNamespaceID, id)}
		purged, err := repos.Policies.DeleteBySubject(ctx, subject)
		if err != nil {
			return err
		}
		s.logger.Info("account deleted", "account_id", id, "policies_purged", purged)
		return nil
	})
}
