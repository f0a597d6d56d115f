package abac

import (
	"context"
	"errors"

	"github.com/uptrace/bun"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
	"github.com/ivanovaleksey/iam-sub000/internal/telemetry"
)

// ErrForbidden is returned when the guard denies a call. The transport layer
// maps it to a Forbidden response.
var ErrForbidden = errors.New("forbidden")

// NewTxEvaluator builds an evaluator over repositories scoped to db, which
// may be a transaction. Guarded mutations use this so the closure, the policy
// fetch and the mutation itself observe one consistent snapshot.
func NewTxEvaluator(db bun.IDB, maxDepth, maxRows int, metrics *telemetry.Metrics) *Evaluator {
	expander := NewExpander(repository.NewBunEdgeRepository(db), maxDepth, maxRows)
	return NewEvaluator(expander, repository.NewBunPolicyRepository(db), metrics)
}

// Guard authorizes the service's own CRUD surface with the same engine it
// manages. Every check is a synthesized query in the governing namespace:
//
//	subject  [uri:"account/<caller>"]
//	object   [uri:"namespace/<target>", type:"<collection>"]
//	action   [operation:"<verb>"]
//
// Wide admin rights work through expansion, not through special cases here:
// bootstrap links every type:<collection> attribute to the governing
// namespace's uri, so the object closure of any target reaches the attributes
// a collection-wide policy names.
type Guard struct {
	iamNamespaceID string
}

// NewGuard constructs a guard rooted in the governing namespace.
func NewGuard(iamNamespaceID string) *Guard {
	return &Guard{iamNamespaceID: iamNamespaceID}
}

// IAMNamespaceID returns the governing namespace id.
func (g *Guard) IAMNamespaceID() string {
	return g.iamNamespaceID
}

// Authorize checks the caller against the collection and verb, scoped to each
// candidate namespace in turn; any passing namespace admits the call. Edge
// operations spanning two namespaces pass both and accept either. An empty
// caller is anonymous and always denied.
func (g *Guard) Authorize(ctx context.Context, ev *Evaluator, callerAccountID string, collection Collection, verb Verb, namespaceIDs ...string) error {
	if callerAccountID == "" {
		return ErrForbidden
	}

	seen := make(map[string]struct{}, len(namespaceIDs))
	for _, namespaceID := range namespaceIDs {
		if namespaceID == "" {
			continue
		}
		if _, dup := seen[namespaceID]; dup {
			continue
		}
		seen[namespaceID] = struct{}{}

		allowed, err := ev.Evaluate(ctx, Query{
			Subject:      models.AttributeList{AccountURI(g.iamNamespaceID, callerAccountID)},
			Object:       models.AttributeList{NamespaceURI(g.iamNamespaceID, namespaceID), TypeAttr(g.iamNamespaceID, collection)},
			Action:       models.AttributeList{OperationAttr(g.iamNamespaceID, verb)},
			NamespaceIDs: []string{g.iamNamespaceID},
		})
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
	}
	return ErrForbidden
}
