package abac

import (
	"context"
	"fmt"
	"time"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
	"github.com/ivanovaleksey/iam-sub000/internal/telemetry"
)

// Query is one authorization question: may Subject perform Action on Object,
// judged by the policies of NamespaceIDs.
type Query struct {
	Subject      models.AttributeList
	Object       models.AttributeList
	Action       models.AttributeList
	NamespaceIDs []string
}

// Evaluator answers queries by expanding all three sides and testing stored
// policies for containment. No policy matching means deny; a storage failure
// is an error, never a deny.
type Evaluator struct {
	expander *Expander
	policies repository.PolicyRepository
	metrics  *telemetry.Metrics
	now      func() time.Time
}

// NewEvaluator constructs an evaluator. metrics may be nil.
func NewEvaluator(expander *Expander, policies repository.PolicyRepository, metrics *telemetry.Metrics) *Evaluator {
	return &Evaluator{
		expander: expander,
		policies: policies,
		metrics:  metrics,
		now:      time.Now,
	}
}

// Evaluate runs the query. The decision procedure:
//
//  1. Expand subject, object and action seeds into their closures.
//  2. Fetch the active policies of the queried namespaces.
//  3. Allow iff some policy's three composites are each contained in the
//     matching closure. Containment treats a closure as a set; the policy
//     composite is a conjunction of required attributes.
func (ev *Evaluator) Evaluate(ctx context.Context, q Query) (bool, error) {
	subjectSet, err := ev.expand(ctx, models.RelationSubject, q.Subject)
	if err != nil {
		return false, err
	}
	objectSet, err := ev.expand(ctx, models.RelationObject, q.Object)
	if err != nil {
		return false, err
	}
	actionSet, err := ev.expand(ctx, models.RelationAction, q.Action)
	if err != nil {
		return false, err
	}

	policies, err := ev.policies.SelectActiveByNamespaces(ctx, q.NamespaceIDs, ev.now())
	if err != nil {
		return false, fmt.Errorf("fetch policies: %w", err)
	}

	allowed := false
	for i := range policies {
		p := &policies[i]
		if containedIn(p.Subject, subjectSet) &&
			containedIn(p.Object, objectSet) &&
			containedIn(p.Action, actionSet) {
			allowed = true
			break
		}
	}

	ev.metrics.RecordDecision(ctx, allowed)
	return allowed, nil
}

func (ev *Evaluator) expand(ctx context.Context, rel models.Relation, seeds models.AttributeList) (map[models.Attribute]struct{}, error) {
	set, err := ev.expander.Closure(ctx, rel, seeds)
	if err != nil {
		return nil, err
	}
	ev.metrics.RecordExpansion(ctx, string(rel), len(set))
	return set, nil
}

// containedIn reports whether every attribute of the composite is in the set.
// An empty composite would trivially match anything; policy validation keeps
// those out of storage.
func containedIn(composite models.AttributeList, set map[models.Attribute]struct{}) bool {
	if len(composite) == 0 {
		return false
	}
	for _, attr := range composite {
		if _, ok := set[attr]; !ok {
			return false
		}
	}
	return true
}
