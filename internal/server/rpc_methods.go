package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// =============================================================================
// Wire payloads
// =============================================================================

// The row models stay storage-shaped; the structs below fix the wire
// representation. Edges travel as endpoint pairs, never as the flattened
// six-column rows they are stored as.

type accountPayload struct {
	ID         string     `json:"id"`
	Enabled    bool       `json:"enabled"`
	CreatedAt  time.Time  `json:"created_at"`
	DisabledAt *time.Time `json:"disabled_at,omitempty"`
}

type identityPayload struct {
	Provider  string    `json:"provider"`
	Label     string    `json:"label"`
	UID       string    `json:"uid"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
}

type namespacePayload struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	AccountID string    `json:"account_id"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}

type edgePayload struct {
	Inbound   models.Attribute `json:"inbound"`
	Outbound  models.Attribute `json:"outbound"`
	CreatedAt time.Time        `json:"created_at"`
}

type policyPayload struct {
	Subject     models.AttributeList `json:"subject"`
	Object      models.AttributeList `json:"object"`
	Action      models.AttributeList `json:"action"`
	NamespaceID string               `json:"namespace_id"`
	CreatedAt   time.Time            `json:"created_at"`
	NotBefore   *time.Time           `json:"not_before,omitempty"`
	ExpiredAt   *time.Time           `json:"expired_at,omitempty"`
}

func accountToPayload(a *models.Account) accountPayload {
	return accountPayload{ID: a.ID, Enabled: a.Enabled, CreatedAt: a.CreatedAt, DisabledAt: a.DisabledAt}
}

func identityToPayload(i *models.Identity) identityPayload {
	return identityPayload{Provider: i.Provider, Label: i.Label, UID: i.UID, AccountID: i.AccountID, CreatedAt: i.CreatedAt}
}

func identitiesToPayload(items []models.Identity) []identityPayload {
	out := make([]identityPayload, 0, len(items))
	for i := range items {
		out = append(out, identityToPayload(&items[i]))
	}
	return out
}

func namespaceToPayload(n *models.Namespace) namespacePayload {
	return namespacePayload{ID: n.ID, Label: n.Label, AccountID: n.AccountID, Enabled: n.Enabled, CreatedAt: n.CreatedAt}
}

func namespacesToPayload(items []models.Namespace) []namespacePayload {
	out := make([]namespacePayload, 0, len(items))
	for i := range items {
		out = append(out, namespaceToPayload(&items[i]))
	}
	return out
}

func edgeToPayload(e *models.Edge) edgePayload {
	return edgePayload{Inbound: e.Inbound(), Outbound: e.Outbound(), CreatedAt: e.CreatedAt}
}

func policyToPayload(p *models.Policy) policyPayload {
	return policyPayload{
		Subject:     p.Subject,
		Object:      p.Object,
		Action:      p.Action,
		NamespaceID: p.NamespaceID,
		CreatedAt:   p.CreatedAt,
		NotBefore:   p.NotBefore,
		ExpiredAt:   p.ExpiredAt,
	}
}

func policiesToPayload(items []models.Policy) []policyPayload {
	out := make([]policyPayload, 0, len(items))
	for i := range items {
		out = append(out, policyToPayload(&items[i]))
	}
	return out
}

// =============================================================================
// Params
// =============================================================================

type idParams struct {
	ID string `json:"id"`
}

type authorizeParams struct {
	Subject      string               `json:"subject"`
	Object       models.AttributeList `json:"object"`
	Action       models.AttributeList `json:"action"`
	NamespaceIDs []string             `json:"namespace_ids"`
}

type identityParams struct {
	Provider string `json:"provider"`
	Label    string `json:"label"`
	UID      string `json:"uid"`
}

type listParams struct {
	FQ     string `json:"fq"`
	Limit  uint16 `json:"limit"`
	Offset uint16 `json:"offset"`
}

type namespaceCreateParams struct {
	Label     string `json:"label"`
	AccountID string `json:"account_id"`
}

type namespaceUpdateParams struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type edgeParams struct {
	Inbound  models.Attribute `json:"inbound"`
	Outbound models.Attribute `json:"outbound"`
}

type attributeListParams struct {
	Attribute models.Attribute `json:"attribute"`
	Limit     uint16           `json:"limit"`
	Offset    uint16           `json:"offset"`
}

type attributeTreeParams struct {
	Attribute models.Attribute `json:"attribute"`
	Direction models.Direction `json:"direction"`
	Limit     uint16           `json:"limit"`
	Offset    uint16           `json:"offset"`
}

type policyCreateParams struct {
	Subject     models.AttributeList `json:"subject"`
	Object      models.AttributeList `json:"object"`
	Action      models.AttributeList `json:"action"`
	NamespaceID string               `json:"namespace_id"`
	NotBefore   *time.Time           `json:"not_before"`
	ExpiredAt   *time.Time           `json:"expired_at"`
}

type policyKeyParams struct {
	Subject     models.AttributeList `json:"subject"`
	Object      models.AttributeList `json:"object"`
	Action      models.AttributeList `json:"action"`
	NamespaceID string               `json:"namespace_id"`
}

// =============================================================================
// Ping & authorize
// =============================================================================

func (s *RPC) handlePing(_ context.Context, _ string, _ json.RawMessage) (any, error) {
	return "pong", nil
}

func (s *RPC) handleAuthorize(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[authorizeParams](raw)
	if err != nil {
		return nil, err
	}
	if p.Subject == "" {
		return nil, invalidParams("missing field `subject`")
	}
	if len(p.NamespaceIDs) == 0 {
		return nil, invalidParams("missing field `namespace_ids`")
	}
	return s.svc.Authorize(ctx, caller, p.Subject, p.Object, p.Action, p.NamespaceIDs)
}

// =============================================================================
// Accounts
// =============================================================================

func (s *RPC) handleAccountRead(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("missing field `id`")
	}
	account, err := s.svc.ReadAccount(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	return accountToPayload(account), nil
}

func (s *RPC) handleAccountEnable(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	return s.setAccountEnabled(ctx, caller, raw, true)
}

func (s *RPC) handleAccountDisable(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	return s.setAccountEnabled(ctx, caller, raw, false)
}

func (s *RPC) setAccountEnabled(ctx context.Context, caller string, raw json.RawMessage, enabled bool) (any, error) {
	p, err := decodeParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("missing field `id`")
	}
	account, err := s.svc.SetAccountEnabled(ctx, caller, p.ID, enabled)
	if err != nil {
		return nil, err
	}
	return accountToPayload(account), nil
}

func (s *RPC) handleAccountDelete(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("missing field `id`")
	}
	if err := s.svc.DeleteAccount(ctx, caller, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// =============================================================================
// Identities
// =============================================================================

func (p identityParams) validate() error {
	for _, field := range []struct {
		name  string
		value string
	}{{"provider", p.Provider}, {"label", p.Label}, {"uid", p.UID}} {
		if field.value == "" {
			return invalidParams("missing field `%s`", field.name)
		}
	}
	return nil
}

func (s *RPC) handleIdentityCreate(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[identityParams](raw)
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	identity, err := s.svc.CreateIdentity(ctx, caller, p.Provider, p.Label, p.UID)
	if err != nil {
		return nil, err
	}
	return identityToPayload(identity), nil
}

func (s *RPC) handleIdentityRead(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[identityParams](raw)
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	identity, err := s.svc.ReadIdentity(ctx, caller, p.Provider, p.Label, p.UID)
	if err != nil {
		return nil, err
	}
	return identityToPayload(identity), nil
}

func (s *RPC) handleIdentityDelete(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[identityParams](raw)
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.svc.DeleteIdentity(ctx, caller, p.Provider, p.Label, p.UID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RPC) handleIdentityList(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[listParams](raw)
	if err != nil {
		return nil, err
	}
	if p.FQ == "" {
		return nil, invalidParams("missing field `fq`")
	}
	var filter identityFilter
	if err := decodeFilter(p.FQ, &filter); err != nil {
		return nil, invalidParams("invalid field `fq`: %s", err)
	}
	items, err := s.svc.ListIdentities(ctx, caller, filter.AccountID, int(p.Limit), int(p.Offset))
	if err != nil {
		return nil, err
	}
	return identitiesToPayload(items), nil
}

// =============================================================================
// Namespaces
// =============================================================================

func (s *RPC) handleNamespaceCreate(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[namespaceCreateParams](raw)
	if err != nil {
		return nil, err
	}
	if p.Label == "" {
		return nil, invalidParams("missing field `label`")
	}
	namespace, err := s.svc.CreateNamespace(ctx, caller, p.Label, p.AccountID)
	if err != nil {
		return nil, err
	}
	return namespaceToPayload(namespace), nil
}

func (s *RPC) handleNamespaceRead(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("missing field `id`")
	}
	namespace, err := s.svc.ReadNamespace(ctx, caller, p.ID)
	if err != nil {
		return nil, err
	}
	return namespaceToPayload(namespace), nil
}

func (s *RPC) handleNamespaceUpdate(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[namespaceUpdateParams](raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("missing field `id`")
	}
	if p.Label == "" {
		return nil, invalidParams("missing field `label`")
	}
	namespace, err := s.svc.UpdateNamespaceLabel(ctx, caller, p.ID, p.Label)
	if err != nil {
		return nil, err
	}
	return namespaceToPayload(namespace), nil
}

func (s *RPC) handleNamespaceDelete(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[idParams](raw)
	if err != nil {
		return nil, err
	}
	if p.ID == "" {
		return nil, invalidParams("missing field `id`")
	}
	if err := s.svc.DeleteNamespace(ctx, caller, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RPC) handleNamespaceList(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[listParams](raw)
	if err != nil {
		return nil, err
	}
	if p.FQ == "" {
		return nil, invalidParams("missing field `fq`")
	}
	var filter namespaceFilter
	if err := decodeFilter(p.FQ, &filter); err != nil {
		return nil, invalidParams("invalid field `fq`: %s", err)
	}
	items, err := s.svc.ListNamespaces(ctx, caller, filter.AccountID, int(p.Limit), int(p.Offset))
	if err != nil {
		return nil, err
	}
	return namespacesToPayload(items), nil
}

// =============================================================================
// Attribute graph
// =============================================================================

func (s *RPC) makeEdgeCreate(rel models.Relation) rpcHandler {
	return func(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
		p, err := decodeEdgeParams(raw)
		if err != nil {
			return nil, err
		}
		edge, err := s.svc.CreateEdge(ctx, caller, rel, p.Inbound, p.Outbound)
		if err != nil {
			return nil, err
		}
		return edgeToPayload(edge), nil
	}
}

func (s *RPC) makeEdgeRead(rel models.Relation) rpcHandler {
	return func(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
		p, err := decodeEdgeParams(raw)
		if err != nil {
			return nil, err
		}
		edge, err := s.svc.ReadEdge(ctx, caller, rel, p.Inbound, p.Outbound)
		if err != nil {
			return nil, err
		}
		return edgeToPayload(edge), nil
	}
}

func (s *RPC) makeEdgeDelete(rel models.Relation) rpcHandler {
	return func(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
		p, err := decodeEdgeParams(raw)
		if err != nil {
			return nil, err
		}
		if err := s.svc.DeleteEdge(ctx, caller, rel, p.Inbound, p.Outbound); err != nil {
			return nil, err
		}
		return p, nil
	}
}

func decodeEdgeParams(raw json.RawMessage) (edgeParams, error) {
	p, err := decodeParams[edgeParams](raw)
	if err != nil {
		return p, err
	}
	if p.Inbound.IsZero() {
		return p, invalidParams("missing field `inbound`")
	}
	if p.Outbound.IsZero() {
		return p, invalidParams("missing field `outbound`")
	}
	return p, nil
}

func (s *RPC) makeEdgeList(rel models.Relation) rpcHandler {
	return func(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
		p, err := decodeParams[attributeListParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Attribute.IsZero() {
			return nil, invalidParams("missing field `attribute`")
		}
		attrs, err := s.svc.ListClosure(ctx, caller, rel, p.Attribute, int(p.Limit), int(p.Offset))
		if err != nil {
			return nil, err
		}
		if attrs == nil {
			attrs = []models.Attribute{}
		}
		return attrs, nil
	}
}

func (s *RPC) makeEdgeTree(rel models.Relation) rpcHandler {
	return func(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
		p, err := decodeParams[attributeTreeParams](raw)
		if err != nil {
			return nil, err
		}
		if p.Attribute.IsZero() {
			return nil, invalidParams("missing field `attribute`")
		}
		if p.Direction == "" {
			return nil, invalidParams("missing field `direction`")
		}
		edges, err := s.svc.TreeEdges(ctx, caller, rel, p.Attribute, p.Direction, int(p.Limit), int(p.Offset))
		if err != nil {
			return nil, err
		}
		// The page is the seed's neighbors, so only the opposite endpoint of
		// each edge is reported.
		attrs := make([]models.Attribute, 0, len(edges))
		for i := range edges {
			switch p.Direction {
			case models.DirectionInbound:
				attrs = append(attrs, edges[i].Inbound())
			case models.DirectionOutbound:
				attrs = append(attrs, edges[i].Outbound())
			}
		}
		return attrs, nil
	}
}

// =============================================================================
// Policies
// =============================================================================

func (s *RPC) handlePolicyCreate(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[policyCreateParams](raw)
	if err != nil {
		return nil, err
	}
	if p.NamespaceID == "" {
		return nil, invalidParams("missing field `namespace_id`")
	}
	policy, err := s.svc.CreatePolicy(ctx, caller, &models.Policy{
		Subject:     p.Subject,
		Object:      p.Object,
		Action:      p.Action,
		NamespaceID: p.NamespaceID,
		NotBefore:   p.NotBefore,
		ExpiredAt:   p.ExpiredAt,
	})
	if err != nil {
		return nil, err
	}
	return policyToPayload(policy), nil
}

func (p policyKeyParams) validate() error {
	for _, field := range []struct {
		name string
		ok   bool
	}{
		{"subject", len(p.Subject) > 0},
		{"object", len(p.Object) > 0},
		{"action", len(p.Action) > 0},
		{"namespace_id", p.NamespaceID != ""},
	} {
		if !field.ok {
			return invalidParams("missing field `%s`", field.name)
		}
	}
	return nil
}

func (s *RPC) handlePolicyRead(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[policyKeyParams](raw)
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	policy, err := s.svc.ReadPolicy(ctx, caller, p.Subject, p.Object, p.Action, p.NamespaceID)
	if err != nil {
		return nil, err
	}
	return policyToPayload(policy), nil
}

func (s *RPC) handlePolicyDelete(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[policyKeyParams](raw)
	if err != nil {
		return nil, err
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	if err := s.svc.DeletePolicy(ctx, caller, p.Subject, p.Object, p.Action, p.NamespaceID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *RPC) handlePolicyList(ctx context.Context, caller string, raw json.RawMessage) (any, error) {
	p, err := decodeParams[listParams](raw)
	if err != nil {
		return nil, err
	}
	if p.FQ == "" {
		return nil, invalidParams("missing field `fq`")
	}
	var filter policyFilter
	if err := decodeFilter(p.FQ, &filter); err != nil {
		return nil, invalidParams("invalid field `fq`: %s", err)
	}
	items, err := s.svc.ListPolicies(ctx, caller, filter.NamespaceIDs, int(p.Limit), int(p.Offset))
	if err != nil {
		return nil, err
	}
	return policiesToPayload(items), nil
}
