package iam

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ivanovaleksey/iam-sub000/internal/abac"
	"github.com/ivanovaleksey/iam-sub000/internal/auth"
	"github.com/ivanovaleksey/iam-sub000/internal/config"
	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
	"github.com/ivanovaleksey/iam-sub000/internal/repository"
)

// testNS is the governing namespace id used throughout the service tests.
const testNS = "00000000-0000-4000-8000-000000000000"

// fakeStore is a map-backed stand-in for the database. The adapter types
// below implement the repository interfaces over it, mirroring the SQL
// behavior the service depends on: ErrNotFound and ErrAlreadyExists, soft
// deletes hiding rows, exact-subject policy purges. err poisons every call
// to simulate storage failures.
type fakeStore struct {
	accounts   map[string]*models.Account
	identities map[string]*models.Identity
	namespaces map[string]*models.Namespace
	refresh    map[string]*models.RefreshToken
	edges      map[models.Relation][]models.Edge
	policies   []models.Policy
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts:   make(map[string]*models.Account),
		identities: make(map[string]*models.Identity),
		namespaces: make(map[string]*models.Namespace),
		refresh:    make(map[string]*models.RefreshToken),
		edges:      make(map[models.Relation][]models.Edge),
	}
}

func (f *fakeStore) repos() repository.Repositories {
	return repository.Repositories{
		Accounts:      fakeAccountRepo{f},
		Identities:    fakeIdentityRepo{f},
		Namespaces:    fakeNamespaceRepo{f},
		RefreshTokens: fakeRefreshTokenRepo{f},
		Edges:         fakeEdgeRepo{f},
		Policies:      fakePolicyRepo{f},
	}
}

func (f *fakeStore) addEdge(rel models.Relation, inbound, outbound models.Attribute) {
	f.edges[rel] = append(f.edges[rel], *models.NewEdge(inbound, outbound))
}

func identityKey(provider, label, uid string) string {
	return provider + "/" + label + "/" + uid
}

func cut[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit < len(items) {
		items = items[:limit]
	}
	return items
}

// ---- accounts ----

type fakeAccountRepo struct{ s *fakeStore }

func (r fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	if r.s.err != nil {
		return r.s.err
	}
	if _, ok := r.s.accounts[account.ID]; ok {
		return fmt.Errorf("account %s: %w", account.ID, repository.ErrAlreadyExists)
	}
	r.s.accounts[account.ID] = account
	return nil
}

func (r fakeAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	account, ok := r.s.accounts[id]
	if !ok || account.DeletedAt != nil {
		return nil, fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	return account, nil
}

func (r fakeAccountRepo) SetEnabled(_ context.Context, id string, enabled bool) error {
	if r.s.err != nil {
		return r.s.err
	}
	account, ok := r.s.accounts[id]
	if !ok || account.DeletedAt != nil {
		return fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	account.Enabled = enabled
	if enabled {
		account.DisabledAt = nil
	} else {
		now := time.Now()
		account.DisabledAt = &now
	}
	return nil
}

func (r fakeAccountRepo) SoftDelete(_ context.Context, id string) error {
	if r.s.err != nil {
		return r.s.err
	}
	account, ok := r.s.accounts[id]
	if !ok || account.DeletedAt != nil {
		return fmt.Errorf("account %s: %w", id, repository.ErrNotFound)
	}
	now := time.Now()
	account.DeletedAt = &now
	return nil
}

// ---- identities ----

type fakeIdentityRepo struct{ s *fakeStore }

func (r fakeIdentityRepo) Create(_ context.Context, identity *models.Identity) error {
	if r.s.err != nil {
		return r.s.err
	}
	key := identityKey(identity.Provider, identity.Label, identity.UID)
	if _, ok := r.s.identities[key]; ok {
		return fmt.Errorf("identity %s: %w", identity, repository.ErrAlreadyExists)
	}
	r.s.identities[key] = identity
	return nil
}

func (r fakeIdentityRepo) Get(_ context.Context, provider, label, uid string) (*models.Identity, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	identity, ok := r.s.identities[identityKey(provider, label, uid)]
	if !ok {
		return nil, fmt.Errorf("identity: %w", repository.ErrNotFound)
	}
	return identity, nil
}

func (r fakeIdentityRepo) Delete(_ context.Context, provider, label, uid string) error {
	if r.s.err != nil {
		return r.s.err
	}
	key := identityKey(provider, label, uid)
	if _, ok := r.s.identities[key]; !ok {
		return fmt.Errorf("identity: %w", repository.ErrNotFound)
	}
	delete(r.s.identities, key)
	return nil
}

func (r fakeIdentityRepo) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.Identity, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	keys := make([]string, 0, len(r.s.identities))
	for key, identity := range r.s.identities {
		if identity.AccountID == accountID {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	identities := make([]models.Identity, 0, len(keys))
	for _, key := range keys {
		identities = append(identities, *r.s.identities[key])
	}
	return cut(identities, limit, offset), nil
}

func (r fakeIdentityRepo) CountByAccount(_ context.Context, accountID string) (int, error) {
	if r.s.err != nil {
		return 0, r.s.err
	}
	count := 0
	for _, identity := range r.s.identities {
		if identity.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

// ---- namespaces ----

type fakeNamespaceRepo struct{ s *fakeStore }

func (r fakeNamespaceRepo) Create(_ context.Context, ns *models.Namespace) error {
	if r.s.err != nil {
		return r.s.err
	}
	if _, ok := r.s.namespaces[ns.ID]; ok {
		return fmt.Errorf("namespace %s: %w", ns.ID, repository.ErrAlreadyExists)
	}
	for _, existing := range r.s.namespaces {
		if existing.Label == ns.Label && existing.DeletedAt == nil {
			return fmt.Errorf("namespace %q: %w", ns.Label, repository.ErrAlreadyExists)
		}
	}
	r.s.namespaces[ns.ID] = ns
	return nil
}

func (r fakeNamespaceRepo) GetByID(_ context.Context, id string) (*models.Namespace, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	ns, ok := r.s.namespaces[id]
	if !ok || ns.DeletedAt != nil {
		return nil, fmt.Errorf("namespace %s: %w", id, repository.ErrNotFound)
	}
	return ns, nil
}

func (r fakeNamespaceRepo) GetByLabel(_ context.Context, label string) (*models.Namespace, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	for _, ns := range r.s.namespaces {
		if ns.Label == label && ns.Enabled && ns.DeletedAt == nil {
			return ns, nil
		}
	}
	return nil, fmt.Errorf("namespace %q: %w", label, repository.ErrNotFound)
}

func (r fakeNamespaceRepo) UpdateLabel(_ context.Context, id, label string) error {
	if r.s.err != nil {
		return r.s.err
	}
	ns, ok := r.s.namespaces[id]
	if !ok || ns.DeletedAt != nil {
		return fmt.Errorf("namespace %s: %w", id, repository.ErrNotFound)
	}
	for _, existing := range r.s.namespaces {
		if existing.ID != id && existing.Label == label && existing.DeletedAt == nil {
			return fmt.Errorf("namespace %q: %w", label, repository.ErrAlreadyExists)
		}
	}
	ns.Label = label
	return nil
}

func (r fakeNamespaceRepo) SoftDelete(_ context.Context, id string) error {
	if r.s.err != nil {
		return r.s.err
	}
	ns, ok := r.s.namespaces[id]
	if !ok || ns.DeletedAt != nil {
		return fmt.Errorf("namespace %s: %w", id, repository.ErrNotFound)
	}
	now := time.Now()
	ns.DeletedAt = &now
	return nil
}

func (r fakeNamespaceRepo) ListByAccount(_ context.Context, accountID string, limit, offset int) ([]models.Namespace, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	var namespaces []models.Namespace
	for _, ns := range r.s.namespaces {
		if ns.AccountID == accountID && ns.DeletedAt == nil {
			namespaces = append(namespaces, *ns)
		}
	}
	sort.Slice(namespaces, func(i, j int) bool { return namespaces[i].ID < namespaces[j].ID })
	return cut(namespaces, limit, offset), nil
}

// ---- refresh tokens ----

type fakeRefreshTokenRepo struct{ s *fakeStore }

func (r fakeRefreshTokenRepo) Create(_ context.Context, token *models.RefreshToken) error {
	if r.s.err != nil {
		return r.s.err
	}
	if _, ok := r.s.refresh[token.AccountID]; ok {
		return fmt.Errorf("refresh token %s: %w", token.AccountID, repository.ErrAlreadyExists)
	}
	r.s.refresh[token.AccountID] = token
	return nil
}

func (r fakeRefreshTokenRepo) GetByAccount(_ context.Context, accountID string) (*models.RefreshToken, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	token, ok := r.s.refresh[accountID]
	if !ok {
		return nil, fmt.Errorf("refresh token %s: %w", accountID, repository.ErrNotFound)
	}
	return token, nil
}

func (r fakeRefreshTokenRepo) ReplaceKeys(_ context.Context, accountID string, keys models.SecretKeys) error {
	if r.s.err != nil {
		return r.s.err
	}
	token, ok := r.s.refresh[accountID]
	if !ok {
		return fmt.Errorf("refresh token %s: %w", accountID, repository.ErrNotFound)
	}
	token.Keys = keys
	return nil
}

func (r fakeRefreshTokenRepo) DeleteByAccount(_ context.Context, accountID string) error {
	if r.s.err != nil {
		return r.s.err
	}
	if _, ok := r.s.refresh[accountID]; !ok {
		return fmt.Errorf("refresh token %s: %w", accountID, repository.ErrNotFound)
	}
	delete(r.s.refresh, accountID)
	return nil
}

// ---- edges ----

type fakeEdgeRepo struct{ s *fakeStore }

func (r fakeEdgeRepo) Create(_ context.Context, rel models.Relation, edge *models.Edge) error {
	if r.s.err != nil {
		return r.s.err
	}
	for _, existing := range r.s.edges[rel] {
		if existing.Inbound() == edge.Inbound() && existing.Outbound() == edge.Outbound() {
			return fmt.Errorf("edge %s: %w", edge, repository.ErrAlreadyExists)
		}
	}
	r.s.edges[rel] = append(r.s.edges[rel], *edge)
	return nil
}

func (r fakeEdgeRepo) Get(_ context.Context, rel models.Relation, inbound, outbound models.Attribute) (*models.Edge, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	for i := range r.s.edges[rel] {
		edge := r.s.edges[rel][i]
		if edge.Inbound() == inbound && edge.Outbound() == outbound {
			return &edge, nil
		}
	}
	return nil, fmt.Errorf("edge: %w", repository.ErrNotFound)
}

func (r fakeEdgeRepo) Delete(_ context.Context, rel models.Relation, inbound, outbound models.Attribute) error {
	if r.s.err != nil {
		return r.s.err
	}
	for i, edge := range r.s.edges[rel] {
		if edge.Inbound() == inbound && edge.Outbound() == outbound {
			r.s.edges[rel] = append(r.s.edges[rel][:i], r.s.edges[rel][i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("edge: %w", repository.ErrNotFound)
}

func (r fakeEdgeRepo) SelectOutbound(_ context.Context, rel models.Relation, seeds []models.Attribute) ([]models.Edge, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	seedSet := make(map[models.Attribute]struct{}, len(seeds))
	for _, seed := range seeds {
		seedSet[seed] = struct{}{}
	}
	var out []models.Edge
	for _, edge := range r.s.edges[rel] {
		if _, ok := seedSet[edge.Inbound()]; ok {
			out = append(out, edge)
		}
	}
	return out, nil
}

func (r fakeEdgeRepo) SelectNeighbors(_ context.Context, rel models.Relation, direction models.Direction, seed models.Attribute, limit, offset int) ([]models.Edge, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	var out []models.Edge
	for _, edge := range r.s.edges[rel] {
		switch direction {
		case models.DirectionOutbound:
			if edge.Inbound() == seed {
				out = append(out, edge)
			}
		case models.DirectionInbound:
			if edge.Outbound() == seed {
				out = append(out, edge)
			}
		}
	}
	return cut(out, limit, offset), nil
}

func (r fakeEdgeRepo) ListAll(_ context.Context, rel models.Relation, limit, offset int) ([]models.Edge, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	return cut(append([]models.Edge{}, r.s.edges[rel]...), limit, offset), nil
}

func (r fakeEdgeRepo) DeleteByAttribute(_ context.Context, rel models.Relation, attr models.Attribute) (int64, error) {
	if r.s.err != nil {
		return 0, r.s.err
	}
	var kept []models.Edge
	var removed int64
	for _, edge := range r.s.edges[rel] {
		if edge.Inbound() == attr || edge.Outbound() == attr {
			removed++
			continue
		}
		kept = append(kept, edge)
	}
	r.s.edges[rel] = kept
	return removed, nil
}

func (r fakeEdgeRepo) DeleteByNamespace(_ context.Context, rel models.Relation, namespaceID string) (int64, error) {
	if r.s.err != nil {
		return 0, r.s.err
	}
	var kept []models.Edge
	var removed int64
	for _, edge := range r.s.edges[rel] {
		if edge.InboundNamespaceID == namespaceID || edge.OutboundNamespaceID == namespaceID {
			removed++
			continue
		}
		kept = append(kept, edge)
	}
	r.s.edges[rel] = kept
	return removed, nil
}

// ---- policies ----

type fakePolicyRepo struct{ s *fakeStore }

func samePolicy(p *models.Policy, subject, object, action models.AttributeList, namespaceID string) bool {
	return p.NamespaceID == namespaceID &&
		p.Subject.Equal(subject) && p.Object.Equal(object) && p.Action.Equal(action)
}

func (r fakePolicyRepo) Create(_ context.Context, policy *models.Policy) error {
	if r.s.err != nil {
		return r.s.err
	}
	for i := range r.s.policies {
		if samePolicy(&r.s.policies[i], policy.Subject, policy.Object, policy.Action, policy.NamespaceID) {
			return fmt.Errorf("policy: %w", repository.ErrAlreadyExists)
		}
	}
	r.s.policies = append(r.s.policies, *policy)
	return nil
}

func (r fakePolicyRepo) Get(_ context.Context, subject, object, action models.AttributeList, namespaceID string) (*models.Policy, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	for i := range r.s.policies {
		if samePolicy(&r.s.policies[i], subject, object, action, namespaceID) {
			policy := r.s.policies[i]
			return &policy, nil
		}
	}
	return nil, fmt.Errorf("policy: %w", repository.ErrNotFound)
}

func (r fakePolicyRepo) Delete(_ context.Context, subject, object, action models.AttributeList, namespaceID string) error {
	if r.s.err != nil {
		return r.s.err
	}
	for i := range r.s.policies {
		if samePolicy(&r.s.policies[i], subject, object, action, namespaceID) {
			r.s.policies = append(r.s.policies[:i], r.s.policies[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("policy: %w", repository.ErrNotFound)
}

func (r fakePolicyRepo) SelectByNamespaces(_ context.Context, namespaceIDs []string, limit, offset int) ([]models.Policy, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	requested := make(map[string]struct{}, len(namespaceIDs))
	for _, id := range namespaceIDs {
		requested[id] = struct{}{}
	}
	var out []models.Policy
	for _, policy := range r.s.policies {
		if _, ok := requested[policy.NamespaceID]; ok {
			out = append(out, policy)
		}
	}
	return cut(out, limit, offset), nil
}

func (r fakePolicyRepo) SelectActiveByNamespaces(_ context.Context, namespaceIDs []string, now time.Time) ([]models.Policy, error) {
	if r.s.err != nil {
		return nil, r.s.err
	}
	requested := make(map[string]struct{}, len(namespaceIDs))
	for _, id := range namespaceIDs {
		requested[id] = struct{}{}
	}
	var out []models.Policy
	for _, policy := range r.s.policies {
		if _, ok := requested[policy.NamespaceID]; !ok {
			continue
		}
		if policy.ActiveAt(now) {
			out = append(out, policy)
		}
	}
	return out, nil
}

func (r fakePolicyRepo) DeleteBySubject(_ context.Context, subject models.AttributeList) (int64, error) {
	if r.s.err != nil {
		return 0, r.s.err
	}
	var kept []models.Policy
	var removed int64
	for _, policy := range r.s.policies {
		if policy.Subject.Equal(subject) {
			removed++
			continue
		}
		kept = append(kept, policy)
	}
	r.s.policies = kept
	return removed, nil
}

// policiesBySubject counts the stored policies carrying the exact subject
// composite, for assertions on purge behavior.
func (s *fakeStore) policiesBySubject(subject models.AttributeList) int {
	count := 0
	for _, policy := range s.policies {
		if policy.Subject.Equal(subject) {
			count++
		}
	}
	return count
}

// ---- service wiring ----

// newTestService builds an iamService over the fake store with a runner that
// skips real transactions but still hands mutations a fresh evaluator, the
// same shape production code sees.
func newTestService(store *fakeStore, keys *auth.KeySet) *iamService {
	cfg := &config.Config{
		IAMNamespaceID: testNS,
		Tokens:         config.TokensConfig{Issuer: "iam.test", ExpiresIn: 300, ExpiresInMax: 86400},
		Pagination:     config.PaginationConfig{Limit: 25, LimitMax: 100},
		Expansion:      config.ExpansionConfig{MaxDepth: 16, MaxRows: 1024},
	}
	repos := store.repos()
	newEvaluator := func() *abac.Evaluator {
		expander := abac.NewExpander(repos.Edges, cfg.Expansion.MaxDepth, cfg.Expansion.MaxRows)
		return abac.NewEvaluator(expander, repos.Policies, nil)
	}
	return &iamService{
		repos:     repos,
		expander:  abac.NewExpander(repos.Edges, cfg.Expansion.MaxDepth, cfg.Expansion.MaxRows),
		evaluator: newEvaluator(),
		guard:     abac.NewGuard(testNS),
		keys:      keys,
		logger:    log.New(io.Discard),
		cfg:       cfg,
		run: func(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories, ev *abac.Evaluator) error) error {
			return fn(ctx, repos, newEvaluator())
		},
	}
}

// seedGoverned installs the governing namespace, an admin account and the
// vocabulary the guard depends on, the same rows bootstrap writes.
func seedGoverned(store *fakeStore, adminID string) {
	store.accounts[adminID] = &models.Account{ID: adminID, Enabled: true}
	store.namespaces[testNS] = &models.Namespace{ID: testNS, Label: "iam", AccountID: adminID, Enabled: true}

	for _, verb := range abac.Verbs {
		store.addEdge(models.RelationAction, abac.OperationAttr(testNS, verb), abac.OperationAttr(testNS, abac.VerbAny))
	}
	for _, collection := range abac.Collections {
		store.addEdge(models.RelationObject, abac.TypeAttr(testNS, collection), abac.NamespaceURI(testNS, testNS))
	}
	store.policies = append(store.policies, models.Policy{
		Subject:     models.AttributeList{abac.AccountURI(testNS, adminID)},
		Object:      models.AttributeList{abac.NamespaceURI(testNS, testNS)},
		Action:      models.AttributeList{abac.OperationAttr(testNS, abac.VerbAny)},
		NamespaceID: testNS,
	})
}
