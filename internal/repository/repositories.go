package repository

import "github.com/uptrace/bun"

// Repositories bundles every store over one bun.IDB. Services take the bundle
// instead of six constructor arguments, and transactional code rebuilds it
// over a bun.Tx so all stores share the transaction.
type Repositories struct {
	Accounts      AccountRepository
	Identities    IdentityRepository
	Namespaces    NamespaceRepository
	RefreshTokens RefreshTokenRepository
	Edges         EdgeRepository
	Policies      PolicyRepository
}

// NewRepositories builds the bundle over db, which may be a transaction.
func NewRepositories(db bun.IDB) Repositories {
	return Repositories{
		Accounts:      NewBunAccountRepository(db),
		Identities:    NewBunIdentityRepository(db),
		Namespaces:    NewBunNamespaceRepository(db),
		RefreshTokens: NewBunRefreshTokenRepository(db),
		Edges:         NewBunEdgeRepository(db),
		Policies:      NewBunPolicyRepository(db),
	}
}
