package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Namespace is an authorization tenant. Every attribute is scoped to one, and
// identity providers are namespaces whose label matches the provider label in
// the token endpoint path.
type Namespace struct {
	bun.BaseModel `bun:"table:namespaces,alias:ns"`

	ID        string     `bun:"id,pk,type:uuid"`
	Label     string     `bun:"label,notnull"`
	AccountID string     `bun:"account_id,notnull,type:uuid"`
	Enabled   bool       `bun:"enabled,notnull,default:true"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	DeletedAt *time.Time `bun:"deleted_at"`
}

// Active reports whether the namespace has not been deleted.
func (ns *Namespace) Active() bool {
	return ns != nil && ns.DeletedAt == nil
}

// Usable reports whether the namespace may act as an identity provider.
func (ns *Namespace) Usable() bool {
	return ns.Active() && ns.Enabled
}
