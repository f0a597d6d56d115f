package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Account is the internal principal every identity maps to. Accounts are never
// created directly: the first identity of a subject creates one, and deleting
// the last identity removes it again.
//
// Enabled gates the token lifecycle (disabled accounts cannot retrieve,
// refresh or revoke tokens). DeletedAt tombstones the account: deleted
// accounts are invisible to all reads.
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:a"`

	ID         string     `bun:"id,pk,type:uuid"`
	Enabled    bool       `bun:"enabled,notnull,default:true"`
	CreatedAt  time.Time  `bun:"created_at,notnull,default:current_timestamp"`
	DisabledAt *time.Time `bun:"disabled_at"`
	DeletedAt  *time.Time `bun:"deleted_at"`
}

// Active reports whether the account has not been deleted.
func (a *Account) Active() bool {
	return a != nil && a.DeletedAt == nil
}

// Usable reports whether the account may take part in the token lifecycle.
func (a *Account) Usable() bool {
	return a.Active() && a.Enabled
}

// Identity is an external credential mapped onto an account: the Provider
// namespace issued a subject identifier UID under the flow Label. One account
// may carry several identities from different providers.
type Identity struct {
	bun.BaseModel `bun:"table:identities,alias:i"`

	Provider  string    `bun:"provider,pk,type:uuid"`
	Label     string    `bun:"label,pk"`
	UID       string    `bun:"uid,pk"`
	AccountID string    `bun:"account_id,notnull,type:uuid"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// String renders the identity triple for logs.
func (i *Identity) String() string {
	return fmt.Sprintf("%s.%s.%s", i.Provider, i.Label, i.UID)
}
