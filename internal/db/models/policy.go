package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Policy grants the subject composite the action composite over the object
// composite. The three sides are stored as canonical JSON text, so the
// composite primary key compares componentwise and order-sensitive: two
// policies with the same attributes in a different order are different rows.
type Policy struct {
	bun.BaseModel `bun:"table:abac_policy,alias:p"`

	Subject     AttributeList `bun:"subject,pk,type:text"`
	Object      AttributeList `bun:"object,pk,type:text"`
	Action      AttributeList `bun:"action,pk,type:text"`
	NamespaceID string        `bun:"namespace_id,pk,type:uuid"`
	CreatedAt   time.Time     `bun:"created_at,notnull,default:current_timestamp"`
	NotBefore   *time.Time    `bun:"not_before"`
	ExpiredAt   *time.Time    `bun:"expired_at"`
}

// ActiveAt reports whether the policy participates in decisions at the given
// instant. A nil bound is open.
func (p *Policy) ActiveAt(now time.Time) bool {
	if p.NotBefore != nil && now.Before(*p.NotBefore) {
		return false
	}
	if p.ExpiredAt != nil && !now.Before(*p.ExpiredAt) {
		return false
	}
	return true
}
