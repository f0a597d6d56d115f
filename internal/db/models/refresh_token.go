package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// SecretKeys holds the ordered HMAC secrets of a refresh-token record as a
// JSON column (encoding/json renders each key base64). Only the first key
// signs and verifies; revocation replaces the whole list.
type SecretKeys [][]byte

// Scan implements sql.Scanner for reading from database
func (k *SecretKeys) Scan(value any) error {
	if value == nil {
		*k = SecretKeys{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan SecretKeys: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, k)
}

// Value implements driver.Valuer for writing to database
func (k SecretKeys) Value() (driver.Value, error) {
	if k == nil {
		k = SecretKeys{}
	}
	bytes, err := json.Marshal(k)
	if err != nil {
		return nil, err
	}
	return string(bytes), nil
}

// RefreshToken is the per-account signing state for refresh tokens. One row
// per account, created with the account and deleted with it.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rt"`

	AccountID string     `bun:"account_id,pk,type:uuid"`
	Algorithm string     `bun:"algorithm,notnull"`
	Keys      SecretKeys `bun:"keys,type:text,notnull"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

// CurrentKey returns the active signing secret, or nil when the record has no
// keys.
func (rt *RefreshToken) CurrentKey() []byte {
	if rt == nil || len(rt.Keys) == 0 {
		return nil
	}
	return rt.Keys[0]
}
