package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Attribute is the atom of the authorization model: a (namespace, key, value)
// triple. Attributes are not stored on their own; they exist as edge endpoints
// and as policy composite members.
type Attribute struct {
	NamespaceID string `json:"namespace_id"`
	Key         string `json:"key"`
	Value       string `json:"value"`
}

// String renders the attribute in the compact form used in logs.
func (a Attribute) String() string {
	return fmt.Sprintf("%s/%s:%s", a.NamespaceID, a.Key, a.Value)
}

// IsZero reports whether the attribute has no content.
func (a Attribute) IsZero() bool {
	return a.NamespaceID == "" && a.Key == "" && a.Value == ""
}

// AttributeList is an ordered attribute composite. Policies store one list per
// side (subject, object, action); equality is componentwise and
// order-sensitive, which the canonical JSON encoding below preserves.
type AttributeList []Attribute

// Equal reports componentwise equality in order.
func (l AttributeList) Equal(other AttributeList) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// Contains reports whether the list has the given attribute at any position.
func (l AttributeList) Contains(a Attribute) bool {
	for i := range l {
		if l[i] == a {
			return true
		}
	}
	return false
}

// Canonical returns the compact JSON encoding used as the storage
// representation. Field order is fixed by the struct, so equal lists always
// encode to equal bytes.
func (l AttributeList) Canonical() (string, error) {
	if l == nil {
		l = AttributeList{}
	}
	bytes, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("failed to encode attribute list: %w", err)
	}
	return string(bytes), nil
}

// Scan implements sql.Scanner for reading from database
func (l *AttributeList) Scan(value any) error {
	if value == nil {
		*l = AttributeList{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("failed to scan AttributeList: expected []byte or string, got %T", value)
	}
	return json.Unmarshal(bytes, l)
}

// Value implements driver.Valuer for writing to database
func (l AttributeList) Value() (driver.Value, error) {
	return l.Canonical()
}
