package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Relation selects one of the three edge tables. Subject edges group
// principals, object edges group resources, action edges group operations.
type Relation string

const (
	RelationSubject Relation = "subject"
	RelationObject  Relation = "object"
	RelationAction  Relation = "action"
)

// Relations lists all edge relations in a stable order.
var Relations = []Relation{RelationSubject, RelationObject, RelationAction}

// Table returns the backing table name for the relation.
func (r Relation) Table() string {
	switch r {
	case RelationSubject:
		return "abac_subject"
	case RelationObject:
		return "abac_object"
	case RelationAction:
		return "abac_action"
	}
	return ""
}

// Valid reports whether the relation names a known edge table.
func (r Relation) Valid() bool {
	return r.Table() != ""
}

// Direction selects which endpoint of an edge a one-hop query starts from.
type Direction string

const (
	// DirectionInbound walks from the outbound endpoint to its members.
	DirectionInbound Direction = "inbound"
	// DirectionOutbound walks from the inbound endpoint to its groups.
	DirectionOutbound Direction = "outbound"
)

// Valid reports whether the direction is one of the two known values.
func (d Direction) Valid() bool {
	return d == DirectionInbound || d == DirectionOutbound
}

// Edge is a directed link between two attributes. The inbound endpoint is the
// more specific side, the outbound endpoint the more general one: "inbound is
// a member of outbound". All three relation tables share this shape; queries
// pick the table with ModelTableExpr.
//
// Edges are immutable: they are inserted and deleted, never updated.
type Edge struct {
	bun.BaseModel `bun:"table:abac_object"`

	InboundNamespaceID  string    `bun:"inbound_namespace_id,pk,type:uuid"`
	InboundKey          string    `bun:"inbound_key,pk"`
	InboundValue        string    `bun:"inbound_value,pk"`
	OutboundNamespaceID string    `bun:"outbound_namespace_id,pk,type:uuid"`
	OutboundKey         string    `bun:"outbound_key,pk"`
	OutboundValue       string    `bun:"outbound_value,pk"`
	CreatedAt           time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// NewEdge builds an edge between two attribute endpoints.
func NewEdge(inbound, outbound Attribute) *Edge {
	return &Edge{
		InboundNamespaceID:  inbound.NamespaceID,
		InboundKey:          inbound.Key,
		InboundValue:        inbound.Value,
		OutboundNamespaceID: outbound.NamespaceID,
		OutboundKey:         outbound.Key,
		OutboundValue:       outbound.Value,
	}
}

// ValidateForCreate checks that both endpoints are fully specified.
func (e *Edge) ValidateForCreate() error {
	for _, part := range []struct {
		name  string
		value string
	}{
		{"inbound namespace_id", e.InboundNamespaceID},
		{"inbound key", e.InboundKey},
		{"inbound value", e.InboundValue},
		{"outbound namespace_id", e.OutboundNamespaceID},
		{"outbound key", e.OutboundKey},
		{"outbound value", e.OutboundValue},
	} {
		if part.value == "" {
			return fmt.Errorf("%s is required", part.name)
		}
	}
	return nil
}

// Inbound returns the specific endpoint as an attribute value.
func (e *Edge) Inbound() Attribute {
	return Attribute{NamespaceID: e.InboundNamespaceID, Key: e.InboundKey, Value: e.InboundValue}
}

// Outbound returns the general endpoint as an attribute value.
func (e *Edge) Outbound() Attribute {
	return Attribute{NamespaceID: e.OutboundNamespaceID, Key: e.OutboundKey, Value: e.OutboundValue}
}

// String renders the edge for logs.
func (e *Edge) String() string {
	return fmt.Sprintf("%s -> %s", e.Inbound(), e.Outbound())
}
