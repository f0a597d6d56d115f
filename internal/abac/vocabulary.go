package abac

import (
	"fmt"

	"github.com/ivanovaleksey/iam-sub000/internal/db/models"
)

// Attribute keys of the built-in vocabulary. They are plain strings in
// storage; the constants only guard against typos.
const (
	KeyURI       = "uri"
	KeyType      = "type"
	KeyOperation = "operation"
)

// Collection tags every guarded API surface. The guard composes the tag into
// the object side of its meta-query, so wide policies over a whole collection
// are ordinary policies on [namespace-uri, type:<collection>].
type Collection string

const (
	CollectionAccount     Collection = "account"
	CollectionIdentity    Collection = "identity"
	CollectionNamespace   Collection = "namespace"
	CollectionSubjectAttr Collection = "abac_subject"
	CollectionObjectAttr  Collection = "abac_object"
	CollectionActionAttr  Collection = "abac_action"
	CollectionPolicy      Collection = "abac_policy"
)

// Collections lists every guarded collection in a stable order.
var Collections = []Collection{
	CollectionAccount,
	CollectionIdentity,
	CollectionNamespace,
	CollectionSubjectAttr,
	CollectionObjectAttr,
	CollectionActionAttr,
	CollectionPolicy,
}

// Verb is a guarded operation kind. VerbAny only appears in policies and in
// the action grouping seeded at bootstrap, never in guard queries.
type Verb string

const (
	VerbCreate Verb = "create"
	VerbRead   Verb = "read"
	VerbUpdate Verb = "update"
	VerbDelete Verb = "delete"
	// VerbList also guards the one-hop tree reads; the vocabulary has no
	// separate tree verb.
	VerbList Verb = "list"
	VerbAny  Verb = "any"
)

// Verbs lists the concrete verbs (excluding VerbAny) in a stable order.
var Verbs = []Verb{VerbCreate, VerbRead, VerbUpdate, VerbDelete, VerbList}

// CollectionFor maps an edge relation to the collection guarding it.
func CollectionFor(rel models.Relation) Collection {
	switch rel {
	case models.RelationSubject:
		return CollectionSubjectAttr
	case models.RelationObject:
		return CollectionObjectAttr
	case models.RelationAction:
		return CollectionActionAttr
	}
	return ""
}

// AccountURI builds the uri attribute identifying an account.
func AccountURI(namespaceID, accountID string) models.Attribute {
	return models.Attribute{NamespaceID: namespaceID, Key: KeyURI, Value: "account/" + accountID}
}

// NamespaceURI builds the uri attribute identifying a namespace.
func NamespaceURI(namespaceID, targetNamespaceID string) models.Attribute {
	return models.Attribute{NamespaceID: namespaceID, Key: KeyURI, Value: "namespace/" + targetNamespaceID}
}

// IdentityURI builds the uri attribute identifying a provider identity.
func IdentityURI(namespaceID, provider, label, uid string) models.Attribute {
	return models.Attribute{
		NamespaceID: namespaceID,
		Key:         KeyURI,
		Value:       fmt.Sprintf("identity/%s/%s/%s", provider, label, uid),
	}
}

// TypeAttr builds the type attribute tagging a collection.
func TypeAttr(namespaceID string, collection Collection) models.Attribute {
	return models.Attribute{NamespaceID: namespaceID, Key: KeyType, Value: string(collection)}
}

// OperationAttr builds the operation attribute for a verb.
func OperationAttr(namespaceID string, verb Verb) models.Attribute {
	return models.Attribute{NamespaceID: namespaceID, Key: KeyOperation, Value: string(verb)}
}
