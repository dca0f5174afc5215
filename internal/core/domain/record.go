package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Domain identifies one of the indexable source domains.
// Each domain has its own index table and its own collector.
type Domain string

// Indexable domains.
const (
	DomainDocuments     Domain = "documents"
	DomainProducts      Domain = "products"
	DomainEntities      Domain = "entities"
	DomainConversations Domain = "conversations"
	DomainMemories      Domain = "memories"
)

// AllDomains returns every indexable domain in reindexing order.
// The reindexer processes domains strictly in this sequence.
func AllDomains() []Domain {
	return []Domain{
		DomainDocuments,
		DomainProducts,
		DomainEntities,
		DomainConversations,
		DomainMemories,
	}
}

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	switch d {
	case DomainDocuments, DomainProducts, DomainEntities, DomainConversations, DomainMemories:
		return true
	}
	return false
}

// ParseDomain converts a string to a Domain.
func ParseDomain(s string) (Domain, bool) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	return d, d.Valid()
}

// identitySeparator joins identity part values into a single key.
// Unit separator cannot appear in paths, codes or session IDs.
const identitySeparator = "\x1f"

// IdentityPart is one field of a composite record identity.
type IdentityPart struct {
	// Field is the column name of this part in the domain's index table.
	Field string

	// Value is the serialised value of this part.
	Value string
}

// Identity is the domain-specific composite key of an indexed record.
// It is stable across re-embeddings; the content hash is not part of it.
type Identity []IdentityPart

// NewIdentity builds an identity from alternating field/value pairs.
func NewIdentity(pairs ...string) Identity {
	id := make(Identity, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		id = append(id, IdentityPart{Field: pairs[i], Value: pairs[i+1]})
	}
	return id
}

// Key returns the identity values joined into a single dedup key.
// Two records are the same record iff their keys are equal.
func (id Identity) Key() string {
	values := make([]string, len(id))
	for i, part := range id {
		values[i] = part.Value
	}
	return strings.Join(values, identitySeparator)
}

// String renders the identity for logs, e.g. "path=docs/a.md chunk_index=2".
func (id Identity) String() string {
	parts := make([]string, len(id))
	for i, part := range id {
		parts[i] = part.Field + "=" + part.Value
	}
	return strings.Join(parts, " ")
}

// Record is an indexed record: the unit of embedding, storage and retrieval.
type Record struct {
	// Domain is the source domain this record belongs to.
	Domain Domain

	// Identity is the composite key, unique within the domain.
	Identity Identity

	// Text is the exact string that was or will be embedded.
	Text string

	// Vector is the embedding, nil while the record is pending.
	// A record with a nil vector is excluded from search.
	Vector []float32

	// ContentHash is the digest of Text, used only for staleness detection.
	ContentHash string

	// Model identifies the embedding model that produced Vector.
	Model string

	// Metadata carries denormalised display/filter fields alongside
	// the vector so search results need no join.
	Metadata map[string]any

	// CreatedAt is when the record was first indexed.
	CreatedAt time.Time

	// UpdatedAt advances on every upsert of the same identity.
	UpdatedAt time.Time
}

// Indexed reports whether the record has an embedding and is searchable.
func (r *Record) Indexed() bool {
	return len(r.Vector) > 0
}

// HashText computes the content hash over an embeddable text.
// The same text always hashes to the same value; any edit changes it.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CollectorStats summarises one collector pass for observability.
type CollectorStats struct {
	// TotalSeen is the number of source rows read.
	TotalSeen int

	// Indexable is the number of records produced after filtering.
	Indexable int

	// DistinctGroups is the number of distinct source groupings seen
	// (documents, sessions, entity groups).
	DistinctGroups int

	// Malformed is the number of rows skipped because they failed
	// normalisation. Malformed rows never abort a pass.
	Malformed int
}
