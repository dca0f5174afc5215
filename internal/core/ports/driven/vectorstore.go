package driven

import (
	"context"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// VectorStore persists indexed records and serves both retrieval paths.
// Implementations select a similarity backend at startup by probing the
// relational engine for vector support; callers never see the difference.
type VectorStore interface {
	// Upsert inserts or updates records keyed by identity. A conflicting
	// identity updates text, vector, metadata, model and updated_at; it
	// never creates a duplicate row.
	Upsert(ctx context.Context, dom domain.Domain, records []domain.Record) error

	// DeleteDomain removes every record of a domain. Used only for full
	// rebuilds; the caller must re-upsert the domain afterwards.
	DeleteDomain(ctx context.Context, dom domain.Domain) error

	// Search returns records ranked by cosine similarity to the query
	// vector, filtered by params. Pending records (nil vector) are
	// excluded.
	Search(ctx context.Context, dom domain.Domain, query []float32, params SearchParams) ([]VectorHit, error)

	// LexicalSearch matches records whose text contains every term of the
	// query (case-insensitive AND), ranked by occurrence count descending.
	LexicalSearch(ctx context.Context, dom domain.Domain, query string, limit int) ([]LexicalHit, error)

	// ExistingState returns the stored staleness state for a domain in a
	// single query, keyed by identity key.
	ExistingState(ctx context.Context, dom domain.Domain) (map[string]StoredState, error)

	// Backend names the active similarity backend ("native" or "fallback").
	Backend(ctx context.Context) string
}

// SearchParams bound a similarity search.
type SearchParams struct {
	// Limit is the maximum number of hits returned.
	Limit int

	// MinSimilarity drops hits below this cosine similarity.
	MinSimilarity float64

	// Filters restricts hits to records whose metadata matches every
	// key/value pair exactly.
	Filters map[string]string
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// Record is the matched record.
	Record domain.Record

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}

// LexicalHit is a keyword search result.
type LexicalHit struct {
	// Record is the matched record.
	Record domain.Record

	// Occurrences is the total count of query term occurrences in the text.
	Occurrences int
}

// StoredState is the persisted staleness state of one identity.
type StoredState struct {
	// ContentHash is the digest of the text that was embedded.
	ContentHash string

	// HasVector reports whether an embedding is stored. A record is
	// skipped only when the hash matches and a vector exists.
	HasVector bool

	// Model is the embedding model that produced the stored vector.
	Model string
}
