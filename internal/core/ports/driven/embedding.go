package driven

import "context"

// InputType distinguishes document and query embeddings. Providers may
// produce numerically different vectors for the same text depending on
// which side of the similarity comparison it sits on.
type InputType string

// Embedding input types.
const (
	InputDocument InputType = "document"
	InputQuery    InputType = "query"
)

// EmbeddingClient generates vector embeddings and reranks candidates.
// This is an optional dependency: when nil, semantic search is disabled
// and hybrid search degrades to the lexical path.
type EmbeddingClient interface {
	// Embed converts texts into fixed-dimension vectors, preserving input
	// order. Inputs are batched up to the provider maximum; a failing
	// batch fails the whole call, since a missing vector must never be
	// persisted.
	Embed(ctx context.Context, texts []string, input InputType) ([][]float32, error)

	// Rerank orders candidate texts by relevance to the query. Rerank is
	// an optimisation, not a correctness requirement: on provider failure
	// it returns the original order with zero scores and Degraded set,
	// never an error caused by the provider.
	Rerank(ctx context.Context, query string, candidates []string, topK int) (RerankResult, error)

	// Dimensions returns the embedding vector width. It is passed to the
	// provider on every call so mixed-dimension vectors never share a table.
	Dimensions() int

	// ModelName identifies the embedding model, persisted per record so
	// a model migration can be detected and selectively re-embedded.
	ModelName() string
}

// RerankEntry is one reranked candidate.
type RerankEntry struct {
	// Index is the candidate's position in the original input slice.
	Index int

	// Score is the provider's relevance score, zero when degraded.
	Score float64
}

// RerankResult carries either a provider ranking or the original order.
type RerankResult struct {
	// Entries are candidates in ranked order.
	Entries []RerankEntry

	// Degraded is true when the provider call failed or was skipped and
	// Entries preserve the original candidate order.
	Degraded bool
}

// DegradedRerank builds a RerankResult that preserves the original order
// of n candidates, truncated to topK when topK > 0.
func DegradedRerank(n, topK int) RerankResult {
	if topK > 0 && topK < n {
		n = topK
	}
	entries := make([]RerankEntry, n)
	for i := range entries {
		entries[i] = RerankEntry{Index: i}
	}
	return RerankResult{Entries: entries, Degraded: true}
}
