package domain

// SearchMode selects which retrieval paths a search uses.
type SearchMode string

// Search modes.
const (
	// SearchModeLexical uses only the keyword path over stored raw text.
	SearchModeLexical SearchMode = "lexical"

	// SearchModeSemantic uses only the vector similarity path.
	SearchModeSemantic SearchMode = "semantic"

	// SearchModeHybrid merges both paths, semantic results first.
	SearchModeHybrid SearchMode = "hybrid"
)

// ParseSearchMode converts a string to a SearchMode, defaulting to hybrid.
func ParseSearchMode(s string) SearchMode {
	switch SearchMode(s) {
	case SearchModeLexical, SearchModeSemantic, SearchModeHybrid:
		return SearchMode(s)
	}
	return SearchModeHybrid
}

// Result provenance values.
const (
	// OriginSemantic tags a result found by the vector path.
	OriginSemantic = "semantic"

	// OriginLexical tags a result found by the keyword path.
	OriginLexical = "lexical"
)

// SearchOptions configures a search query.
type SearchOptions struct {
	// Limit is the maximum number of results. Zero means the default.
	Limit int

	// MinSimilarity drops semantic hits below this cosine similarity.
	MinSimilarity float64

	// Filters restricts results to records whose metadata matches
	// every key/value pair exactly.
	Filters map[string]string

	// Mode selects lexical, semantic or hybrid retrieval.
	Mode SearchMode

	// Rerank asks the provider to rerank the merged list. Rerank is an
	// optimisation: when it fails the original order is kept.
	Rerank bool
}

// SearchResult is a single ranked hit with provenance.
type SearchResult struct {
	// Record is the matched record, metadata included.
	Record Record

	// Score is the ranking score. For semantic hits this is cosine
	// similarity in [0,1]; for lexical hits the term occurrence count.
	Score float64

	// Origin is the path that produced this hit: semantic or lexical.
	Origin string

	// Reranked is true when the provider reorder was applied to the list
	// this result belongs to.
	Reranked bool
}
