package driving

import (
	"context"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// SearchService answers similarity queries over indexed domains.
// A search call always returns a result list, possibly degraded to
// lexical-only or empty; it never fails because the semantic subsystem
// is unavailable.
type SearchService interface {
	// Search runs a query against one domain and returns ranked results
	// with provenance.
	Search(ctx context.Context, dom domain.Domain, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)
}
