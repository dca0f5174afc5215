// Package services holds the core orchestration: hybrid search, the
// incremental reindexer and the recurring scheduler. Services depend
// only on ports; adapters are injected at the composition point.
package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
	"github.com/custodia-labs/semdex/internal/core/ports/driving"
)

var _ driving.SearchService = (*SearchService)(nil)

// SearchService merges the lexical and semantic retrieval paths.
// Semantic search is an enhancement: when the embedding client is nil
// or the semantic path fails, hybrid queries degrade to lexical-only
// instead of failing.
type SearchService struct {
	store    driven.VectorStore
	embedder driven.EmbeddingClient // nil disables the semantic path
	defaults domain.SearchOptions
	logger   *zap.Logger
}

// NewSearchService builds the search engine. embedder may be nil.
func NewSearchService(store driven.VectorStore, embedder driven.EmbeddingClient, defaultLimit int, minSimilarity float64, logger *zap.Logger) *SearchService {
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SearchService{
		store:    store,
		embedder: embedder,
		defaults: domain.SearchOptions{
			Limit:         defaultLimit,
			MinSimilarity: minSimilarity,
		},
		logger: logger,
	}
}

// Search runs a query against one domain. The returned list is ranked,
// deduplicated by identity and tagged with provenance.
func (s *SearchService) Search(ctx context.Context, dom domain.Domain, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if !dom.Valid() {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDomain, dom)
	}
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}

	if opts.Limit <= 0 {
		opts.Limit = s.defaults.Limit
	}
	if opts.MinSimilarity == 0 {
		opts.MinSimilarity = s.defaults.MinSimilarity
	}
	if opts.Mode == "" {
		opts.Mode = domain.SearchModeHybrid
	}

	var results []domain.SearchResult
	switch opts.Mode {
	case domain.SearchModeLexical:
		lexical, err := s.lexical(ctx, dom, query, opts.Limit)
		if err != nil {
			return nil, err
		}
		results = lexical

	case domain.SearchModeSemantic:
		semantic, err := s.semantic(ctx, dom, query, opts)
		if err != nil {
			return nil, err
		}
		results = semantic

	case domain.SearchModeHybrid:
		results = s.hybrid(ctx, dom, query, opts)

	default:
		return nil, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidInput, opts.Mode)
	}

	if opts.Rerank && len(results) > 1 {
		results = s.rerank(ctx, query, results, opts.Limit)
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// hybrid merges both paths: semantic hits first, lexical hits appended
// only for identities the semantic pass did not return. A semantic
// failure degrades to lexical-only rather than failing the query.
func (s *SearchService) hybrid(ctx context.Context, dom domain.Domain, query string, opts domain.SearchOptions) []domain.SearchResult {
	semantic, err := s.semantic(ctx, dom, query, opts)
	if err != nil {
		s.logger.Warn("semantic search degraded to lexical",
			zap.String("domain", string(dom)),
			zap.Error(err))
		semantic = nil
	}

	lexical, err := s.lexical(ctx, dom, query, opts.Limit)
	if err != nil {
		s.logger.Warn("lexical search failed",
			zap.String("domain", string(dom)),
			zap.Error(err))
		lexical = nil
	}

	seen := make(map[string]struct{}, len(semantic))
	merged := make([]domain.SearchResult, 0, len(semantic)+len(lexical))
	for _, result := range semantic {
		seen[result.Record.Identity.Key()] = struct{}{}
		merged = append(merged, result)
	}
	for _, result := range lexical {
		if _, dup := seen[result.Record.Identity.Key()]; dup {
			continue
		}
		merged = append(merged, result)
	}

	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	return merged
}

// semantic embeds the query and runs the vector path.
func (s *SearchService) semantic(ctx context.Context, dom domain.Domain, query string, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	vectors, err := s.embedder.Embed(ctx, []string{query}, driven.InputQuery)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d query vectors", domain.ErrProviderError, len(vectors))
	}

	hits, err := s.store.Search(ctx, dom, vectors[0], driven.SearchParams{
		Limit:         opts.Limit,
		MinSimilarity: opts.MinSimilarity,
		Filters:       opts.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]domain.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = domain.SearchResult{
			Record: hit.Record,
			Score:  hit.Similarity,
			Origin: domain.OriginSemantic,
		}
	}
	return results, nil
}

// lexical runs the keyword path.
func (s *SearchService) lexical(ctx context.Context, dom domain.Domain, query string, limit int) ([]domain.SearchResult, error) {
	hits, err := s.store.LexicalSearch(ctx, dom, query, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]domain.SearchResult, len(hits))
	for i, hit := range hits {
		results[i] = domain.SearchResult{
			Record: hit.Record,
			Score:  float64(hit.Occurrences),
			Origin: domain.OriginLexical,
		}
	}
	return results, nil
}

// rerank asks the provider to reorder the merged list. A degraded
// rerank keeps the original order and leaves results untagged.
func (s *SearchService) rerank(ctx context.Context, query string, results []domain.SearchResult, topK int) []domain.SearchResult {
	if s.embedder == nil {
		return results
	}

	candidates := make([]string, len(results))
	for i, result := range results {
		candidates[i] = result.Record.Text
	}

	ranked, err := s.embedder.Rerank(ctx, query, candidates, topK)
	if err != nil {
		s.logger.Warn("rerank failed, keeping original order", zap.Error(err))
		return results
	}
	if ranked.Degraded {
		return results
	}

	reordered := make([]domain.SearchResult, 0, len(ranked.Entries))
	for _, entry := range ranked.Entries {
		if entry.Index < 0 || entry.Index >= len(results) {
			continue
		}
		result := results[entry.Index]
		result.Score = entry.Score
		result.Reranked = true
		reordered = append(reordered, result)
	}
	return reordered
}
