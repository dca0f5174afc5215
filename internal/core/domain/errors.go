package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownDomain indicates an unrecognised indexing domain.
	ErrUnknownDomain = errors.New("unknown domain")

	// ErrProviderError indicates the embedding/rerank provider call failed.
	// Fatal to the current batch for embed; rerank degrades instead.
	ErrProviderError = errors.New("embedding provider error")

	// ErrStoreUnavailable indicates the relational store is unreachable.
	// Fatal to the current domain pass only.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbeddingUnavailable indicates no embedding client is configured.
	// Semantic search is disabled without one; lexical search still works.
	ErrEmbeddingUnavailable = errors.New("embedding client unavailable")

	// ErrDimensionMismatch indicates a vector with the wrong width was
	// about to be persisted. Mixed-dimension vectors never share a table.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrReindexInProgress indicates a reindex run is already running.
	ErrReindexInProgress = errors.New("reindex already in progress")
)
