// Package domain contains the core business types for semantic indexing
// and hybrid retrieval: indexed records, search results, and reindex run
// reports. It has no dependencies on adapters or infrastructure.
package domain
