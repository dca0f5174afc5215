package driven

import (
	"context"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// Collector reads one domain's source rows from the relational store and
// produces normalised records ready for staleness diffing and embedding.
//
// A collector must not fail on a single malformed source row; it logs and
// skips the row and keeps going. A collector returning an error aborts
// only its own domain's pass.
type Collector interface {
	// Domain identifies the domain this collector feeds.
	Domain() domain.Domain

	// Collect reads source rows and returns normalised records plus
	// aggregate stats. An empty scope collects the whole domain; a
	// non-empty scope restricts the pass to one source grouping (a
	// document path, a session ID, a product code).
	Collect(ctx context.Context, scope string) ([]domain.Record, domain.CollectorStats, error)
}
