package driving

import (
	"context"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// Reindexer orchestrates incremental re-indexing of all domains.
type Reindexer interface {
	// Run processes every domain in sequence and returns a structured
	// summary. It never returns an error for partial failure; a failed
	// domain is reported in the summary and does not block the others.
	// Running twice with no source changes embeds zero new records.
	Run(ctx context.Context) (*domain.RunSummary, error)

	// RunDomain processes a single domain, optionally restricted to one
	// source grouping.
	RunDomain(ctx context.Context, dom domain.Domain, scope string) (domain.DomainReport, error)

	// Rebuild truncates a domain's index and re-embeds it from scratch.
	// The domain is search-empty until the rebuild completes; callers
	// must tolerate the window.
	Rebuild(ctx context.Context, dom domain.Domain) (domain.DomainReport, error)
}

// Scheduler runs the reindexer on a recurring cadence.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until the context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error
}
