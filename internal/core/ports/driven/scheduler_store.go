package driven

import (
	"context"

	"github.com/custodia-labs/semdex/internal/core/domain"
)

// SchedulerStore persists scheduled task state across process restarts.
type SchedulerStore interface {
	// GetTask retrieves a task by ID. Returns (nil, nil) when absent.
	GetTask(ctx context.Context, id string) (*domain.ScheduledTask, error)

	// SaveTask stores or updates a task.
	SaveTask(ctx context.Context, task *domain.ScheduledTask) error
}

// RunStore persists reindex run summaries for observability.
type RunStore interface {
	// SaveRun stores a completed run summary.
	SaveRun(ctx context.Context, summary *domain.RunSummary) error

	// ListRuns returns the most recent run summaries, newest first.
	ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error)
}
