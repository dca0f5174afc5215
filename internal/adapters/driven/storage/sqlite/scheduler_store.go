package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

// Ensure the store implements the scheduler persistence ports.
var (
	_ driven.SchedulerStore = (*Store)(nil)
	_ driven.RunStore       = (*Store)(nil)
)

// GetTask retrieves a scheduled task by ID. Returns (nil, nil) when the
// task does not exist.
func (s *Store) GetTask(ctx context.Context, id string) (*domain.ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, interval_sec, last_run, next_run, last_error, last_success, enabled
		FROM scheduled_tasks WHERE id = ?
	`, id)

	var task domain.ScheduledTask
	var intervalSec int64
	var lastRun, nextRun, lastSuccess sql.NullTime
	var lastError sql.NullString
	if err := row.Scan(&task.ID, &task.Name, &intervalSec,
		&lastRun, &nextRun, &lastError, &lastSuccess, &task.Enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.Interval = time.Duration(intervalSec) * time.Second
	task.LastError = lastError.String
	if lastRun.Valid {
		task.LastRun = lastRun.Time
	}
	if nextRun.Valid {
		task.NextRun = nextRun.Time
	}
	if lastSuccess.Valid {
		task.LastSuccess = lastSuccess.Time
	}

	return &task, nil
}

// SaveTask stores or updates a scheduled task.
func (s *Store) SaveTask(ctx context.Context, task *domain.ScheduledTask) error {
	if task == nil || task.ID == "" {
		return domain.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (id, name, interval_sec, last_run, next_run, last_error, last_success, enabled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			interval_sec = excluded.interval_sec,
			last_run = excluded.last_run,
			next_run = excluded.next_run,
			last_error = excluded.last_error,
			last_success = excluded.last_success,
			enabled = excluded.enabled
	`, task.ID, task.Name, int64(task.Interval/time.Second),
		task.LastRun, task.NextRun, task.LastError, task.LastSuccess, task.Enabled)

	if err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	return nil
}

// SaveRun persists a completed reindex run summary.
func (s *Store) SaveRun(ctx context.Context, summary *domain.RunSummary) error {
	if summary == nil || summary.RunID == "" {
		return domain.ErrInvalidInput
	}

	payload, err := json.Marshal(summary.Domains)
	if err != nil {
		return fmt.Errorf("marshalling run summary: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reindex_runs (id, started_at, ended_at, summary)
		VALUES (?, ?, ?, ?)
	`, summary.RunID, summary.StartedAt, summary.EndedAt, string(payload))

	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent run summaries, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, ended_at, summary
		FROM reindex_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunSummary //nolint:prealloc // size unknown from query
	for rows.Next() {
		var run domain.RunSummary
		var payload string
		if err := rows.Scan(&run.RunID, &run.StartedAt, &run.EndedAt, &payload); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}

		if err := json.Unmarshal([]byte(payload), &run.Domains); err != nil {
			return nil, fmt.Errorf("unmarshaling run summary: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}

	return runs, nil
}
