package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
	"github.com/custodia-labs/semdex/internal/core/ports/driving"
)

var _ driving.Scheduler = (*Scheduler)(nil)

// pollInterval is how often the scheduler checks for due tasks.
const pollInterval = time.Minute

// Scheduler runs the incremental reindexer on a recurring cadence.
// Task state survives restarts through the scheduler store, so a
// process bounce does not reset the cadence.
type Scheduler struct {
	tasks     driven.SchedulerStore
	reindexer driving.Reindexer
	cfg       domain.SchedulerConfig
	logger    *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
}

func NewScheduler(tasks driven.SchedulerStore, reindexer driving.Reindexer, cfg domain.SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = domain.DefaultSchedulerConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tasks:     tasks,
		reindexer: reindexer,
		cfg:       cfg,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start blocks, running due tasks until the context is cancelled or
// Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	if err := s.ensureTask(ctx); err != nil {
		return fmt.Errorf("initialising scheduled task: %w", err)
	}

	s.logger.Info("scheduler started", zap.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	// Run anything already due before the first tick.
	s.runDueTasks(ctx, time.Now())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case now := <-ticker.C:
			s.runDueTasks(ctx, now)
		}
	}
}

// Stop ends the Start loop. Safe to call more than once.
func (s *Scheduler) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// ensureTask creates the reindex task on first start, due immediately,
// and keeps an existing task's schedule.
func (s *Scheduler) ensureTask(ctx context.Context) error {
	task, err := s.tasks.GetTask(ctx, domain.TaskIDReindex)
	if err != nil {
		return err
	}
	if task != nil {
		// The persisted cadence may predate a config change.
		if task.Interval != s.cfg.Interval {
			task.Interval = s.cfg.Interval
			return s.tasks.SaveTask(ctx, task)
		}
		return nil
	}

	return s.tasks.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDReindex,
		Name:     "Incremental Reindex",
		Interval: s.cfg.Interval,
		NextRun:  time.Now().UTC(),
		Enabled:  true,
	})
}

// runDueTasks runs the reindex task if it is due and persists the
// outcome. Task failures are recorded, never raised.
func (s *Scheduler) runDueTasks(ctx context.Context, now time.Time) {
	task, err := s.tasks.GetTask(ctx, domain.TaskIDReindex)
	if err != nil {
		s.logger.Error("loading scheduled task failed", zap.Error(err))
		return
	}
	if task == nil || !task.Due(now) {
		return
	}

	s.logger.Info("running scheduled reindex", zap.String("task", task.ID))

	task.LastRun = now.UTC()
	summary, err := s.reindexer.Run(ctx)
	switch {
	case err != nil:
		task.LastError = err.Error()
	case summary.Failed():
		task.LastError = fmt.Sprintf("%d domain(s) failed, %d errors", failedDomains(summary), summary.TotalErrors())
	default:
		task.LastError = ""
		task.LastSuccess = now.UTC()
	}
	task.NextRun = now.UTC().Add(task.Interval)

	if err := s.tasks.SaveTask(ctx, task); err != nil {
		s.logger.Error("saving scheduled task failed", zap.Error(err))
	}
}

func failedDomains(summary *domain.RunSummary) int {
	failed := 0
	for _, report := range summary.Domains {
		if report.Phase == domain.PhaseFailed {
			failed++
		}
	}
	return failed
}
