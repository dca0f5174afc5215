package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
	"github.com/custodia-labs/semdex/internal/core/ports/driving"
)

var _ driving.Reindexer = (*Reindexer)(nil)

// Reindexer orchestrates collectors, the embedding client and the
// vector store. Domains run strictly in sequence; each domain's failure
// is isolated and reported, never raised out of the run.
type Reindexer struct {
	store      driven.VectorStore
	embedder   driven.EmbeddingClient
	collectors map[domain.Domain]driven.Collector
	runs       driven.RunStore // optional run history
	batchSize  int
	logger     *zap.Logger

	running atomic.Bool
}

// NewReindexer builds the reindexer. runs may be nil to skip history.
func NewReindexer(
	store driven.VectorStore,
	embedder driven.EmbeddingClient,
	collectors []driven.Collector,
	runs driven.RunStore,
	batchSize int,
	logger *zap.Logger,
) *Reindexer {
	if batchSize <= 0 {
		batchSize = 128
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	byDomain := make(map[domain.Domain]driven.Collector, len(collectors))
	for _, collector := range collectors {
		byDomain[collector.Domain()] = collector
	}

	return &Reindexer{
		store:      store,
		embedder:   embedder,
		collectors: byDomain,
		runs:       runs,
		batchSize:  batchSize,
		logger:     logger,
	}
}

// Run processes every registered domain in sequence and returns a
// structured summary. Partial failure never raises; running twice with
// no source changes embeds zero new records.
func (r *Reindexer) Run(ctx context.Context) (*domain.RunSummary, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, domain.ErrReindexInProgress
	}
	defer r.running.Store(false)

	summary := &domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Domains:   make(map[domain.Domain]domain.DomainReport),
	}

	r.logger.Info("reindex run started",
		zap.String("run_id", summary.RunID),
		zap.String("backend", r.store.Backend(ctx)))

	for _, dom := range domain.AllDomains() {
		if _, ok := r.collectors[dom]; !ok {
			continue
		}
		report, err := r.runDomain(ctx, dom, "")
		if err != nil {
			// Domain failures are already folded into the report; an error
			// here is a cancelled context, which ends the run early.
			summary.Domains[dom] = report
			break
		}
		summary.Domains[dom] = report
	}

	summary.EndedAt = time.Now().UTC()
	r.logger.Info("reindex run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("embedded", summary.TotalEmbedded()),
		zap.Int("errors", summary.TotalErrors()),
		zap.Bool("failed", summary.Failed()),
		zap.Duration("duration", summary.EndedAt.Sub(summary.StartedAt)))

	if r.runs != nil {
		if err := r.runs.SaveRun(ctx, summary); err != nil {
			r.logger.Warn("saving run summary failed", zap.Error(err))
		}
	}

	return summary, nil
}

// RunDomain processes one domain, optionally restricted to a single
// source grouping.
func (r *Reindexer) RunDomain(ctx context.Context, dom domain.Domain, scope string) (domain.DomainReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return domain.DomainReport{Domain: dom, Phase: domain.PhasePending}, domain.ErrReindexInProgress
	}
	defer r.running.Store(false)

	return r.runDomain(ctx, dom, scope)
}

// runDomain is the per-domain pass. The returned report is always
// populated; the error is non-nil only for context cancellation.
func (r *Reindexer) runDomain(ctx context.Context, dom domain.Domain, scope string) (domain.DomainReport, error) {
	report := domain.DomainReport{Domain: dom, Phase: domain.PhasePending}
	started := time.Now()

	collector, ok := r.collectors[dom]
	if !ok {
		report.Phase = domain.PhaseFailed
		report.Err = fmt.Sprintf("no collector registered for domain %s", dom)
		return report, nil
	}

	report.Phase = domain.PhaseCollecting
	records, stats, err := collector.Collect(ctx, scope)
	if err != nil {
		if ctx.Err() != nil {
			report.Phase = domain.PhaseFailed
			report.Err = ctx.Err().Error()
			report.Duration = time.Since(started)
			return report, ctx.Err()
		}
		r.logger.Error("collector pass failed",
			zap.String("domain", string(dom)),
			zap.Error(err))
		report.Phase = domain.PhaseFailed
		report.Err = err.Error()
		report.Errors++
		report.Duration = time.Since(started)
		return report, nil
	}
	report.Errors += stats.Malformed

	toEmbed, skipped, err := r.partition(ctx, dom, records)
	if err != nil {
		report.Phase = domain.PhaseFailed
		report.Err = err.Error()
		report.Errors++
		report.Duration = time.Since(started)
		return report, nil
	}
	report.Skipped = skipped

	report.Phase = domain.PhaseEmbedding
	embedded, batchErrors, err := r.embedAndCommit(ctx, dom, toEmbed)
	report.Embedded = embedded
	report.Errors += batchErrors
	if err != nil {
		if ctx.Err() != nil {
			report.Phase = domain.PhaseFailed
			report.Err = ctx.Err().Error()
			report.Duration = time.Since(started)
			return report, ctx.Err()
		}
		report.Phase = domain.PhaseFailed
		report.Err = err.Error()
		report.Duration = time.Since(started)
		return report, nil
	}

	report.Phase = domain.PhaseCommitted
	report.Duration = time.Since(started)

	r.logger.Info("domain pass committed",
		zap.String("domain", string(dom)),
		zap.Int("seen", stats.TotalSeen),
		zap.Int("embedded", report.Embedded),
		zap.Int("skipped", report.Skipped),
		zap.Int("errors", report.Errors),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// Rebuild truncates a domain's index and re-embeds it from scratch.
func (r *Reindexer) Rebuild(ctx context.Context, dom domain.Domain) (domain.DomainReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return domain.DomainReport{Domain: dom, Phase: domain.PhasePending}, domain.ErrReindexInProgress
	}
	defer r.running.Store(false)

	r.logger.Info("rebuilding domain from scratch", zap.String("domain", string(dom)))

	if err := r.store.DeleteDomain(ctx, dom); err != nil {
		report := domain.DomainReport{
			Domain: dom,
			Phase:  domain.PhaseFailed,
			Err:    err.Error(),
			Errors: 1,
		}
		return report, nil
	}

	// The domain is search-empty from here until the pass commits.
	return r.runDomain(ctx, dom, "")
}

// partition diffs collected records against stored state in a single
// query. A record is skipped only when its hash is unchanged, a vector
// exists and the stored model matches the current one.
func (r *Reindexer) partition(ctx context.Context, dom domain.Domain, records []domain.Record) (toEmbed []domain.Record, skipped int, err error) {
	if len(records) == 0 {
		return nil, 0, nil
	}

	state, err := r.store.ExistingState(ctx, dom)
	if err != nil {
		return nil, 0, fmt.Errorf("loading existing state: %w", err)
	}

	model := ""
	if r.embedder != nil {
		model = r.embedder.ModelName()
	}

	for _, record := range records {
		stored, exists := state[record.Identity.Key()]
		if exists && stored.ContentHash == record.ContentHash && stored.HasVector && stored.Model == model {
			skipped++
			continue
		}
		toEmbed = append(toEmbed, record)
	}
	return toEmbed, skipped, nil
}

// embedAndCommit sends records through the embedding client in batches
// and upserts each batch as soon as its vectors arrive, so a mid-run
// crash loses at most one in-flight batch.
func (r *Reindexer) embedAndCommit(ctx context.Context, dom domain.Domain, records []domain.Record) (embedded, errors int, err error) {
	if len(records) == 0 {
		return 0, 0, nil
	}
	if r.embedder == nil {
		return 0, 1, fmt.Errorf("%w: no embedding client configured", domain.ErrEmbeddingUnavailable)
	}

	model := r.embedder.ModelName()

	for start := 0; start < len(records); start += r.batchSize {
		if ctx.Err() != nil {
			return embedded, errors, ctx.Err()
		}

		end := start + r.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		texts := make([]string, len(batch))
		for i := range batch {
			texts[i] = batch[i].Text
		}

		vectors, err := r.embedder.Embed(ctx, texts, driven.InputDocument)
		if err != nil {
			return embedded, errors + 1, fmt.Errorf("embedding batch at offset %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return embedded, errors + 1, fmt.Errorf("%w: got %d vectors for %d texts",
				domain.ErrProviderError, len(vectors), len(batch))
		}

		for i := range batch {
			batch[i].Vector = vectors[i]
			batch[i].Model = model
		}

		if err := r.store.Upsert(ctx, dom, batch); err != nil {
			return embedded, errors + 1, fmt.Errorf("committing batch at offset %d: %w", start, err)
		}
		embedded += len(batch)
	}

	return embedded, errors, nil
}
