package collectors

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var _ driven.Collector = (*MemoriesCollector)(nil)

// MemoriesCollector reads persisted agent memories. Memory content is
// already a compact statement, so it is embedded as-is with an optional
// kind prefix.
type MemoriesCollector struct {
	db     *sql.DB
	opts   Options
	logger *zap.Logger
}

func NewMemoriesCollector(db *sql.DB, opts Options, logger *zap.Logger) *MemoriesCollector {
	return &MemoriesCollector{db: db, opts: opts, logger: logger}
}

func (c *MemoriesCollector) Domain() domain.Domain {
	return domain.DomainMemories
}

func (c *MemoriesCollector) Collect(ctx context.Context, scope string) ([]domain.Record, domain.CollectorStats, error) {
	query := "SELECT id, kind, content, created_at FROM agent_memories"
	var args []any
	if scope != "" {
		query += " WHERE id = ?"
		args = append(args, scope)
	}
	query += " ORDER BY id"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("%w: querying memories: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	b := newBuilder(c.opts.MinContentLength)
	memories := 0

	for rows.Next() {
		var id string
		var kind sql.NullString
		var content string
		var createdAt sql.NullTime
		if err := rows.Scan(&id, &kind, &content, &createdAt); err != nil {
			c.logger.Warn("skipping malformed memory row", zap.Error(err))
			b.malformed()
			continue
		}
		if id == "" || content == "" {
			c.logger.Warn("skipping memory with empty id or content", zap.String("id", id))
			b.malformed()
			continue
		}
		memories++

		text := content
		if kind.Valid && kind.String != "" {
			text = "[" + kind.String + "] " + content
		}

		metadata := map[string]any{}
		if kind.Valid && kind.String != "" {
			metadata["kind"] = kind.String
		}
		if createdAt.Valid {
			metadata["created_at"] = createdAt.Time.UTC().Format(time.RFC3339)
		}

		b.add(domain.DomainMemories, domain.NewIdentity("memory_id", id), text, metadata)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("iterating memory rows: %w", err)
	}

	records, stats := b.finish(memories)
	return records, stats, nil
}
