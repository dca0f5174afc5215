package collectors

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/chunker"
	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var _ driven.Collector = (*DocumentsCollector)(nil)

// DocumentsCollector reads long-form documents and chunks them. Each
// chunk becomes its own record keyed by (path, chunk_index), so chunk
// identities stay stable only while the chunking thresholds are
// unchanged.
type DocumentsCollector struct {
	db      *sql.DB
	chunker *chunker.Chunker
	opts    Options
	logger  *zap.Logger
}

func NewDocumentsCollector(db *sql.DB, chk *chunker.Chunker, opts Options, logger *zap.Logger) *DocumentsCollector {
	return &DocumentsCollector{db: db, chunker: chk, opts: opts, logger: logger}
}

func (c *DocumentsCollector) Domain() domain.Domain {
	return domain.DomainDocuments
}

func (c *DocumentsCollector) Collect(ctx context.Context, scope string) ([]domain.Record, domain.CollectorStats, error) {
	query := "SELECT path, title, content FROM source_documents"
	var args []any
	if scope != "" {
		query += " WHERE path = ?"
		args = append(args, scope)
	}
	query += " ORDER BY path"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("%w: querying documents: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	b := newBuilder(c.opts.MinContentLength)
	documents := 0

	for rows.Next() {
		var path string
		var title sql.NullString
		var content sql.NullString
		if err := rows.Scan(&path, &title, &content); err != nil {
			c.logger.Warn("skipping malformed document row", zap.Error(err))
			b.malformed()
			continue
		}
		if path == "" || !content.Valid || content.String == "" {
			c.logger.Warn("skipping document with empty path or content", zap.String("path", path))
			b.malformed()
			continue
		}
		documents++

		for _, chunk := range c.chunker.Chunk(content.String) {
			metadata := map[string]any{
				"path": path,
			}
			if title.Valid && title.String != "" {
				metadata["title"] = title.String
			}
			if chunk.Heading != "" {
				metadata["heading"] = chunk.Heading
			}

			identity := domain.NewIdentity(
				"path", path,
				"chunk_index", strconv.Itoa(chunk.Index),
			)
			b.add(domain.DomainDocuments, identity, chunk.Text, metadata)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("iterating document rows: %w", err)
	}

	records, stats := b.finish(documents)
	return records, stats, nil
}
