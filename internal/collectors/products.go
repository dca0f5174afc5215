package collectors

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var _ driven.Collector = (*ProductsCollector)(nil)

// ProductsCollector reads the active product catalog. The embeddable
// text is "name | raw_material | packaging | category | subcategory"
// with absent fields omitted.
type ProductsCollector struct {
	db     *sql.DB
	opts   Options
	logger *zap.Logger
}

func NewProductsCollector(db *sql.DB, opts Options, logger *zap.Logger) *ProductsCollector {
	return &ProductsCollector{db: db, opts: opts, logger: logger}
}

func (c *ProductsCollector) Domain() domain.Domain {
	return domain.DomainProducts
}

func (c *ProductsCollector) Collect(ctx context.Context, scope string) ([]domain.Record, domain.CollectorStats, error) {
	query := "SELECT code, name, raw_material, packaging, category, subcategory FROM source_products WHERE active = 1"
	var args []any
	if scope != "" {
		query += " AND code = ?"
		args = append(args, scope)
	}
	query += " ORDER BY code"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("%w: querying products: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	b := newBuilder(c.opts.MinContentLength)
	products := 0

	for rows.Next() {
		var code, name string
		var rawMaterial, packaging, category, subcategory sql.NullString
		if err := rows.Scan(&code, &name, &rawMaterial, &packaging, &category, &subcategory); err != nil {
			c.logger.Warn("skipping malformed product row", zap.Error(err))
			b.malformed()
			continue
		}
		if code == "" || name == "" {
			c.logger.Warn("skipping product with empty code or name", zap.String("code", code))
			b.malformed()
			continue
		}
		products++

		text := joinNonEmpty(" | ",
			name,
			rawMaterial.String,
			packaging.String,
			category.String,
			subcategory.String,
		)

		metadata := map[string]any{"name": name}
		if category.Valid && category.String != "" {
			metadata["category"] = category.String
		}
		if subcategory.Valid && subcategory.String != "" {
			metadata["subcategory"] = subcategory.String
		}

		b.add(domain.DomainProducts, domain.NewIdentity("code", code), text, metadata)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("iterating product rows: %w", err)
	}

	records, stats := b.finish(products)
	return records, stats, nil
}
