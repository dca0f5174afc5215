package collectors

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var _ driven.Collector = (*EntitiesCollector)(nil)

// EntitiesCollector reads the financial-entity registry (clients and
// carriers keyed by CNPJ root). The embeddable text is
// "[TYPE] legal_name (trade_name) - city/state" with absent fields
// omitted.
type EntitiesCollector struct {
	db     *sql.DB
	opts   Options
	logger *zap.Logger
}

func NewEntitiesCollector(db *sql.DB, opts Options, logger *zap.Logger) *EntitiesCollector {
	return &EntitiesCollector{db: db, opts: opts, logger: logger}
}

func (c *EntitiesCollector) Domain() domain.Domain {
	return domain.DomainEntities
}

func (c *EntitiesCollector) Collect(ctx context.Context, scope string) ([]domain.Record, domain.CollectorStats, error) {
	query := "SELECT entity_type, cnpj_root, legal_name, trade_name, city, state FROM source_entities"
	var args []any
	if scope != "" {
		query += " WHERE cnpj_root = ?"
		args = append(args, scope)
	}
	query += " ORDER BY entity_type, cnpj_root"

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("%w: querying entities: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	b := newBuilder(c.opts.MinContentLength)
	groups := make(map[string]struct{})

	for rows.Next() {
		var entityType, cnpjRoot, legalName string
		var tradeName, city, state sql.NullString
		if err := rows.Scan(&entityType, &cnpjRoot, &legalName, &tradeName, &city, &state); err != nil {
			c.logger.Warn("skipping malformed entity row", zap.Error(err))
			b.malformed()
			continue
		}
		if entityType == "" || cnpjRoot == "" || legalName == "" {
			c.logger.Warn("skipping entity with missing identity fields",
				zap.String("entity_type", entityType),
				zap.String("cnpj_root", cnpjRoot))
			b.malformed()
			continue
		}
		groups[cnpjRoot] = struct{}{}

		text := entityText(entityType, legalName, tradeName.String, city.String, state.String)

		metadata := map[string]any{
			"legal_name":  legalName,
			"entity_type": entityType,
		}
		if tradeName.Valid && tradeName.String != "" {
			metadata["trade_name"] = tradeName.String
		}
		if city.Valid && city.String != "" {
			metadata["city"] = city.String
		}
		if state.Valid && state.String != "" {
			metadata["state"] = state.String
		}

		identity := domain.NewIdentity("entity_type", entityType, "cnpj_root", cnpjRoot)
		b.add(domain.DomainEntities, identity, text, metadata)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.CollectorStats{}, fmt.Errorf("iterating entity rows: %w", err)
	}

	records, stats := b.finish(len(groups))
	return records, stats, nil
}

// entityText renders one entity row into its embeddable text.
func entityText(entityType, legalName, tradeName, city, state string) string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(strings.ToUpper(entityType))
	sb.WriteString("] ")
	sb.WriteString(legalName)

	if tradeName != "" && !strings.EqualFold(tradeName, legalName) {
		sb.WriteString(" (")
		sb.WriteString(tradeName)
		sb.WriteString(")")
	}

	location := joinNonEmpty("/", city, state)
	if location != "" {
		sb.WriteString(" - ")
		sb.WriteString(location)
	}

	return sb.String()
}
