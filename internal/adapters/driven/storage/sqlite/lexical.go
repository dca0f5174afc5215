package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

// LexicalSearch matches records whose text contains every query term,
// case-insensitive, ranked by the total occurrence count of the terms
// within a record, descending. Pending records are excluded like in the
// semantic path.
func (s *Store) LexicalSearch(
	ctx context.Context, dom domain.Domain, query string, limit int,
) ([]driven.LexicalHit, error) {
	spec, err := specFor(dom)
	if err != nil {
		return nil, err
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// AND-of-terms narrowing in SQL; ranking happens in-process.
	conditions := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, term := range terms {
		conditions[i] = "instr(lower(content), ?) > 0"
		args[i] = term
	}

	stmt := fmt.Sprintf("SELECT %s, %s FROM %s WHERE embedding IS NOT NULL AND %s",
		spec.identityList(), recordColumns, spec.table, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search on %s: %v", domain.ErrStoreUnavailable, dom, err)
	}
	defer rows.Close()

	var hits []driven.LexicalHit
	for rows.Next() {
		record, err := scanRecord(rows, dom, spec)
		if err != nil {
			return nil, err
		}

		lowered := strings.ToLower(record.Text)
		occurrences := 0
		for _, term := range terms {
			occurrences += strings.Count(lowered, term)
		}

		hits = append(hits, driven.LexicalHit{Record: record, Occurrences: occurrences})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lexical hits: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Occurrences > hits[j].Occurrences
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}
