package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

// Backend names reported by the store.
const (
	// BackendNative runs similarity queries inside SQLite via the
	// sqlite-vec extension's cosine distance function.
	BackendNative = "native"

	// BackendFallback loads all candidate vectors and ranks them
	// in-process. O(domain size); suitable for modest tables only
	// (low tens of thousands of rows).
	BackendFallback = "fallback"
)

// overFetchMultiplier bounds how many rows the native backend reads
// before applying the similarity floor. The distance operator cannot
// push a similarity floor into the index scan, so the floor is a
// post-filter; fewer than limit rows may clear it within the first
// 2*limit candidates, which is accepted behaviour.
const overFetchMultiplier = 2

// probeState caches the vector capability probe for the process
// lifetime. Re-probe only on explicit reset.
type probeState struct {
	mu     sync.Mutex
	probed bool
	native bool
}

// Backend returns the active similarity backend name, probing the
// engine on first use.
func (s *Store) Backend(ctx context.Context) string {
	if s.probeNative(ctx) {
		return BackendNative
	}
	return BackendFallback
}

// ResetBackendProbe clears the cached capability probe so the next
// search re-detects vector support. Intended for tests.
func (s *Store) ResetBackendProbe() {
	s.backendProbe.mu.Lock()
	defer s.backendProbe.mu.Unlock()
	s.backendProbe.probed = false
	s.backendProbe.native = false
}

// probeNative checks once whether the engine exposes a cosine distance
// function over embedding blobs. Absence is not an error: it selects the
// fallback backend, logged once at detection time.
func (s *Store) probeNative(ctx context.Context) bool {
	s.backendProbe.mu.Lock()
	defer s.backendProbe.mu.Unlock()

	if s.backendProbe.probed {
		return s.backendProbe.native
	}
	s.backendProbe.probed = true

	probe := float32SliceToBytes([]float32{1, 0})
	var distance float64
	err := s.db.QueryRowContext(ctx, "SELECT vec_distance_cosine(?, ?)", probe, probe).Scan(&distance)
	if err != nil {
		s.backendProbe.native = false
		s.logger.Info("vector extension not available, using in-process similarity",
			zap.String("backend", BackendFallback))
		return false
	}

	s.backendProbe.native = true
	s.logger.Info("vector extension detected", zap.String("backend", BackendNative))
	return true
}

// Search ranks a domain's records by cosine similarity to the query
// vector. Pending records (no embedding) are excluded.
func (s *Store) Search(
	ctx context.Context, dom domain.Domain, query []float32, params driven.SearchParams,
) ([]driven.VectorHit, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidInput)
	}
	if params.Limit <= 0 {
		params.Limit = 10
	}

	if s.probeNative(ctx) {
		return s.nativeSearch(ctx, dom, query, params)
	}
	return s.fallbackSearch(ctx, dom, query, params)
}

// nativeSearch orders rows by the engine's cosine distance. The
// similarity floor is applied as a post-filter over an over-fetched
// candidate set, because the distance operator cannot express it.
func (s *Store) nativeSearch(
	ctx context.Context, dom domain.Domain, query []float32, params driven.SearchParams,
) ([]driven.VectorHit, error) {
	spec, err := specFor(dom)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf(`
		SELECT %s, %s, vec_distance_cosine(embedding, ?) AS distance
		FROM %s
		WHERE embedding IS NOT NULL
		ORDER BY distance ASC
		LIMIT ?
	`, spec.identityList(), recordColumns, spec.table)

	rows, err := s.db.QueryContext(ctx, stmt, float32SliceToBytes(query), params.Limit*overFetchMultiplier)
	if err != nil {
		return nil, fmt.Errorf("%w: native search on %s: %v", domain.ErrStoreUnavailable, dom, err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		identityValues := make([]string, len(spec.identity))
		scanTargets := make([]any, 0, len(spec.identity)+8)
		for i := range identityValues {
			scanTargets = append(scanTargets, &identityValues[i])
		}

		var record recordScan
		scanTargets = append(scanTargets,
			&record.content, &record.embedding, &record.metadataJSON,
			&record.hash, &record.model, &record.createdAt, &record.updatedAt)

		var distance float64
		scanTargets = append(scanTargets, &distance)

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning native hit: %w", err)
		}

		rec, err := record.toRecord(dom, spec, identityValues)
		if err != nil {
			return nil, err
		}

		similarity := 1 - distance
		if similarity < params.MinSimilarity {
			continue
		}
		if !matchesFilters(&rec, params.Filters) {
			continue
		}

		hits = append(hits, driven.VectorHit{Record: rec, Similarity: similarity})
		if len(hits) >= params.Limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating native hits: %w", err)
	}

	return hits, nil
}

// fallbackSearch loads every candidate row's vector for the domain and
// computes cosine similarity in-process. Reads run under the store's
// normal consistency guarantees; concurrent writers may or may not be
// reflected, an accepted staleness window.
func (s *Store) fallbackSearch(
	ctx context.Context, dom domain.Domain, query []float32, params driven.SearchParams,
) ([]driven.VectorHit, error) {
	spec, err := specFor(dom)
	if err != nil {
		return nil, err
	}

	stmt := fmt.Sprintf("SELECT %s, %s FROM %s WHERE embedding IS NOT NULL",
		spec.identityList(), recordColumns, spec.table)

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("%w: fallback search on %s: %v", domain.ErrStoreUnavailable, dom, err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		record, err := scanRecord(rows, dom, spec)
		if err != nil {
			return nil, err
		}

		if !matchesFilters(&record, params.Filters) {
			continue
		}

		similarity := cosineSimilarity(query, record.Vector)
		if similarity < params.MinSimilarity {
			continue
		}

		hits = append(hits, driven.VectorHit{Record: record, Similarity: similarity})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fallback hits: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})

	if len(hits) > params.Limit {
		hits = hits[:params.Limit]
	}

	return hits, nil
}

// recordScan holds the non-identity columns of one row during scanning.
type recordScan struct {
	content      string
	embedding    []byte
	metadataJSON sql.NullString
	hash         string
	model        sql.NullString
	createdAt    sql.NullTime
	updatedAt    sql.NullTime
}

// toRecord assembles a domain record from scanned columns.
func (r *recordScan) toRecord(dom domain.Domain, spec tableSpec, identityValues []string) (domain.Record, error) {
	identity := make(domain.Identity, len(spec.identity))
	for i, col := range spec.identity {
		identity[i] = domain.IdentityPart{Field: col, Value: identityValues[i]}
	}

	record := domain.Record{
		Domain:      dom,
		Identity:    identity,
		Text:        r.content,
		Vector:      bytesToFloat32Slice(r.embedding),
		ContentHash: r.hash,
		Model:       r.model.String,
	}

	if r.metadataJSON.Valid && r.metadataJSON.String != "" && r.metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(r.metadataJSON.String), &record.Metadata); err != nil {
			return domain.Record{}, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if r.createdAt.Valid {
		record.CreatedAt = r.createdAt.Time
	}
	if r.updatedAt.Valid {
		record.UpdatedAt = r.updatedAt.Time
	}

	return record, nil
}

// cosineSimilarity computes the cosine of the angle between two vectors:
// dot product over the product of L2 norms. Zero-norm vectors score 0 to
// avoid division by zero; mismatched lengths also score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
