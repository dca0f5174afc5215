// Package sqlite implements the vector store, lexical search and
// scheduler persistence on top of a SQLite database shared with the
// surrounding application.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

// Ensure Store implements the vector store port.
var _ driven.VectorStore = (*Store)(nil)

// recordColumns are the non-identity columns shared by every index table.
const recordColumns = "content, embedding, metadata, content_hash, model_used, created_at, updated_at"

// tableSpec describes one domain's index table.
type tableSpec struct {
	table    string
	identity []string
}

// identityList returns the identity columns joined for SQL.
func (t tableSpec) identityList() string {
	return strings.Join(t.identity, ", ")
}

// tables maps each domain to its index table. The identity column order
// must match the order collectors build identities in.
var tables = map[domain.Domain]tableSpec{
	domain.DomainDocuments:     {table: "index_documents", identity: []string{"path", "chunk_index"}},
	domain.DomainProducts:      {table: "index_products", identity: []string{"code"}},
	domain.DomainEntities:      {table: "index_entities", identity: []string{"entity_type", "cnpj_root"}},
	domain.DomainConversations: {table: "index_conversations", identity: []string{"session_id", "turn_index"}},
	domain.DomainMemories:      {table: "index_memories", identity: []string{"memory_id"}},
}

// specFor resolves a domain's table spec.
func specFor(dom domain.Domain) (tableSpec, error) {
	spec, ok := tables[dom]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %s", domain.ErrUnknownDomain, dom)
	}
	return spec, nil
}

// Store is the SQLite-backed vector store. It owns the five per-domain
// index tables and the scheduler bookkeeping; the source tables are
// read-only from its point of view.
type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	backendProbe probeState
}

// NewStore opens (or creates) the semdex database in the given data
// directory. If dataDir is empty, defaults to ~/.semdex/data/semdex.db.
func NewStore(dataDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".semdex", "data")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "semdex.db")

	// WAL mode for better concurrency between query-time readers and the
	// batch reindexer.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		path:   dbPath,
		logger: logger,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// DB exposes the underlying handle so collectors can read the
// application's source tables.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate runs all pending migrations.
func (s *Store) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue // Skip files that don't match pattern
		}

		if version <= currentVersion {
			continue // Already applied
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}

		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}

		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

// Upsert inserts or updates records keyed by identity. created_at is
// preserved across updates; updated_at always advances.
func (s *Store) Upsert(ctx context.Context, dom domain.Domain, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	spec, err := specFor(dom)
	if err != nil {
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.identity)+7), ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s (%s, %s)
		VALUES (%s)
		ON CONFLICT(%s) DO UPDATE SET
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			content_hash = excluded.content_hash,
			model_used = excluded.model_used,
			updated_at = excluded.updated_at
	`, spec.table, spec.identityList(), recordColumns, placeholders, spec.identityList())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range records {
		record := &records[i]
		if len(record.Identity) != len(spec.identity) {
			return fmt.Errorf("%w: %s identity has %d parts, want %d",
				domain.ErrInvalidInput, dom, len(record.Identity), len(spec.identity))
		}

		metadataJSON, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling metadata: %w", err)
		}

		args := make([]any, 0, len(spec.identity)+7)
		for _, part := range record.Identity {
			args = append(args, part.Value)
		}
		args = append(args,
			record.Text,
			float32SliceToBytes(record.Vector),
			string(metadataJSON),
			record.ContentHash,
			record.Model,
			now,
			now,
		)

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upserting %s %s: %w", dom, record.Identity, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// DeleteDomain removes every record in a domain's index table. Used only
// for full rebuilds.
func (s *Store) DeleteDomain(ctx context.Context, dom domain.Domain) error {
	spec, err := specFor(dom)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+spec.table); err != nil {
		return fmt.Errorf("deleting domain %s: %w", dom, err)
	}
	return nil
}

// ExistingState returns the staleness state of every stored identity in
// one query.
func (s *Store) ExistingState(ctx context.Context, dom domain.Domain) (map[string]driven.StoredState, error) {
	spec, err := specFor(dom)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT %s, content_hash, model_used, embedding IS NOT NULL FROM %s",
		spec.identityList(), spec.table,
	)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: querying state for %s: %v", domain.ErrStoreUnavailable, dom, err)
	}
	defer rows.Close()

	state := make(map[string]driven.StoredState)
	for rows.Next() {
		identityValues := make([]string, len(spec.identity))
		scanTargets := make([]any, 0, len(spec.identity)+3)
		for i := range identityValues {
			scanTargets = append(scanTargets, &identityValues[i])
		}

		var hash string
		var model sql.NullString
		var hasVector bool
		scanTargets = append(scanTargets, &hash, &model, &hasVector)

		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning state row: %w", err)
		}

		identity := make(domain.Identity, len(spec.identity))
		for i, col := range spec.identity {
			identity[i] = domain.IdentityPart{Field: col, Value: identityValues[i]}
		}

		state[identity.Key()] = driven.StoredState{
			ContentHash: hash,
			HasVector:   hasVector,
			Model:       model.String,
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state rows: %w", err)
	}

	return state, nil
}

// scanRecord reads one full index row. The scan order must match
// identity columns followed by recordColumns.
func scanRecord(rows *sql.Rows, dom domain.Domain, spec tableSpec) (domain.Record, error) {
	identityValues := make([]string, len(spec.identity))
	scanTargets := make([]any, 0, len(spec.identity)+7)
	for i := range identityValues {
		scanTargets = append(scanTargets, &identityValues[i])
	}

	var content string
	var embedding []byte
	var metadataJSON sql.NullString
	var hash string
	var model sql.NullString
	var createdAt, updatedAt sql.NullTime
	scanTargets = append(scanTargets, &content, &embedding, &metadataJSON, &hash, &model, &createdAt, &updatedAt)

	if err := rows.Scan(scanTargets...); err != nil {
		return domain.Record{}, fmt.Errorf("scanning record: %w", err)
	}

	identity := make(domain.Identity, len(spec.identity))
	for i, col := range spec.identity {
		identity[i] = domain.IdentityPart{Field: col, Value: identityValues[i]}
	}

	record := domain.Record{
		Domain:      dom,
		Identity:    identity,
		Text:        content,
		Vector:      bytesToFloat32Slice(embedding),
		ContentHash: hash,
		Model:       model.String,
	}

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &record.Metadata); err != nil {
			return domain.Record{}, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	if createdAt.Valid {
		record.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		record.UpdatedAt = updatedAt.Time
	}

	return record, nil
}

// GetRecord fetches a single record by identity, mainly for tests and
// spot checks.
func (s *Store) GetRecord(ctx context.Context, dom domain.Domain, identity domain.Identity) (*domain.Record, error) {
	spec, err := specFor(dom)
	if err != nil {
		return nil, err
	}
	if len(identity) != len(spec.identity) {
		return nil, fmt.Errorf("%w: identity has %d parts, want %d",
			domain.ErrInvalidInput, len(identity), len(spec.identity))
	}

	conditions := make([]string, len(spec.identity))
	args := make([]any, len(spec.identity))
	for i, col := range spec.identity {
		conditions[i] = col + " = ?"
		args[i] = identity[i].Value
	}

	query := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s",
		spec.identityList(), recordColumns, spec.table, strings.Join(conditions, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterating record: %w", err)
		}
		return nil, domain.ErrNotFound
	}

	record, err := scanRecord(rows, dom, spec)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Count returns the number of stored records in a domain.
func (s *Store) Count(ctx context.Context, dom domain.Domain) (int, error) {
	spec, err := specFor(dom)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+spec.table).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", dom, err)
	}
	return count, nil
}

// matchesFilters reports whether a record's metadata satisfies every
// filter pair exactly. Filters are applied in-process for both backends.
func matchesFilters(record *domain.Record, filters map[string]string) bool {
	for key, want := range filters {
		value, ok := record.Metadata[key]
		if !ok {
			return false
		}
		if fmt.Sprint(value) != want {
			return false
		}
	}
	return true
}
