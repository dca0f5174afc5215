package collectors

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/semdex/internal/chunker"
	"github.com/custodia-labs/semdex/internal/core/domain"
)

// newTestDB opens a throwaway database with the full schema and returns
// its handle for seeding source rows.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	store, err := sqlite.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store.DB()
}

func seed(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	_, err := db.Exec(query, args...)
	require.NoError(t, err)
}

func TestProductsCollector(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed(t, db, `INSERT INTO source_products (code, name, raw_material, packaging, category, subcategory, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"P1", "Red Widget Deluxe", "Steel", "Box", "Widgets", "Premium", 1)
	seed(t, db, `INSERT INTO source_products (code, name, raw_material, packaging, category, subcategory, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"P2", "Blue Widget Standard", "Plastic", nil, nil, nil, 1)
	seed(t, db, `INSERT INTO source_products (code, name, active) VALUES (?, ?, ?)`,
		"P3", "Discontinued Gadget", 0)
	seed(t, db, `INSERT INTO source_products (code, name, active) VALUES (?, ?, ?)`,
		"P4", "", 1)

	collector := NewProductsCollector(db, DefaultOptions(), zap.NewNop())
	assert.Equal(t, domain.DomainProducts, collector.Domain())

	records, stats, err := collector.Collect(ctx, "")
	require.NoError(t, err)

	require.Len(t, records, 2, "inactive and malformed rows are excluded")
	assert.Equal(t, "Red Widget Deluxe | Steel | Box | Widgets | Premium", records[0].Text)
	assert.Equal(t, "Blue Widget Standard | Plastic", records[1].Text, "absent fields are omitted")

	assert.Equal(t, domain.NewIdentity("code", "P1"), records[0].Identity)
	assert.Equal(t, domain.HashText(records[0].Text), records[0].ContentHash)
	assert.Equal(t, "Red Widget Deluxe", records[0].Metadata["name"])
	assert.Equal(t, "Widgets", records[0].Metadata["category"])

	assert.Equal(t, 3, stats.TotalSeen, "inactive rows are filtered in SQL")
	assert.Equal(t, 2, stats.Indexable)
	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 2, stats.DistinctGroups)
}

func TestProductsCollector_ScopeFilter(t *testing.T) {
	db := newTestDB(t)

	seed(t, db, `INSERT INTO source_products (code, name, raw_material, active) VALUES (?, ?, ?, ?)`,
		"P1", "Red Widget Deluxe", "Steel", 1)
	seed(t, db, `INSERT INTO source_products (code, name, raw_material, active) VALUES (?, ?, ?, ?)`,
		"P2", "Blue Widget Standard", "Plastic", 1)

	collector := NewProductsCollector(db, DefaultOptions(), zap.NewNop())
	records, _, err := collector.Collect(context.Background(), "P2")
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "P2", records[0].Identity.Key())
}

func TestProductsCollector_MinLengthFilter(t *testing.T) {
	db := newTestDB(t)

	seed(t, db, `INSERT INTO source_products (code, name, active) VALUES (?, ?, ?)`,
		"P1", "Bolt", 1)

	collector := NewProductsCollector(db, DefaultOptions(), zap.NewNop())
	records, stats, err := collector.Collect(context.Background(), "")
	require.NoError(t, err)

	assert.Empty(t, records, "text below the length floor is not indexable")
	assert.Equal(t, 1, stats.TotalSeen)
	assert.Equal(t, 0, stats.Indexable)
}

func TestDocumentsCollector(t *testing.T) {
	db := newTestDB(t)

	intro := strings.Repeat("Freight pricing rules and carrier selection notes. ", 4)
	detail := strings.Repeat("Each carrier quote is normalised before comparison. ", 4)
	content := "# Pricing Guide\n\n" + intro + "\n\n## Carrier Quotes\n\n" + detail

	seed(t, db, `INSERT INTO source_documents (path, title, content) VALUES (?, ?, ?)`,
		"docs/pricing.md", "Pricing Guide", content)
	seed(t, db, `INSERT INTO source_documents (path, title, content) VALUES (?, ?, ?)`,
		"docs/tiny.md", "Tiny", "too short")

	chk := chunker.New(chunker.WithMinSize(80), chunker.WithMaxSize(2000))
	collector := NewDocumentsCollector(db, chk, DefaultOptions(), zap.NewNop())
	assert.Equal(t, domain.DomainDocuments, collector.Domain())

	records, stats, err := collector.Collect(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, records, 2, "one chunk per section, short document dropped")

	assert.Equal(t, domain.NewIdentity("path", "docs/pricing.md", "chunk_index", "0"), records[0].Identity)
	assert.Equal(t, domain.NewIdentity("path", "docs/pricing.md", "chunk_index", "1"), records[1].Identity)

	assert.Equal(t, "Pricing Guide", records[0].Metadata["title"])
	assert.Equal(t, "Pricing Guide", records[0].Metadata["heading"])
	assert.Equal(t, "Carrier Quotes", records[1].Metadata["heading"])

	assert.Contains(t, records[0].Text, "Freight pricing rules")
	assert.Contains(t, records[1].Text, "carrier quote")

	assert.Equal(t, 2, stats.DistinctGroups, "both documents were read")
	assert.Equal(t, 2, stats.Indexable)
}

func TestDocumentsCollector_Scope(t *testing.T) {
	db := newTestDB(t)

	body := strings.Repeat("Connection pooling keeps reindex latency predictable. ", 4)
	seed(t, db, `INSERT INTO source_documents (path, title, content) VALUES (?, ?, ?)`,
		"docs/a.md", "A", body)
	seed(t, db, `INSERT INTO source_documents (path, title, content) VALUES (?, ?, ?)`,
		"docs/b.md", "B", body)

	chk := chunker.New()
	collector := NewDocumentsCollector(db, chk, DefaultOptions(), zap.NewNop())

	records, _, err := collector.Collect(context.Background(), "docs/b.md")
	require.NoError(t, err)

	require.NotEmpty(t, records)
	for _, record := range records {
		assert.Equal(t, "docs/b.md", record.Identity[0].Value)
	}
}

func TestEntitiesCollector(t *testing.T) {
	db := newTestDB(t)

	seed(t, db, `INSERT INTO source_entities (entity_type, cnpj_root, legal_name, trade_name, city, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"client", "12345678", "Acme Industria de Pecas Ltda", "Acme Pecas", "Sao Paulo", "SP")
	seed(t, db, `INSERT INTO source_entities (entity_type, cnpj_root, legal_name)
		VALUES (?, ?, ?)`,
		"carrier", "87654321", "Transportadora Horizonte S.A.")
	seed(t, db, `INSERT INTO source_entities (entity_type, cnpj_root, legal_name)
		VALUES (?, ?, ?)`,
		"carrier", "12345678", "Acme Logistica Ltda")

	collector := NewEntitiesCollector(db, DefaultOptions(), zap.NewNop())
	assert.Equal(t, domain.DomainEntities, collector.Domain())

	records, stats, err := collector.Collect(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "[CARRIER] Acme Logistica Ltda", records[0].Text)
	assert.Equal(t, "[CARRIER] Transportadora Horizonte S.A.", records[1].Text)
	assert.Equal(t, "[CLIENT] Acme Industria de Pecas Ltda (Acme Pecas) - Sao Paulo/SP", records[2].Text)

	assert.Equal(t, domain.NewIdentity("entity_type", "client", "cnpj_root", "12345678"), records[2].Identity)
	assert.Equal(t, "Acme Pecas", records[2].Metadata["trade_name"])

	assert.Equal(t, 3, stats.Indexable)
	assert.Equal(t, 2, stats.DistinctGroups, "groups count distinct CNPJ roots")
}

func TestEntityText(t *testing.T) {
	t.Run("trade name equal to legal name is omitted", func(t *testing.T) {
		got := entityText("client", "Acme Ltda", "acme ltda", "", "")
		assert.Equal(t, "[CLIENT] Acme Ltda", got)
	})

	t.Run("city without state", func(t *testing.T) {
		got := entityText("carrier", "Horizonte S.A.", "", "Curitiba", "")
		assert.Equal(t, "[CARRIER] Horizonte S.A. - Curitiba", got)
	})
}

func TestConversationsCollector(t *testing.T) {
	db := newTestDB(t)

	longReply := strings.Repeat("x", 900)
	seed(t, db, `INSERT INTO conversation_turns (session_id, turn_index, user_text, assistant_text)
		VALUES (?, ?, ?, ?)`,
		"s1", 0, "Which carrier is cheapest for route SP-RJ?", longReply)
	seed(t, db, `INSERT INTO conversation_turns (session_id, turn_index, user_text, assistant_text)
		VALUES (?, ?, ?, ?)`,
		"s1", 1, "And for refrigerated freight on the same route?", "Horizonte, at R$ 2.10/kg.")
	seed(t, db, `INSERT INTO conversation_turns (session_id, turn_index, user_text)
		VALUES (?, ?, ?)`,
		"s2", 0, "What were the invoice totals for July?")

	opts := DefaultOptions()
	opts.ReplyPreviewChars = 200
	collector := NewConversationsCollector(db, opts, zap.NewNop())
	assert.Equal(t, domain.DomainConversations, collector.Domain())

	records, stats, err := collector.Collect(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, records, 3)

	assert.True(t, strings.HasPrefix(records[0].Text, "[USER]: Which carrier is cheapest"))
	assert.Contains(t, records[0].Text, "\n[ASSISTANT]: ")
	reply := records[0].Text[strings.Index(records[0].Text, "[ASSISTANT]: ")+len("[ASSISTANT]: "):]
	assert.Len(t, reply, 200, "assistant reply is bounded to the preview size")

	assert.Equal(t, "[USER]: What were the invoice totals for July?", records[2].Text,
		"a turn without a reply embeds only the user text")

	assert.Equal(t, domain.NewIdentity("session_id", "s1", "turn_index", "1"), records[1].Identity)
	assert.Equal(t, 2, stats.DistinctGroups, "groups count distinct sessions")
}

func TestConversationsCollector_Scope(t *testing.T) {
	db := newTestDB(t)

	seed(t, db, `INSERT INTO conversation_turns (session_id, turn_index, user_text)
		VALUES (?, ?, ?)`,
		"s1", 0, "Which carrier is cheapest for route SP-RJ?")
	seed(t, db, `INSERT INTO conversation_turns (session_id, turn_index, user_text)
		VALUES (?, ?, ?)`,
		"s2", 0, "What were the invoice totals for July?")

	collector := NewConversationsCollector(db, DefaultOptions(), zap.NewNop())
	records, _, err := collector.Collect(context.Background(), "s2")
	require.NoError(t, err)

	require.Len(t, records, 1)
	assert.Equal(t, "s2", records[0].Identity[0].Value)
}

func TestMemoriesCollector(t *testing.T) {
	db := newTestDB(t)

	seed(t, db, `INSERT INTO agent_memories (id, kind, content) VALUES (?, ?, ?)`,
		"m1", "preference", "User prefers carrier quotes in BRL per kilogram.")
	seed(t, db, `INSERT INTO agent_memories (id, content) VALUES (?, ?)`,
		"m2", "The July invoice reconciliation is still pending review.")
	seed(t, db, `INSERT INTO agent_memories (id, content) VALUES (?, ?)`,
		"m3", "")

	collector := NewMemoriesCollector(db, DefaultOptions(), zap.NewNop())
	assert.Equal(t, domain.DomainMemories, collector.Domain())

	records, stats, err := collector.Collect(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "[preference] User prefers carrier quotes in BRL per kilogram.", records[0].Text)
	assert.Equal(t, "The July invoice reconciliation is still pending review.", records[1].Text)
	assert.Equal(t, domain.NewIdentity("memory_id", "m1"), records[0].Identity)

	assert.Equal(t, 3, stats.TotalSeen)
	assert.Equal(t, 2, stats.Indexable)
	assert.Equal(t, 1, stats.Malformed)
}

func TestJoinNonEmpty(t *testing.T) {
	assert.Equal(t, "a | b", joinNonEmpty(" | ", "a", "", "  ", "b"))
	assert.Equal(t, "", joinNonEmpty(" | "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 10))
	assert.Equal(t, "ab", truncate("abcd", 2))
	assert.Equal(t, "abcd", truncate("abcd", 0), "zero means unbounded")

	// Never cuts inside a multi-byte rune.
	got := truncate("aá", 2)
	assert.Equal(t, "a", got)
}
