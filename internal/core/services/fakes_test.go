package services

import (
	"context"
	"errors"
	"sync"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var errStubProvider = errors.New("stub provider down")

// memoryStore is an in-memory VectorStore with canned search results.
type memoryStore struct {
	mu      sync.Mutex
	records map[domain.Domain]map[string]domain.Record

	upsertBatches []int
	deleted       []domain.Domain

	semanticHits []driven.VectorHit
	semanticErr  error
	lexicalHits  []driven.LexicalHit
	lexicalErr   error
	upsertErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[domain.Domain]map[string]domain.Record)}
}

func (m *memoryStore) seed(record domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[record.Domain] == nil {
		m.records[record.Domain] = make(map[string]domain.Record)
	}
	m.records[record.Domain][record.Identity.Key()] = record
}

func (m *memoryStore) Upsert(_ context.Context, dom domain.Domain, records []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.records[dom] == nil {
		m.records[dom] = make(map[string]domain.Record)
	}
	for _, record := range records {
		m.records[dom][record.Identity.Key()] = record
	}
	m.upsertBatches = append(m.upsertBatches, len(records))
	return nil
}

func (m *memoryStore) DeleteDomain(_ context.Context, dom domain.Domain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, dom)
	m.deleted = append(m.deleted, dom)
	return nil
}

func (m *memoryStore) Search(_ context.Context, _ domain.Domain, _ []float32, _ driven.SearchParams) ([]driven.VectorHit, error) {
	if m.semanticErr != nil {
		return nil, m.semanticErr
	}
	return m.semanticHits, nil
}

func (m *memoryStore) LexicalSearch(_ context.Context, _ domain.Domain, _ string, _ int) ([]driven.LexicalHit, error) {
	if m.lexicalErr != nil {
		return nil, m.lexicalErr
	}
	return m.lexicalHits, nil
}

func (m *memoryStore) ExistingState(_ context.Context, dom domain.Domain) (map[string]driven.StoredState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := make(map[string]driven.StoredState, len(m.records[dom]))
	for key, record := range m.records[dom] {
		state[key] = driven.StoredState{
			ContentHash: record.ContentHash,
			HasVector:   len(record.Vector) > 0,
			Model:       record.Model,
		}
	}
	return state, nil
}

func (m *memoryStore) Backend(context.Context) string {
	return "fallback"
}

// stubEmbedder returns canned vectors keyed by text and records batches.
type stubEmbedder struct {
	mu      sync.Mutex
	model   string
	dims    int
	vectors map[string][]float32

	failEmbed bool
	batches   [][]string

	rerankResult *driven.RerankResult
	rerankErr    error
}

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{model: "stub-model", dims: 4}
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string, _ driven.InputType) ([][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEmbed {
		return nil, errStubProvider
	}
	s.batches = append(s.batches, texts)

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := s.vectors[text]; ok {
			vectors[i] = v
			continue
		}
		v := make([]float32, s.dims)
		v[0] = 1
		vectors[i] = v
	}
	return vectors, nil
}

func (s *stubEmbedder) Rerank(_ context.Context, _ string, candidates []string, topK int) (driven.RerankResult, error) {
	if s.rerankErr != nil {
		return driven.RerankResult{}, s.rerankErr
	}
	if s.rerankResult != nil {
		return *s.rerankResult, nil
	}
	return driven.DegradedRerank(len(candidates), topK), nil
}

func (s *stubEmbedder) Dimensions() int   { return s.dims }
func (s *stubEmbedder) ModelName() string { return s.model }

// stubCollector returns canned records.
type stubCollector struct {
	dom     domain.Domain
	records []domain.Record
	stats   domain.CollectorStats
	err     error
	scopes  []string
}

func (c *stubCollector) Domain() domain.Domain { return c.dom }

func (c *stubCollector) Collect(_ context.Context, scope string) ([]domain.Record, domain.CollectorStats, error) {
	c.scopes = append(c.scopes, scope)
	if c.err != nil {
		return nil, domain.CollectorStats{}, c.err
	}
	return c.records, c.stats, nil
}

// memoryTaskStore is an in-memory SchedulerStore and RunStore.
type memoryTaskStore struct {
	mu    sync.Mutex
	tasks map[string]domain.ScheduledTask
	runs  []domain.RunSummary
}

func newMemoryTaskStore() *memoryTaskStore {
	return &memoryTaskStore{tasks: make(map[string]domain.ScheduledTask)}
}

func (m *memoryTaskStore) GetTask(_ context.Context, id string) (*domain.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	return &task, nil
}

func (m *memoryTaskStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = *task
	return nil
}

func (m *memoryTaskStore) SaveRun(_ context.Context, summary *domain.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *summary)
	return nil
}

func (m *memoryTaskStore) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && limit < len(m.runs) {
		return m.runs[len(m.runs)-limit:], nil
	}
	return m.runs, nil
}

// productRecord builds a pending record for reindexer tests.
func productRecord(code, text string) domain.Record {
	return domain.Record{
		Domain:      domain.DomainProducts,
		Identity:    domain.NewIdentity("code", code),
		Text:        text,
		ContentHash: domain.HashText(text),
	}
}
