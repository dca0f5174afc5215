// Package openai adapts an OpenAI-compatible embedding provider to the
// EmbeddingClient port, with batching, inter-batch pacing and an
// optional rerank endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
)

var _ driven.EmbeddingClient = (*Client)(nil)

// maxBatchSize is the provider's hard upper bound on inputs per request.
const maxBatchSize = 128

// Config holds the provider settings for one client instance.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint, e.g. for a compatible
	// self-hosted gateway or a test stub.
	BaseURL string

	// Model is the embedding model identifier.
	Model string

	// Dimensions is the vector width, sent explicitly on every request.
	Dimensions int

	// BatchSize caps inputs per request, clamped to maxBatchSize.
	BatchSize int

	// BatchDelay is the pause between consecutive batches. The pause is
	// skipped before the first batch and after the last.
	BatchDelay time.Duration

	// DocumentInstruction and QueryInstruction are optional prefixes
	// prepended to each text depending on the input type. Some models
	// embed documents and queries asymmetrically.
	DocumentInstruction string
	QueryInstruction    string

	// RerankURL is an optional rerank endpoint. Empty disables reranking;
	// Rerank then always returns the degraded original order.
	RerankURL string

	// RerankModel is the rerank model identifier.
	RerankModel string
}

// Client talks to an OpenAI-compatible embeddings API.
type Client struct {
	cfg     Config
	api     *gopenai.Client
	http    *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New builds a client. The rate limiter starts with a full bucket so
// the first batch is never delayed.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: embedding API key is not configured", domain.ErrEmbeddingUnavailable)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is not configured", domain.ErrEmbeddingUnavailable)
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("%w: embedding dimensions must be positive", domain.ErrEmbeddingUnavailable)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiConfig := gopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiConfig.BaseURL = cfg.BaseURL
	}

	pace := rate.Inf
	if cfg.BatchDelay > 0 {
		pace = rate.Every(cfg.BatchDelay)
	}

	return &Client{
		cfg:     cfg,
		api:     gopenai.NewClientWithConfig(apiConfig),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(pace, 1),
		logger:  logger,
	}, nil
}

// Dimensions returns the configured vector width.
func (c *Client) Dimensions() int {
	return c.cfg.Dimensions
}

// ModelName returns the embedding model identifier.
func (c *Client) ModelName() string {
	return c.cfg.Model
}

// Embed converts texts into vectors, batching up to the provider
// maximum and preserving input order. A failing batch fails the whole
// call.
func (c *Client) Embed(ctx context.Context, texts []string, input driven.InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	instruction := c.cfg.DocumentInstruction
	if input == driven.InputQuery {
		instruction = c.cfg.QueryInstruction
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for batch slot: %w", err)
		}

		end := start + c.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[start:end]
		if instruction != "" {
			prefixed := make([]string, len(batch))
			for i, text := range batch {
				prefixed[i] = instruction + text
			}
			batch = prefixed
		}

		resp, err := c.api.CreateEmbeddings(ctx, gopenai.EmbeddingRequest{
			Input:      batch,
			Model:      gopenai.EmbeddingModel(c.cfg.Model),
			Dimensions: c.cfg.Dimensions,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: embedding batch at offset %d: %v", domain.ErrProviderError, start, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
				domain.ErrProviderError, len(resp.Data), len(batch))
		}

		// Providers may return entries out of order; place by index.
		batchVectors := make([][]float32, len(batch))
		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(batch) {
				return nil, fmt.Errorf("%w: embedding index %d out of range", domain.ErrProviderError, item.Index)
			}
			if len(item.Embedding) != c.cfg.Dimensions {
				return nil, fmt.Errorf("%w: got %d dimensions, want %d",
					domain.ErrDimensionMismatch, len(item.Embedding), c.cfg.Dimensions)
			}
			batchVectors[item.Index] = item.Embedding
		}
		vectors = append(vectors, batchVectors...)
	}

	return vectors, nil
}

// rerankRequest is the wire format of the rerank endpoint.
type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank orders candidates by relevance to the query. Provider failures
// degrade to the original candidate order rather than propagating.
func (c *Client) Rerank(ctx context.Context, query string, candidates []string, topK int) (driven.RerankResult, error) {
	if len(candidates) == 0 {
		return driven.RerankResult{}, nil
	}
	if c.cfg.RerankURL == "" {
		return driven.DegradedRerank(len(candidates), topK), nil
	}

	result, err := c.callRerank(ctx, query, candidates, topK)
	if err != nil {
		c.logger.Warn("rerank degraded to original order", zap.Error(err))
		return driven.DegradedRerank(len(candidates), topK), nil
	}
	return result, nil
}

func (c *Client) callRerank(ctx context.Context, query string, candidates []string, topK int) (driven.RerankResult, error) {
	payload, err := json.Marshal(rerankRequest{
		Model:     c.cfg.RerankModel,
		Query:     query,
		Documents: candidates,
		TopN:      topK,
	})
	if err != nil {
		return driven.RerankResult{}, fmt.Errorf("marshalling rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RerankURL, bytes.NewReader(payload))
	if err != nil {
		return driven.RerankResult{}, fmt.Errorf("building rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return driven.RerankResult{}, fmt.Errorf("%w: calling rerank: %v", domain.ErrProviderError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return driven.RerankResult{}, fmt.Errorf("%w: rerank returned %d: %s",
			domain.ErrProviderError, resp.StatusCode, string(body))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return driven.RerankResult{}, fmt.Errorf("%w: decoding rerank response: %v", domain.ErrProviderError, err)
	}

	entries := make([]driven.RerankEntry, 0, len(parsed.Results))
	for _, item := range parsed.Results {
		if item.Index < 0 || item.Index >= len(candidates) {
			return driven.RerankResult{}, fmt.Errorf("%w: rerank index %d out of range", domain.ErrProviderError, item.Index)
		}
		entries = append(entries, driven.RerankEntry{Index: item.Index, Score: item.RelevanceScore})
	}

	return driven.RerankResult{Entries: entries}, nil
}
