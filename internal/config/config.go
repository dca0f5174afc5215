// Package config loads the semdex configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the full semdex configuration.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Chunking  ChunkingConfig  `toml:"chunking"`
	Indexing  IndexingConfig  `toml:"indexing"`
	Search    SearchConfig    `toml:"search"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DatabaseConfig holds relational store settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. Empty defaults to
	// ~/.semdex/data/semdex.db.
	Path string `toml:"path"`
}

// EmbeddingConfig holds embedding/rerank provider settings.
type EmbeddingConfig struct {
	// APIKey authenticates against the provider. Falls back to the
	// SEMDEX_EMBEDDING_API_KEY environment variable when empty.
	APIKey string `toml:"api_key"`

	// BaseURL is the OpenAI-compatible API base URL.
	BaseURL string `toml:"base_url"`

	// Model is the embedding model identifier.
	Model string `toml:"model"`

	// Dimensions is the embedding vector width, passed to the provider
	// on every call.
	Dimensions int `toml:"dimensions"`

	// BatchSize is the provider's maximum inputs per request.
	BatchSize int `toml:"batch_size"`

	// BatchDelayMS is the fixed pause between provider batches.
	BatchDelayMS int `toml:"batch_delay_ms"`

	// DocumentInstruction and QueryInstruction are optional prefixes
	// applied per input type for instruction-tuned models.
	DocumentInstruction string `toml:"document_instruction"`
	QueryInstruction    string `toml:"query_instruction"`

	// RerankURL is the rerank endpoint; empty disables reranking.
	RerankURL string `toml:"rerank_url"`

	// RerankModel is the rerank model identifier.
	RerankModel string `toml:"rerank_model"`
}

// ChunkingConfig holds document chunking thresholds. Changing these
// invalidates every document's chunk identities; a full rebuild of the
// documents domain is required, not an incremental pass.
type ChunkingConfig struct {
	MinChars int `toml:"min_chars"`
	MaxChars int `toml:"max_chars"`
}

// IndexingConfig holds collector settings.
type IndexingConfig struct {
	// MinContentLength drops records too short to be worth embedding.
	MinContentLength int `toml:"min_content_length"`

	// ReplyPreviewChars bounds the assistant reply portion of a
	// conversation turn's embeddable text.
	ReplyPreviewChars int `toml:"reply_preview_chars"`
}

// SearchConfig holds query-time defaults.
type SearchConfig struct {
	DefaultLimit  int     `toml:"default_limit"`
	MinSimilarity float64 `toml:"min_similarity"`
}

// SchedulerConfig holds the recurring reindex cadence.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"` // Go duration, default 24h
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `toml:"env"`   // local, dev, prod
	Level string `toml:"level"` // debug, info, warn, error
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Embedding: EmbeddingConfig{
			BaseURL:      "https://api.openai.com/v1",
			Model:        "text-embedding-3-small",
			Dimensions:   1536,
			BatchSize:    128,
			BatchDelayMS: 200,
			RerankModel:  "",
		},
		Chunking: ChunkingConfig{
			MinChars: 80,
			MaxChars: 2000,
		},
		Indexing: IndexingConfig{
			MinContentLength:  15,
			ReplyPreviewChars: 500,
		},
		Search: SearchConfig{
			DefaultLimit:  20,
			MinSimilarity: 0.3,
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Interval: "24h",
		},
		Logging: LoggingConfig{
			Env: "local",
		},
	}
}

// Load reads configuration from the given TOML file, applying defaults
// for missing fields. An empty path loads ~/.semdex/config.toml when it
// exists and otherwise returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(home, ".semdex", "config.toml")
		if _, err := os.Stat(path); err != nil {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("SEMDEX_EMBEDDING_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Chunking.MinChars <= 0 || c.Chunking.MaxChars <= c.Chunking.MinChars {
		return fmt.Errorf("chunking thresholds invalid: min=%d max=%d", c.Chunking.MinChars, c.Chunking.MaxChars)
	}
	if _, err := c.SchedulerInterval(); err != nil {
		return err
	}
	return nil
}

// SchedulerInterval parses the scheduler cadence.
func (c *Config) SchedulerInterval() (time.Duration, error) {
	if c.Scheduler.Interval == "" {
		return 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Scheduler.Interval)
	if err != nil {
		return 0, fmt.Errorf("scheduler.interval %q: %w", c.Scheduler.Interval, err)
	}
	return d, nil
}

// BatchDelay returns the inter-batch pause as a duration.
func (c *EmbeddingConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelayMS) * time.Millisecond
}
