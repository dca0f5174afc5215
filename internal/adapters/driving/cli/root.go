// Package cli wires the core services into a small cobra command tree.
// All logic lives in the services; the commands only parse flags, build
// the dependency graph and print results.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/custodia-labs/semdex/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/semdex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/semdex/internal/chunker"
	"github.com/custodia-labs/semdex/internal/collectors"
	"github.com/custodia-labs/semdex/internal/config"
	"github.com/custodia-labs/semdex/internal/core/domain"
	"github.com/custodia-labs/semdex/internal/core/ports/driven"
	"github.com/custodia-labs/semdex/internal/core/services"
	"github.com/custodia-labs/semdex/internal/logger"
)

// NewRootCommand builds the semdex command tree.
func NewRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "semdex",
		Short:         "Semantic indexing and hybrid retrieval over application data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ~/.semdex/config.toml)")

	root.AddCommand(
		newReindexCommand(&configPath),
		newRebuildCommand(&configPath),
		newSearchCommand(&configPath),
		newScheduleCommand(&configPath),
		newRunsCommand(&configPath),
	)

	return root
}

// app is the assembled dependency graph behind every command.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	store     *sqlite.Store
	embedder  driven.EmbeddingClient // nil when the provider is not configured
	reindexer *services.Reindexer
	search    *services.SearchService
	scheduler *services.Scheduler
}

// newApp loads configuration and builds the full graph. A missing
// embedding API key is not fatal: indexing is then unavailable but
// lexical search still works.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	store, err := sqlite.NewStore(cfg.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	var embedder driven.EmbeddingClient
	if cfg.Embedding.APIKey != "" {
		client, err := openai.New(openai.Config{
			APIKey:              cfg.Embedding.APIKey,
			BaseURL:             cfg.Embedding.BaseURL,
			Model:               cfg.Embedding.Model,
			Dimensions:          cfg.Embedding.Dimensions,
			BatchSize:           cfg.Embedding.BatchSize,
			BatchDelay:          cfg.Embedding.BatchDelay(),
			DocumentInstruction: cfg.Embedding.DocumentInstruction,
			QueryInstruction:    cfg.Embedding.QueryInstruction,
			RerankURL:           cfg.Embedding.RerankURL,
			RerankModel:         cfg.Embedding.RerankModel,
		}, log)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("building embedding client: %w", err)
		}
		embedder = client
	} else {
		log.Warn("embedding API key not configured, semantic indexing disabled")
	}

	opts := collectors.Options{
		MinContentLength:  cfg.Indexing.MinContentLength,
		ReplyPreviewChars: cfg.Indexing.ReplyPreviewChars,
	}
	chk := chunker.New(
		chunker.WithMinSize(cfg.Chunking.MinChars),
		chunker.WithMaxSize(cfg.Chunking.MaxChars),
	)
	db := store.DB()

	reindexer := services.NewReindexer(
		store,
		embedder,
		[]driven.Collector{
			collectors.NewDocumentsCollector(db, chk, opts, log),
			collectors.NewProductsCollector(db, opts, log),
			collectors.NewEntitiesCollector(db, opts, log),
			collectors.NewConversationsCollector(db, opts, log),
			collectors.NewMemoriesCollector(db, opts, log),
		},
		store,
		cfg.Embedding.BatchSize,
		log,
	)

	search := services.NewSearchService(store, embedder, cfg.Search.DefaultLimit, cfg.Search.MinSimilarity, log)

	interval, err := cfg.SchedulerInterval()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid scheduler interval: %w", err)
	}
	scheduler := services.NewScheduler(store, reindexer, domain.SchedulerConfig{
		Enabled:  cfg.Scheduler.Enabled,
		Interval: interval,
	}, log)

	return &app{
		cfg:       cfg,
		logger:    log,
		store:     store,
		embedder:  embedder,
		reindexer: reindexer,
		search:    search,
		scheduler: scheduler,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	a.store.Close()
	_ = a.logger.Sync()
}

// parseDomain validates a --domain flag value.
func parseDomain(value string) (domain.Domain, error) {
	dom, ok := domain.ParseDomain(value)
	if !ok {
		return "", fmt.Errorf("unknown domain %q (valid: documents, products, entities, conversations, memories)", value)
	}
	return dom, nil
}
