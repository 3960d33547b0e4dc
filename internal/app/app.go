// Package app builds and owns the application's dependency graph:
// config, database pool, provider pair, knowledge store, retriever,
// session store and the answer pipeline.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyayalabs/nyaya/db"
	"github.com/nyayalabs/nyaya/internal/config"
	"github.com/nyayalabs/nyaya/internal/document"
	"github.com/nyayalabs/nyaya/internal/knowledge"
	"github.com/nyayalabs/nyaya/internal/provider"
	"github.com/nyayalabs/nyaya/internal/rag"
	"github.com/nyayalabs/nyaya/internal/retrieval"
	"github.com/nyayalabs/nyaya/internal/session"
)

// App is the application container. Build it with New and release its
// resources with Close.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Providers *provider.Pair
	Knowledge *knowledge.Store
	Retriever *retrieval.Retriever
	Sessions  *session.Store
	Indexer   *rag.Indexer
	Pipeline  *rag.Pipeline
}

// New validates the config, connects to PostgreSQL, applies pending
// migrations and wires every component.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := db.Migrate(cfg.ConnURL()); err != nil {
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	pool, err := knowledge.NewPool(ctx, cfg.ConnURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	providers, err := provider.Factory(cfg, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("building providers: %w", err)
	}

	store := knowledge.New(knowledge.NewPgxQuerier(pool), providers.Embedder, logger)
	retriever := retrieval.New(store, retrieval.Config{
		TopK:          cfg.TopK,
		CandidateK:    cfg.CandidateK,
		MinSimilarity: cfg.MinSimilarity,
	}, logger)
	sessions := session.New(session.NewPgxQuerier(pool), logger)
	indexer := rag.NewIndexer(
		document.NewLoader(logger),
		document.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		store,
		logger,
	)
	pipeline := rag.New(retriever, providers.Chat, sessions, rag.Config{
		HistoryWindow: cfg.HistoryWindow,
	}, logger)

	logger.Info("application ready",
		"provider", cfg.Provider,
		"model", providers.Chat.Name())

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Providers: providers,
		Knowledge: store,
		Retriever: retriever,
		Sessions:  sessions,
		Indexer:   indexer,
		Pipeline:  pipeline,
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}
