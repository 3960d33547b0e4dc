// Package api exposes the assistant over a small JSON HTTP surface:
// health probes, session CRUD and a chat endpoint.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nyayalabs/nyaya/internal/rag"
	"github.com/nyayalabs/nyaya/internal/session"
)

// Asker is the slice of the pipeline the chat handler uses.
type Asker interface {
	Ask(ctx context.Context, sessionID uuid.UUID, question string) (*rag.Answer, error)
}

// Sessions is the slice of the session store the handlers use.
type Sessions interface {
	Create(ctx context.Context, title string) (*session.Session, error)
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	List(ctx context.Context) ([]session.Session, error)
	Delete(ctx context.Context, id uuid.UUID) error
	History(ctx context.Context, sessionID uuid.UUID, window int) ([]session.Exchange, error)
}

// Indexer is the slice of the index manager the handlers use.
type Indexer interface {
	Status(ctx context.Context) (*rag.IndexStatus, error)
}

// ServerConfig wires the server's dependencies.
type ServerConfig struct {
	Logger   *slog.Logger
	Pipeline Asker         // required
	Sessions Sessions      // required
	Indexer  Indexer       // optional: nil disables /v1/index/status
	Pool     *pgxpool.Pool // optional: nil makes /ready skip the DB ping
}

// Server is the JSON API server.
type Server struct {
	handler http.Handler
	logger  *slog.Logger
}

// NewServer builds the route table and middleware chain.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if cfg.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch := &chatHandler{pipeline: cfg.Pipeline, sessions: cfg.Sessions, logger: logger}
	sh := &sessionHandler{sessions: cfg.Sessions, logger: logger}
	hh := &healthHandler{pool: cfg.Pool, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", hh.health)
	mux.HandleFunc("GET /ready", hh.ready)
	mux.HandleFunc("POST /v1/chat", ch.chat)
	mux.HandleFunc("POST /v1/sessions", sh.create)
	mux.HandleFunc("GET /v1/sessions", sh.list)
	mux.HandleFunc("GET /v1/sessions/{id}", sh.get)
	mux.HandleFunc("DELETE /v1/sessions/{id}", sh.delete)
	if cfg.Indexer != nil {
		ih := &indexHandler{indexer: cfg.Indexer, logger: logger}
		mux.HandleFunc("GET /v1/index/status", ih.status)
	}

	var handler http.Handler = mux
	handler = requestLogging(logger)(handler)
	handler = recovery(logger)(handler)

	return &Server{handler: handler, logger: logger}, nil
}

// Handler returns the fully wrapped route table, mainly for tests.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves until ctx is canceled, then drains in-flight
// requests before returning.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("http server stopped")
		return nil
	}
}
