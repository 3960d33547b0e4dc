// Package rag answers legal questions by retrieving statute chunks and
// grounding an LLM completion in them. The pipeline refuses rather than
// guesses: when nothing in the index clears the similarity floor, the
// model is never called and a fixed refusal is returned.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nyayalabs/nyaya/internal/knowledge"
	"github.com/nyayalabs/nyaya/internal/provider"
	"github.com/nyayalabs/nyaya/internal/retrieval"
	"github.com/nyayalabs/nyaya/internal/session"
)

// Retriever is the slice of the retrieval package the pipeline uses.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]retrieval.Hit, error)
}

// Historian persists and replays per-session chat history. Satisfied by
// *session.Store; nil disables history entirely (one-shot questions).
type Historian interface {
	History(ctx context.Context, sessionID uuid.UUID, window int) ([]session.Exchange, error)
	AppendExchange(ctx context.Context, sessionID uuid.UUID, question, answer string) error
}

// Source cites one chunk an answer was grounded in.
type Source struct {
	Source string  `json:"source"`
	Chunk  string  `json:"chunk"`
	Page   string  `json:"page,omitempty"`
	Score  float64 `json:"score"` // 0-10 relevance
}

// Answer is the pipeline's result for one question.
type Answer struct {
	Text      string        `json:"text"`
	Sources   []Source      `json:"sources,omitempty"`
	Refused   bool          `json:"refused"`
	Model     string        `json:"model,omitempty"`
	Retrieved int           `json:"retrieved"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Config bounds a pipeline. Zero values fall back to defaults.
type Config struct {
	HistoryWindow int // past exchanges replayed into the prompt, default 3
}

// Pipeline wires retrieval, history and generation together.
// Safe for concurrent use.
type Pipeline struct {
	retriever Retriever
	chat      provider.ChatModel
	history   Historian
	cfg       Config
	logger    *slog.Logger
}

// New creates a Pipeline. history may be nil for stateless use; a nil
// logger falls back to slog.Default().
func New(retriever Retriever, chat provider.ChatModel, history Historian, cfg Config, logger *slog.Logger) *Pipeline {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		retriever: retriever,
		chat:      chat,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask answers one question within a session. A nil-UUID sessionID (or a
// pipeline built without a Historian) skips history on both ends.
func (p *Pipeline) Ask(ctx context.Context, sessionID uuid.UUID, question string) (*Answer, error) {
	start := time.Now()
	normalized := NormalizeQuestion(question)
	if normalized == "" {
		return nil, errors.New("empty question")
	}

	hits, err := p.retriever.Retrieve(ctx, normalized)
	if err != nil {
		if errors.Is(err, retrieval.ErrNoDocuments) {
			// Nothing ingested yet behaves like nothing relevant.
			return p.refuse(ctx, sessionID, question, start)
		}
		return nil, fmt.Errorf("retrieving context: %w", err)
	}
	if len(hits) == 0 {
		return p.refuse(ctx, sessionID, question, start)
	}

	history, err := p.loadHistory(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	messages := buildMessages(normalized, BuildContext(hits), history)
	text, err := p.chat.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	if err := p.record(ctx, sessionID, question, text); err != nil {
		return nil, err
	}

	answer := &Answer{
		Text:      text,
		Sources:   citeSources(hits),
		Model:     p.chat.Name(),
		Retrieved: len(hits),
		Elapsed:   time.Since(start),
	}
	p.logger.Debug("answered question",
		"session", sessionID,
		"chunks", len(hits),
		"elapsed", answer.Elapsed)
	return answer, nil
}

func (p *Pipeline) refuse(ctx context.Context, sessionID uuid.UUID, question string, start time.Time) (*Answer, error) {
	if err := p.record(ctx, sessionID, question, RefusalMessage); err != nil {
		return nil, err
	}
	p.logger.Debug("refused question", "session", sessionID)
	return &Answer{
		Text:    RefusalMessage,
		Refused: true,
		Elapsed: time.Since(start),
	}, nil
}

func (p *Pipeline) loadHistory(ctx context.Context, sessionID uuid.UUID) ([]session.Exchange, error) {
	if p.history == nil || sessionID == uuid.Nil {
		return nil, nil
	}
	history, err := p.history.History(ctx, sessionID, p.cfg.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return history, nil
}

func (p *Pipeline) record(ctx context.Context, sessionID uuid.UUID, question, answer string) error {
	if p.history == nil || sessionID == uuid.Nil {
		return nil
	}
	if err := p.history.AppendExchange(ctx, sessionID, question, answer); err != nil {
		return fmt.Errorf("recording exchange: %w", err)
	}
	return nil
}

func citeSources(hits []retrieval.Hit) []Source {
	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		meta := hit.Document.Metadata
		sources = append(sources, Source{
			Source: meta[knowledge.MetaSource],
			Chunk:  meta[knowledge.MetaChunk],
			Page:   meta[knowledge.MetaPage],
			Score:  hit.Score,
		})
	}
	return sources
}
