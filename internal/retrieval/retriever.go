// Package retrieval ranks and filters vector-store hits for the answer
// pipeline. It fetches a wider candidate set than it returns, drops
// everything below the similarity floor, and keeps the top K survivors.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/nyayalabs/nyaya/internal/knowledge"
)

// ErrNoDocuments indicates an empty index: nothing has been ingested yet.
var ErrNoDocuments = errors.New("no documents indexed")

// Searcher is the slice of the knowledge store the retriever uses.
type Searcher interface {
	Search(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]knowledge.Result, error)
	Count(ctx context.Context, filter map[string]string) (int, error)
}

// Hit is one retrieved chunk with both the raw cosine similarity and a
// 0-10 display score for user-facing output.
type Hit struct {
	Document   knowledge.Document
	Similarity float64
	Score      float64 // similarity * 10, rounded to one decimal
}

// Config bounds a retriever. Zero values fall back to defaults.
type Config struct {
	TopK          int     // results returned, default 5
	CandidateK    int     // candidates fetched before filtering, default 20
	MinSimilarity float64 // floor below which hits are dropped, default 0.25
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.CandidateK <= 0 {
		c.CandidateK = 20
	}
	if c.CandidateK < c.TopK {
		c.CandidateK = c.TopK
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.25
	}
}

// Retriever applies threshold filtering and top-K truncation on top of
// raw vector search.
type Retriever struct {
	store  Searcher
	cfg    Config
	logger *slog.Logger
}

// New creates a Retriever. A nil logger falls back to slog.Default().
func New(store Searcher, cfg Config, logger *slog.Logger) *Retriever {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, cfg: cfg, logger: logger}
}

// Retrieve returns the most relevant chunks for the query, strongest
// first. An empty index yields ErrNoDocuments; an index with no chunk
// above the similarity floor yields an empty slice and no error, which
// the pipeline turns into a refusal.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...knowledge.SearchOption) ([]Hit, error) {
	count, err := r.store.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("checking index size: %w", err)
	}
	if count == 0 {
		return nil, ErrNoDocuments
	}

	searchOpts := append([]knowledge.SearchOption{knowledge.WithTopK(r.cfg.CandidateK)}, opts...)
	results, err := r.store.Search(ctx, query, searchOpts...)
	if err != nil {
		return nil, fmt.Errorf("retrieving candidates: %w", err)
	}

	hits := make([]Hit, 0, r.cfg.TopK)
	for _, res := range results {
		if res.Similarity < r.cfg.MinSimilarity {
			continue
		}
		hits = append(hits, Hit{
			Document:   res.Document,
			Similarity: res.Similarity,
			Score:      DisplayScore(res.Similarity),
		})
		if len(hits) == r.cfg.TopK {
			break
		}
	}

	r.logger.Debug("retrieved chunks",
		"candidates", len(results),
		"kept", len(hits),
		"floor", r.cfg.MinSimilarity)
	return hits, nil
}

// DisplayScore converts a cosine similarity into the 0-10 relevance
// score shown next to cited sources, rounded to one decimal.
func DisplayScore(similarity float64) float64 {
	if similarity < 0 {
		similarity = 0
	}
	if similarity > 1 {
		similarity = 1
	}
	return math.Round(similarity*100) / 10
}
