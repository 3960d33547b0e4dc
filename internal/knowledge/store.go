// Package knowledge persists statute chunks with their embeddings in
// PostgreSQL + pgvector and answers nearest-neighbor queries over them.
//
// Store composes two injected dependencies: an Embedder that turns text
// into vectors and a Querier that talks to the database. Both are
// interfaces defined here, by the consumer, so tests can substitute
// mocks. The pgx-backed Querier lives in postgres.go.
//
// Deduplication: a chunk's ID is the SHA-256 of source and content, and
// inserts are conflict-ignoring, so re-ingesting the same corpus never
// grows the index.
package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// VectorDimension is the embedding width the documents table is sized
// for (sentence-transformers/all-MiniLM-L6-v2).
const VectorDimension = 384

var (
	// ErrDimensionMismatch indicates an embedding of the wrong width.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding indicates the embedder returned nothing.
	ErrEmptyEmbedding = errors.New("empty embedding")
)

// Embedder converts text into embedding vectors. Satisfied by the
// provider package's embedders.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Querier is the database surface Store needs. The production
// implementation is PgxQuerier; tests supply mocks.
type Querier interface {
	// UpsertDocument inserts a document, ignoring duplicates.
	// Reports whether a row was actually inserted.
	UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (bool, error)

	// SearchDocuments runs a nearest-neighbor query. A nil filter
	// searches everything.
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)

	// CountDocuments counts documents matching the JSONB filter;
	// nil counts all.
	CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error)

	// DeleteDocument removes one document by ID.
	DeleteDocument(ctx context.Context, id string) error

	// DeleteBySource removes every chunk of a source file, returning
	// the number removed.
	DeleteBySource(ctx context.Context, source string) (int64, error)

	// PurgeDocuments removes all documents, returning the number removed.
	PurgeDocuments(ctx context.Context) (int64, error)

	// ListSources returns per-source chunk counts.
	ListSources(ctx context.Context) ([]SourceCount, error)
}

// UpsertDocumentParams carries one document insert.
type UpsertDocumentParams struct {
	ID        string
	Content   string
	Embedding []float32
	Metadata  []byte
	CreatedAt time.Time
}

// SearchDocumentsParams carries one nearest-neighbor query.
type SearchDocumentsParams struct {
	QueryEmbedding []float32
	FilterMetadata []byte // nil = no filter
	ResultLimit    int
}

// SearchDocumentsRow is one raw search hit.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	Metadata   []byte
	CreatedAt  time.Time
	Similarity float64
}

// ChunkID derives the deduplicating document ID from a chunk's source
// file and content.
func ChunkID(source, content string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// Store manages chunk persistence and vector search.
// Safe for concurrent use.
type Store struct {
	queries  Querier
	embedder Embedder
	logger   *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(querier Querier, embedder Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:  querier,
		embedder: embedder,
		logger:   logger,
	}
}

// Add embeds and stores a single document. Duplicate IDs are silently
// ignored; the returned bool reports whether a new row was inserted.
func (s *Store) Add(ctx context.Context, doc Document) (bool, error) {
	added, err := s.AddBatch(ctx, []Document{doc})
	return added == 1, err
}

// AddBatch embeds and stores documents, skipping empty content, and
// returns how many rows were newly inserted (deduplicated rows don't
// count). Embedding happens in one batched call.
func (s *Store) AddBatch(ctx context.Context, docs []Document) (int, error) {
	kept := make([]Document, 0, len(docs))
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		content := strings.TrimSpace(doc.Content)
		if content == "" {
			continue
		}
		doc.Content = content
		if doc.ID == "" {
			doc.ID = ChunkID(doc.Metadata[MetaSource], content)
		}
		kept = append(kept, doc)
		texts = append(texts, content)
	}
	if len(kept) == 0 {
		s.logger.Warn("no valid documents to insert")
		return 0, nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("generating embeddings: %w", err)
	}
	if len(vectors) != len(kept) {
		return 0, fmt.Errorf("embedding count mismatch: texts=%d embeddings=%d", len(kept), len(vectors))
	}

	inserted := 0
	for i, doc := range kept {
		if len(vectors[i]) != VectorDimension {
			return inserted, fmt.Errorf("%w: document %q has %d, want %d",
				ErrDimensionMismatch, doc.ID, len(vectors[i]), VectorDimension)
		}

		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return inserted, fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
		}

		createdAt := doc.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}

		added, err := s.queries.UpsertDocument(ctx, UpsertDocumentParams{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: vectors[i],
			Metadata:  metadataJSON,
			CreatedAt: createdAt,
		})
		if err != nil {
			return inserted, fmt.Errorf("upserting document %q: %w", doc.ID, err)
		}
		if added {
			inserted++
		}
	}

	s.logger.Debug("persisted chunks", "total", len(kept), "inserted", inserted)
	return inserted, nil
}

// Search embeds the query and returns the nearest documents, ordered by
// descending similarity. A per-search timeout applies (WithTimeout).
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) ([]Result, error) {
	cfg := buildSearchConfig(opts)

	queryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	queryEmbedding, err := s.embedder.EmbedQuery(queryCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("generating query embedding: %w", err)
	}
	if len(queryEmbedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	// filterJSON is always produced by json.Marshal, never raw user
	// input, and the querier binds it as a parameter.
	var filterJSON []byte
	if len(cfg.filter) > 0 {
		filterJSON, err = json.Marshal(cfg.filter)
		if err != nil {
			return nil, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		QueryEmbedding: queryEmbedding,
		FilterMetadata: filterJSON,
		ResultLimit:    cfg.topK,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return s.rowsToResults(rows), nil
}

// Count returns the number of documents matching the filter; a nil or
// empty filter counts everything.
func (s *Store) Count(ctx context.Context, filter map[string]string) (int, error) {
	var filterJSON []byte
	if len(filter) > 0 {
		var err error
		filterJSON, err = json.Marshal(filter)
		if err != nil {
			return 0, fmt.Errorf("marshaling filter: %w", err)
		}
	}

	count, err := s.queries.CountDocuments(ctx, filterJSON)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return int(count), nil
}

// Delete removes one document.
func (s *Store) Delete(ctx context.Context, docID string) error {
	if err := s.queries.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("deleting document %q: %w", docID, err)
	}
	s.logger.Debug("deleted document", "id", docID)
	return nil
}

// DeleteBySource removes every chunk of a source file.
func (s *Store) DeleteBySource(ctx context.Context, source string) (int, error) {
	n, err := s.queries.DeleteBySource(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("deleting source %q: %w", source, err)
	}
	s.logger.Debug("deleted source", "source", source, "chunks", n)
	return int(n), nil
}

// Purge removes every document. Used by index rebuilds.
func (s *Store) Purge(ctx context.Context) (int, error) {
	n, err := s.queries.PurgeDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("purging documents: %w", err)
	}
	s.logger.Info("purged index", "chunks", n)
	return int(n), nil
}

// ListSources reports per-source chunk counts.
func (s *Store) ListSources(ctx context.Context) ([]SourceCount, error) {
	sources, err := s.queries.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	return sources, nil
}

func (s *Store) rowsToResults(rows []SearchDocumentsRow) []Result {
	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		var metadata map[string]string
		if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
			s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
			metadata = make(map[string]string)
		}
		results = append(results, Result{
			Document: Document{
				ID:        row.ID,
				Content:   row.Content,
				Metadata:  metadata,
				CreatedAt: row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}
	return results
}
