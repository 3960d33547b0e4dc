package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/nyayalabs/nyaya/internal/document"
	"github.com/nyayalabs/nyaya/internal/knowledge"
)

// Ingestor is the slice of the knowledge store the indexer uses.
type Ingestor interface {
	AddBatch(ctx context.Context, docs []knowledge.Document) (int, error)
	Count(ctx context.Context, filter map[string]string) (int, error)
	Purge(ctx context.Context) (int, error)
	ListSources(ctx context.Context) ([]knowledge.SourceCount, error)
}

// IndexResult summarizes one ingestion run.
type IndexResult struct {
	Files    int           // source files loaded
	Skipped  int           // unsupported files passed over
	Failed   int           // files that could not be loaded
	Chunks   int           // chunks produced
	Inserted int           // chunks newly stored (rest deduplicated)
	Elapsed  time.Duration
}

// IndexStatus describes the current state of the index.
type IndexStatus struct {
	Chunks  int
	Sources []knowledge.SourceCount
}

// Indexer ingests a document directory into the knowledge store.
type Indexer struct {
	loader   *document.Loader
	splitter *document.Splitter
	store    Ingestor
	logger   *slog.Logger
}

// NewIndexer creates an Indexer. A nil logger falls back to
// slog.Default().
func NewIndexer(loader *document.Loader, splitter *document.Splitter, store Ingestor, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		loader:   loader,
		splitter: splitter,
		store:    store,
		logger:   logger,
	}
}

// Index loads every supported file under dir, splits it and stores the
// chunks. Files that fail to load are counted in the result rather than
// aborting the run. Already-indexed chunks deduplicate away, so
// re-running over an unchanged corpus inserts nothing.
func (ix *Indexer) Index(ctx context.Context, dir string) (*IndexResult, error) {
	start := time.Now()

	loaded, err := ix.loader.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	if len(loaded.Docs) == 0 && len(loaded.Failed) == 0 {
		return nil, fmt.Errorf("no supported documents in %s", dir)
	}

	result := &IndexResult{
		Files:   countSources(loaded.Docs),
		Skipped: len(loaded.Skipped),
		Failed:  len(loaded.Failed),
	}

	chunks := ix.splitter.SplitDocuments(loaded.Docs)
	result.Chunks = len(chunks)
	if len(chunks) > 0 {
		inserted, err := ix.store.AddBatch(ctx, toStoreDocuments(chunks))
		if err != nil {
			return nil, fmt.Errorf("storing chunks: %w", err)
		}
		result.Inserted = inserted
	}

	result.Elapsed = time.Since(start)
	ix.logger.Info("indexed documents",
		"dir", dir,
		"files", result.Files,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"chunks", result.Chunks,
		"inserted", result.Inserted,
		"elapsed", result.Elapsed)
	return result, nil
}

// IndexFile ingests a single file of a supported type.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*IndexResult, error) {
	start := time.Now()

	docs, err := ix.loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no text extracted from %s", path)
	}

	chunks := ix.splitter.SplitDocuments(docs)
	inserted, err := ix.store.AddBatch(ctx, toStoreDocuments(chunks))
	if err != nil {
		return nil, fmt.Errorf("storing chunks: %w", err)
	}

	result := &IndexResult{
		Files:    1,
		Chunks:   len(chunks),
		Inserted: inserted,
		Elapsed:  time.Since(start),
	}
	ix.logger.Info("indexed file",
		"path", path,
		"chunks", result.Chunks,
		"inserted", result.Inserted,
		"elapsed", result.Elapsed)
	return result, nil
}

// Rebuild purges the index and ingests the directory from scratch.
func (ix *Indexer) Rebuild(ctx context.Context, dir string) (*IndexResult, error) {
	purged, err := ix.store.Purge(ctx)
	if err != nil {
		return nil, fmt.Errorf("purging index: %w", err)
	}
	ix.logger.Info("purged index for rebuild", "chunks", purged)
	return ix.Index(ctx, dir)
}

// Status reports the index size and its per-source breakdown.
func (ix *Indexer) Status(ctx context.Context) (*IndexStatus, error) {
	count, err := ix.store.Count(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	sources, err := ix.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}
	return &IndexStatus{Chunks: count, Sources: sources}, nil
}

func toStoreDocuments(chunks []document.Chunk) []knowledge.Document {
	docs := make([]knowledge.Document, 0, len(chunks))
	for _, chunk := range chunks {
		metadata := map[string]string{
			knowledge.MetaSource: chunk.Source,
			knowledge.MetaPath:   chunk.Path,
			knowledge.MetaType:   chunk.Type,
			knowledge.MetaChunk:  strconv.Itoa(chunk.Index),
		}
		if chunk.Page > 0 {
			metadata[knowledge.MetaPage] = strconv.Itoa(chunk.Page)
		}
		docs = append(docs, knowledge.Document{
			Content:  chunk.Text,
			Metadata: metadata,
		})
	}
	return docs
}

func countSources(docs []document.Document) int {
	seen := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		seen[doc.Source] = struct{}{}
	}
	return len(seen)
}
