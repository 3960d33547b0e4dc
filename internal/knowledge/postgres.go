package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// NewPool opens a pgx connection pool with pgvector types registered on
// every connection. Callers own the pool and must Close it.
func NewPool(ctx context.Context, connURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection URL: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// PgxQuerier is the production Querier over a pgx connection pool.
// All queries are parameterized; metadata filters arrive as
// json.Marshal output and are bound, never interpolated.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier wraps a pool. The pool's lifecycle stays with the caller.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

// UpsertDocument implements Querier. Conflicting IDs (identical chunks)
// are ignored, which is what deduplicates re-ingested corpora.
func (q *PgxQuerier) UpsertDocument(ctx context.Context, arg UpsertDocumentParams) (bool, error) {
	tag, err := q.pool.Exec(ctx,
		`INSERT INTO documents (id, content, embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO NOTHING`,
		arg.ID, arg.Content, pgvector.NewVector(arg.Embedding), arg.Metadata, arg.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SearchDocuments implements Querier using cosine distance. Similarity
// is 1 - distance so larger means closer.
func (q *PgxQuerier) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT id, content, metadata, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM documents
		 WHERE ($2::jsonb IS NULL OR metadata @> $2::jsonb)
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(arg.QueryEmbedding), arg.FilterMetadata, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SearchDocumentsRow
	for rows.Next() {
		var row SearchDocumentsRow
		if err := rows.Scan(&row.ID, &row.Content, &row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CountDocuments implements Querier.
func (q *PgxQuerier) CountDocuments(ctx context.Context, filterMetadata []byte) (int64, error) {
	var count int64
	err := q.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents
		 WHERE ($1::jsonb IS NULL OR metadata @> $1::jsonb)`,
		filterMetadata).Scan(&count)
	return count, err
}

// DeleteDocument implements Querier.
func (q *PgxQuerier) DeleteDocument(ctx context.Context, id string) error {
	_, err := q.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	return err
}

// DeleteBySource implements Querier.
func (q *PgxQuerier) DeleteBySource(ctx context.Context, source string) (int64, error) {
	tag, err := q.pool.Exec(ctx,
		`DELETE FROM documents WHERE metadata->>'source' = $1`, source)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PurgeDocuments implements Querier.
func (q *PgxQuerier) PurgeDocuments(ctx context.Context) (int64, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM documents`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListSources implements Querier.
func (q *PgxQuerier) ListSources(ctx context.Context) ([]SourceCount, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT metadata->>'source' AS source, count(*)
		 FROM documents
		 GROUP BY 1
		 ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceCount
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Chunks); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
