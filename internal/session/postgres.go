package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the pgx-backed Querier.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

var _ Querier = (*PgxQuerier)(nil)

func (q *PgxQuerier) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.pool.Exec(ctx,
		`INSERT INTO sessions (id, title, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		arg.ID, arg.Title, arg.CreatedAt)
	return err
}

func (q *PgxQuerier) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var sess Session
	err := q.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions WHERE id = $1`,
		id).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

func (q *PgxQuerier) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM sessions
		 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (q *PgxQuerier) TouchSession(ctx context.Context, id uuid.UUID, title string, updatedAt time.Time) error {
	_, err := q.pool.Exec(ctx,
		`UPDATE sessions SET title = $2, updated_at = $3 WHERE id = $1`,
		id, title, updatedAt)
	return err
}

func (q *PgxQuerier) DeleteSession(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := q.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// AppendMessages runs in a transaction: the session row is locked so
// concurrent appends to the same session cannot race on sequence
// numbers.
func (q *PgxQuerier) AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []Message) error {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM sessions WHERE id = $1 FOR UPDATE`,
		sessionID).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking session: %w", err)
	}

	var maxSeq int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM session_messages
		 WHERE session_id = $1`,
		sessionID).Scan(&maxSeq)
	if err != nil {
		return fmt.Errorf("reading sequence number: %w", err)
	}

	for i, msg := range messages {
		_, err = tx.Exec(ctx,
			`INSERT INTO session_messages
			 (session_id, role, content, sequence_number, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			sessionID, msg.Role, msg.Content, maxSeq+i+1, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("inserting message %d: %w", maxSeq+i+1, err)
		}
	}

	return tx.Commit(ctx)
}

func (q *PgxQuerier) RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	// Fetch the newest rows, then flip back to chronological order.
	rows, err := q.pool.Query(ctx,
		`SELECT id, session_id, role, content, sequence_number, created_at
		 FROM (
		     SELECT id, session_id, role, content, sequence_number, created_at
		     FROM session_messages
		     WHERE session_id = $1
		     ORDER BY sequence_number DESC
		     LIMIT $2
		 ) recent
		 ORDER BY sequence_number ASC`,
		sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.SequenceNumber, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
