package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Querier is the database surface Store needs. The production
// implementation is PgxQuerier; tests supply mocks.
type Querier interface {
	CreateSession(ctx context.Context, arg CreateSessionParams) error
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	TouchSession(ctx context.Context, id uuid.UUID, title string, updatedAt time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) (bool, error)

	// AppendMessages stores both turns of one exchange atomically,
	// assigning the next sequence numbers.
	AppendMessages(ctx context.Context, sessionID uuid.UUID, messages []Message) error
	RecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)
}

// CreateSessionParams carries one session insert.
type CreateSessionParams struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
}

// Store manages session persistence. Safe for concurrent use.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a Store. A nil logger falls back to slog.Default().
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{queries: querier, logger: logger}
}

// Create starts a new session. An empty title stays empty until the
// first exchange derives one.
func (s *Store) Create(ctx context.Context, title string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.queries.CreateSession(ctx, CreateSessionParams{
		ID:        sess.ID,
		Title:     sess.Title,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	s.logger.Debug("created session", "id", sess.ID, "title", sess.Title)
	return sess, nil
}

// Get retrieves a session by ID. Returns ErrNotFound when it does not
// exist.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.queries.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return &sess, nil
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	sessions, err := s.queries.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and, through the foreign key cascade, its
// messages. Returns ErrNotFound when the session does not exist.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.queries.DeleteSession(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if !deleted {
		return fmt.Errorf("deleting session %s: %w", id, ErrNotFound)
	}
	s.logger.Debug("deleted session", "id", id)
	return nil
}

// AppendExchange stores one question/answer pair at the end of the
// session, derives a title from the question when the session has none,
// and bumps the session's updated timestamp.
func (s *Store) AppendExchange(ctx context.Context, sessionID uuid.UUID, question, answer string) error {
	sess, err := s.queries.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("getting session %s: %w", sessionID, err)
	}

	now := time.Now()
	messages := []Message{
		{SessionID: sessionID, Role: RoleUser, Content: question, CreatedAt: now},
		{SessionID: sessionID, Role: RoleAssistant, Content: answer, CreatedAt: now},
	}
	if err := s.queries.AppendMessages(ctx, sessionID, messages); err != nil {
		return fmt.Errorf("appending exchange to %s: %w", sessionID, err)
	}

	title := sess.Title
	if title == "" {
		title = DeriveTitle(question)
	}
	if err := s.queries.TouchSession(ctx, sessionID, title, now); err != nil {
		return fmt.Errorf("touching session %s: %w", sessionID, err)
	}
	return nil
}

// History returns the session's last `window` exchanges in
// chronological order. A dangling user message with no answer yet is
// dropped.
func (s *Store) History(ctx context.Context, sessionID uuid.UUID, window int) ([]Exchange, error) {
	if window <= 0 {
		return nil, nil
	}

	// Each exchange is two rows; fetch one extra pair to survive an
	// odd trailing message.
	messages, err := s.queries.RecentMessages(ctx, sessionID, window*2+2)
	if err != nil {
		return nil, fmt.Errorf("loading history for %s: %w", sessionID, err)
	}

	exchanges := make([]Exchange, 0, window)
	for i := 0; i+1 < len(messages); i++ {
		if messages[i].Role != RoleUser || messages[i+1].Role != RoleAssistant {
			continue
		}
		exchanges = append(exchanges, Exchange{
			Question: messages[i].Content,
			Answer:   messages[i+1].Content,
		})
		i++
	}
	if len(exchanges) > window {
		exchanges = exchanges[len(exchanges)-window:]
	}
	return exchanges, nil
}
