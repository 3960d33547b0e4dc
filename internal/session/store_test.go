package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nyayalabs/nyaya/internal/log"
)

// mockQuerier keeps sessions and messages in memory.
type mockQuerier struct {
	sessions map[uuid.UUID]Session
	messages map[uuid.UUID][]Message

	createErr error
	appendErr error
	touchErr  error
	listErr   error
	recentErr error

	touched      []string
	recentLimits []int
}

func newMockQuerier() *mockQuerier {
	return &mockQuerier{
		sessions: make(map[uuid.UUID]Session),
		messages: make(map[uuid.UUID][]Message),
	}
}

func (m *mockQuerier) CreateSession(_ context.Context, arg CreateSessionParams) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.sessions[arg.ID] = Session{
		ID:        arg.ID,
		Title:     arg.Title,
		CreatedAt: arg.CreatedAt,
		UpdatedAt: arg.CreatedAt,
	}
	return nil
}

func (m *mockQuerier) GetSession(_ context.Context, id uuid.UUID) (Session, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *mockQuerier) ListSessions(_ context.Context) ([]Session, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, sess)
	}
	return out, nil
}

func (m *mockQuerier) TouchSession(_ context.Context, id uuid.UUID, title string, updatedAt time.Time) error {
	if m.touchErr != nil {
		return m.touchErr
	}
	sess, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Title = title
	sess.UpdatedAt = updatedAt
	m.sessions[id] = sess
	m.touched = append(m.touched, title)
	return nil
}

func (m *mockQuerier) DeleteSession(_ context.Context, id uuid.UUID) (bool, error) {
	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}
	delete(m.sessions, id)
	delete(m.messages, id)
	return true, nil
}

func (m *mockQuerier) AppendMessages(_ context.Context, sessionID uuid.UUID, messages []Message) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	seq := len(m.messages[sessionID])
	for i, msg := range messages {
		msg.SequenceNumber = seq + i + 1
		m.messages[sessionID] = append(m.messages[sessionID], msg)
	}
	return nil
}

func (m *mockQuerier) RecentMessages(_ context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	if m.recentErr != nil {
		return nil, m.recentErr
	}
	m.recentLimits = append(m.recentLimits, limit)
	msgs := m.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func newTestStore(q Querier) *Store {
	return New(q, log.NewNop())
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"short question kept whole", "What is Section 27?", "What is Section 27?"},
		{"long question truncated", strings.Repeat("evidence ", 10), "evidence evidence evidence e"},
		{"whitespace collapsed", "  what\n\tis   estoppel  ", "what is estoppel"},
		{"empty input", "   ", "New session"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveTitle(tt.input)
			if got != tt.want {
				t.Errorf("DeriveTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if n := len([]rune(got)); n > titleLimit {
				t.Errorf("title is %d runes, limit %d", n, titleLimit)
			}
		})
	}
}

func TestCreateAndGet(t *testing.T) {
	querier := newMockQuerier()
	store := newTestStore(querier)
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if sess.ID == uuid.Nil {
		t.Error("session ID not generated")
	}

	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != sess.ID {
		t.Errorf("Get returned %s, want %s", got.ID, sess.ID)
	}

	if _, err := store.Get(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get unknown = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	querier := newMockQuerier()
	store := newTestStore(querier)
	ctx := context.Background()

	sess, err := store.Create(ctx, "doomed")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, sess.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestAppendExchange(t *testing.T) {
	querier := newMockQuerier()
	store := newTestStore(querier)
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := store.AppendExchange(ctx, sess.ID, "What is Section 27?", "Section 27 provides..."); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	msgs := querier.messages[sess.ID]
	if len(msgs) != 2 {
		t.Fatalf("stored %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
		t.Errorf("roles = %s/%s, want user/assistant", msgs[0].Role, msgs[1].Role)
	}
	if msgs[0].SequenceNumber != 1 || msgs[1].SequenceNumber != 2 {
		t.Errorf("sequence = %d/%d, want 1/2", msgs[0].SequenceNumber, msgs[1].SequenceNumber)
	}

	// The first exchange names the untitled session.
	got, _ := store.Get(ctx, sess.ID)
	if got.Title != "What is Section 27?" {
		t.Errorf("title = %q, want question-derived title", got.Title)
	}

	// A later exchange must not rename it.
	if err := store.AppendExchange(ctx, sess.ID, "And Section 65B?", "Section 65B covers..."); err != nil {
		t.Fatalf("second AppendExchange: %v", err)
	}
	got, _ = store.Get(ctx, sess.ID)
	if got.Title != "What is Section 27?" {
		t.Errorf("title changed to %q after second exchange", got.Title)
	}

	if err := store.AppendExchange(ctx, uuid.New(), "q", "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("AppendExchange to unknown session = %v, want ErrNotFound", err)
	}
}

func TestHistory(t *testing.T) {
	querier := newMockQuerier()
	store := newTestStore(querier)
	ctx := context.Background()

	sess, err := store.Create(ctx, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 5; i++ {
		q := string(rune('a' + i))
		if err := store.AppendExchange(ctx, sess.ID, "q-"+q, "a-"+q); err != nil {
			t.Fatalf("AppendExchange %d: %v", i, err)
		}
	}

	history, err := store.History(ctx, sess.ID, 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("history length = %d, want 3", len(history))
	}
	// The window keeps the newest exchanges in chronological order.
	if history[0].Question != "q-c" || history[2].Question != "q-e" {
		t.Errorf("window = %q..%q, want q-c..q-e", history[0].Question, history[2].Question)
	}
	if history[2].Answer != "a-e" {
		t.Errorf("answer = %q, want a-e", history[2].Answer)
	}
}

func TestHistory_Isolation(t *testing.T) {
	querier := newMockQuerier()
	store := newTestStore(querier)
	ctx := context.Background()

	first, _ := store.Create(ctx, "")
	second, _ := store.Create(ctx, "")
	if err := store.AppendExchange(ctx, first.ID, "first question", "first answer"); err != nil {
		t.Fatalf("AppendExchange: %v", err)
	}

	history, err := store.History(ctx, second.ID, 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("fresh session sees %d exchanges from another session", len(history))
	}
}

func TestHistory_EdgeCases(t *testing.T) {
	querier := newMockQuerier()
	store := newTestStore(querier)
	ctx := context.Background()

	sess, _ := store.Create(ctx, "")

	// Zero window never touches the database.
	history, err := store.History(ctx, sess.ID, 0)
	if err != nil || history != nil {
		t.Errorf("History(0) = %v, %v; want nil, nil", history, err)
	}
	if len(querier.recentLimits) != 0 {
		t.Error("History(0) queried the database")
	}

	// A dangling user message without an answer is dropped.
	querier.messages[sess.ID] = []Message{
		{Role: RoleUser, Content: "q1", SequenceNumber: 1},
		{Role: RoleAssistant, Content: "a1", SequenceNumber: 2},
		{Role: RoleUser, Content: "dangling", SequenceNumber: 3},
	}
	history, err = store.History(ctx, sess.ID, 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Question != "q1" {
		t.Errorf("history = %+v, want single q1 exchange", history)
	}
}
