package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/goleak"

	"github.com/nyayalabs/nyaya/internal/log"
	"github.com/nyayalabs/nyaya/internal/rag"
	"github.com/nyayalabs/nyaya/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockPipeline struct {
	answer *rag.Answer
	err    error

	lastSession  uuid.UUID
	lastQuestion string
}

func (m *mockPipeline) Ask(_ context.Context, sessionID uuid.UUID, question string) (*rag.Answer, error) {
	m.lastSession = sessionID
	m.lastQuestion = question
	return m.answer, m.err
}

type mockSessions struct {
	sessions map[uuid.UUID]*session.Session
	history  []session.Exchange
	err      error
}

func newMockSessions() *mockSessions {
	return &mockSessions{sessions: make(map[uuid.UUID]*session.Session)}
}

func (m *mockSessions) Create(_ context.Context, title string) (*session.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	sess := &session.Session{ID: uuid.New(), Title: title, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.sessions[sess.ID] = sess
	return sess, nil
}

func (m *mockSessions) Get(_ context.Context, id uuid.UUID) (*session.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return sess, nil
}

func (m *mockSessions) List(_ context.Context) ([]session.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]session.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		out = append(out, *sess)
	}
	return out, nil
}

func (m *mockSessions) Delete(_ context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.sessions[id]; !ok {
		return session.ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *mockSessions) History(_ context.Context, _ uuid.UUID, _ int) ([]session.Exchange, error) {
	return m.history, m.err
}

type mockIndexer struct {
	status *rag.IndexStatus
	err    error
}

func (m *mockIndexer) Status(_ context.Context) (*rag.IndexStatus, error) {
	return m.status, m.err
}

func newTestServer(t *testing.T, pipeline Asker, sessions Sessions, indexer Indexer) http.Handler {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger:   log.NewNop(),
		Pipeline: pipeline,
		Sessions: sessions,
		Indexer:  indexer,
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return srv.Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServer_RequiresDeps(t *testing.T) {
	if _, err := NewServer(ServerConfig{Sessions: newMockSessions()}); err == nil {
		t.Error("missing pipeline accepted")
	}
	if _, err := NewServer(ServerConfig{Pipeline: &mockPipeline{}}); err == nil {
		t.Error("missing session store accepted")
	}
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, &mockPipeline{}, newMockSessions(), nil)

	rec := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/health = %d, want 200", rec.Code)
	}

	// No pool configured: readiness degrades to a plain OK.
	rec = doJSON(t, handler, http.MethodGet, "/ready", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/ready = %d, want 200", rec.Code)
	}
}

func TestChat(t *testing.T) {
	sessions := newMockSessions()
	sess, _ := sessions.Create(context.Background(), "t")
	pipeline := &mockPipeline{answer: &rag.Answer{
		Text:    "Section 27 provides...",
		Sources: []rag.Source{{Source: "act.txt", Chunk: "0", Score: 9.1}},
		Model:   "groq/llama-3.1-8b-instant",
		Elapsed: 1500 * time.Millisecond,
	}}
	handler := newTestServer(t, pipeline, sessions, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v1/chat", chatRequest{
		SessionID: sess.ID.String(),
		Question:  "What is Section 27?",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer != "Section 27 provides..." || resp.SessionID != sess.ID.String() {
		t.Errorf("response = %+v", resp)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Score != 9.1 {
		t.Errorf("sources = %+v", resp.Sources)
	}
	if resp.ElapsedMS != 1500 {
		t.Errorf("elapsed = %d, want 1500", resp.ElapsedMS)
	}
	if pipeline.lastSession != sess.ID {
		t.Errorf("pipeline saw session %s, want %s", pipeline.lastSession, sess.ID)
	}
}

func TestChat_Refusal(t *testing.T) {
	pipeline := &mockPipeline{answer: &rag.Answer{Text: rag.RefusalMessage, Refused: true}}
	handler := newTestServer(t, pipeline, newMockSessions(), nil)

	rec := doJSON(t, handler, http.MethodPost, "/v1/chat", chatRequest{Question: "off topic"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Refused || resp.Answer != rag.RefusalMessage {
		t.Errorf("response = %+v", resp)
	}
	if resp.SessionID != "" {
		t.Errorf("stateless chat returned session id %q", resp.SessionID)
	}
}

func TestChat_BadRequests(t *testing.T) {
	handler := newTestServer(t, &mockPipeline{}, newMockSessions(), nil)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"empty question", chatRequest{Question: "  "}, http.StatusBadRequest},
		{"bad session id", chatRequest{SessionID: "not-a-uuid", Question: "q"}, http.StatusBadRequest},
		{"unknown session", chatRequest{SessionID: uuid.NewString(), Question: "q"}, http.StatusNotFound},
		{"unknown field", map[string]string{"prompt": "q"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/v1/chat", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChat_PipelineFailure(t *testing.T) {
	pipeline := &mockPipeline{err: errors.New("model unavailable")}
	handler := newTestServer(t, pipeline, newMockSessions(), nil)

	rec := doJSON(t, handler, http.MethodPost, "/v1/chat", chatRequest{Question: "q"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	sessions := newMockSessions()
	handler := newTestServer(t, &mockPipeline{}, sessions, nil)

	rec := doJSON(t, handler, http.MethodPost, "/v1/sessions", createSessionRequest{Title: "evidence research"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body = %s", rec.Code, rec.Body)
	}
	var created sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Title != "evidence research" {
		t.Errorf("title = %q", created.Title)
	}

	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), created.ID) {
		t.Errorf("list = %d, body = %s", rec.Code, rec.Body)
	}

	sessions.history = []session.Exchange{{Question: "q1", Answer: "a1"}}
	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	var detail sessionDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(detail.History) != 1 || detail.History[0].Question != "q1" {
		t.Errorf("history = %+v", detail.History)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/v1/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d, want 204", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodDelete, "/v1/sessions/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id = %d, want 400", rec.Code)
	}
}

func TestIndexStatus(t *testing.T) {
	indexer := &mockIndexer{status: &rag.IndexStatus{Chunks: 420}}
	handler := newTestServer(t, &mockPipeline{}, newMockSessions(), indexer)

	rec := doJSON(t, handler, http.MethodGet, "/v1/index/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp indexStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Chunks != 420 {
		t.Errorf("chunks = %d, want 420", resp.Chunks)
	}

	// Without an indexer the route is absent.
	handler = newTestServer(t, &mockPipeline{}, newMockSessions(), nil)
	rec = doJSON(t, handler, http.MethodGet, "/v1/index/status", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without indexer = %d, want 404", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicking := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := recovery(log.NewNop())(panicking)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestListenAndServe_GracefulShutdown(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:   log.NewNop(),
		Pipeline: &mockPipeline{},
		Sessions: newMockSessions(),
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.ListenAndServe(ctx, "127.0.0.1:0")
	}()

	// Give the listener a moment, then trigger shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe = %v, want nil after shutdown", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
