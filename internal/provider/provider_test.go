package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nyayalabs/nyaya/internal/config"
	"github.com/nyayalabs/nyaya/internal/log"
)

func TestGroqChat_Generate(t *testing.T) {
	var gotReq chatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer gsk_test" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Section 58 deals with admitted facts."},"finish_reason":"stop"}],"usage":{"prompt_tokens":100,"completion_tokens":20}}`)
	}))
	defer srv.Close()

	chat := NewGroqChat(GroqConfig{
		APIKey:      "gsk_test",
		Model:       "llama-3.1-8b-instant",
		BaseURL:     srv.URL,
		Temperature: 0.2,
		MaxTokens:   1200,
	}, log.NewNop())

	answer, err := chat.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "rules"},
		{Role: RoleUser, Content: "Explain Section 58"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(answer, "Section 58") {
		t.Errorf("answer = %q", answer)
	}
	if gotReq.Model != "llama-3.1-8b-instant" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.Temperature != 0.2 || gotReq.MaxTokens != 1200 {
		t.Errorf("generation params = %v/%v", gotReq.Temperature, gotReq.MaxTokens)
	}
	if len(gotReq.Messages) != 2 {
		t.Errorf("sent %d messages, want 2", len(gotReq.Messages))
	}
}

func TestGroqChat_RetriesOnServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`)
	}))
	defer srv.Close()

	chat := NewGroqChat(GroqConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, log.NewNop())

	answer, err := chat.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "ok" || calls != 3 {
		t.Errorf("answer=%q calls=%d", answer, calls)
	}
}

func TestGroqChat_ClientErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid api key"}`)
	}))
	defer srv.Close()

	chat := NewGroqChat(GroqConfig{APIKey: "bad", Model: "m", BaseURL: srv.URL}, log.NewNop())

	_, err := chat.Generate(context.Background(), []Message{{Role: RoleUser, Content: "q"}})
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not retry)", calls)
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error should carry response detail: %v", err)
	}
}

func TestGroqChat_EmptyMessages(t *testing.T) {
	chat := NewGroqChat(GroqConfig{APIKey: "k", Model: "m"}, log.NewNop())
	if _, err := chat.Generate(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty messages")
	}
}

// fakeEmbeddingServer returns deterministic vectors of the given width.
func fakeEmbeddingServer(t *testing.T, dim int, batchSizes *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/pipeline/feature-extraction") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req featureExtractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if batchSizes != nil {
			*batchSizes = append(*batchSizes, len(req.Inputs))
		}
		out := make([][]float32, len(req.Inputs))
		for i := range out {
			vec := make([]float32, dim)
			vec[0] = float32(i + 1)
			out[i] = vec
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
}

func TestHFEmbedder_EmbedDocuments(t *testing.T) {
	var batches []int
	srv := fakeEmbeddingServer(t, 384, &batches)
	defer srv.Close()

	e := NewHFEmbedder(HFConfig{
		APIKey:  "hf_test",
		Model:   "sentence-transformers/all-MiniLM-L6-v2",
		BaseURL: srv.URL,
	}, log.NewNop())

	texts := make([]string, 100)
	for i := range texts {
		texts[i] = fmt.Sprintf("chunk %d", i)
	}

	vectors, err := e.EmbedDocuments(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	if len(vectors) != 100 {
		t.Fatalf("got %d vectors, want 100", len(vectors))
	}
	if len(vectors[0]) != 384 {
		t.Errorf("dimension = %d, want 384", len(vectors[0]))
	}
	// 100 inputs split into batches of at most embedBatchSize.
	if len(batches) != 2 || batches[0] != embedBatchSize || batches[1] != 100-embedBatchSize {
		t.Errorf("batch sizes = %v", batches)
	}
}

func TestHFEmbedder_DimensionMismatch(t *testing.T) {
	srv := fakeEmbeddingServer(t, 768, nil)
	defer srv.Close()

	e := NewHFEmbedder(HFConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, log.NewNop())

	_, err := e.EmbedDocuments(context.Background(), []string{"text"})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !strings.Contains(err.Error(), "dimension") {
		t.Errorf("error = %v", err)
	}
}

func TestHFEmbedder_EmptyInput(t *testing.T) {
	e := NewHFEmbedder(HFConfig{APIKey: "k", Model: "m"}, log.NewNop())
	vectors, err := e.EmbedDocuments(context.Background(), nil)
	if err != nil || vectors != nil {
		t.Errorf("EmbedDocuments(nil) = %v, %v; want nil, nil", vectors, err)
	}
}

func TestHFEmbedder_EmbedQuery(t *testing.T) {
	srv := fakeEmbeddingServer(t, 384, nil)
	defer srv.Close()

	e := NewHFEmbedder(HFConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, log.NewNop())

	vec, err := e.EmbedQuery(context.Background(), "what is estoppel")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 384 {
		t.Errorf("dimension = %d", len(vec))
	}
}

func TestFactory(t *testing.T) {
	base := &config.Config{
		GroqAPIKey:       "gsk",
		GroqModel:        config.DefaultGroqModel,
		HFAPIKey:         "hf",
		HFEmbeddingModel: config.DefaultHFEmbeddingModel,
		HFChatModel:      config.DefaultHFChatModel,
	}

	tests := []struct {
		provider string
		wantChat string
		wantErr  error
	}{
		{config.ProviderHuggingFace, "huggingface/" + config.DefaultHFChatModel, nil},
		{config.ProviderHybrid, "groq/" + config.DefaultGroqModel, nil},
		{config.ProviderGroq, "groq/" + config.DefaultGroqModel, nil},
		{"openai", "", ErrUnknownProvider},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := *base
			cfg.Provider = tt.provider

			pair, err := Factory(&cfg, log.NewNop())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Factory() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Factory: %v", err)
			}
			if pair.Embedder == nil || pair.Chat == nil {
				t.Fatal("factory returned incomplete pair")
			}
			if got := pair.Chat.Name(); got != tt.wantChat {
				t.Errorf("chat model = %q, want %q", got, tt.wantChat)
			}
			if pair.Embedder.Dimension() != DefaultEmbeddingDimension {
				t.Errorf("dimension = %d", pair.Embedder.Dimension())
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	if d := backoffDelay(0, ""); d.Milliseconds() != 500 {
		t.Errorf("attempt 0 delay = %v", d)
	}
	if d := backoffDelay(2, ""); d.Milliseconds() != 2000 {
		t.Errorf("attempt 2 delay = %v", d)
	}
	if d := backoffDelay(0, "7"); d.Seconds() != 7 {
		t.Errorf("retry-after delay = %v", d)
	}
	// Unparseable Retry-After falls back to exponential.
	if d := backoffDelay(1, "soon"); d.Milliseconds() != 1000 {
		t.Errorf("fallback delay = %v", d)
	}
}
