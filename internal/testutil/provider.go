package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/nyayalabs/nyaya/internal/provider"
)

// FakeEmbedder produces deterministic embeddings derived from the input
// text, so equal texts always map to equal vectors. It implements both
// knowledge.Embedder and provider.Embedder.
type FakeEmbedder struct {
	Dim int
	Err error

	mu    sync.Mutex
	calls int
}

func NewFakeEmbedder() *FakeEmbedder {
	return &FakeEmbedder{Dim: 384}
}

func (f *FakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *FakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *FakeEmbedder) Dimension() int { return f.Dim }

// Calls reports how many embedding requests were made.
func (f *FakeEmbedder) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeEmbedder) vector(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, f.Dim)
	var norm float32
	for i := range vec {
		word := binary.BigEndian.Uint32(sum[(i*4)%28 : (i*4)%28+4])
		vec[i] = float32(word%1000)/1000.0 - 0.5
		norm += vec[i] * vec[i]
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	// Normalize so cosine similarity behaves like the real models.
	inv := 1 / sqrt32(norm)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func sqrt32(x float32) float32 {
	// Newton's method is plenty for test vectors.
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// FakeChat replies with a canned answer and records every prompt it saw.
type FakeChat struct {
	Reply string
	Err   error

	mu       sync.Mutex
	Requests [][]provider.Message
}

func NewFakeChat(reply string) *FakeChat {
	return &FakeChat{Reply: reply}
}

func (f *FakeChat) Generate(ctx context.Context, messages []provider.Message) (string, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, messages)
	f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	if f.Reply == "" {
		return fmt.Sprintf("canned reply %d", len(f.Requests)), nil
	}
	return f.Reply, nil
}

func (f *FakeChat) Name() string { return "fake/chat" }

// LastRequest returns the most recent message slice passed to Generate,
// or nil when Generate was never called.
func (f *FakeChat) LastRequest() []provider.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Requests) == 0 {
		return nil
	}
	return f.Requests[len(f.Requests)-1]
}
