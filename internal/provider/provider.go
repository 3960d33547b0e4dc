// Package provider implements the hosted inference backends.
//
// Two concerns are abstracted: embedding text into vectors (Embedder) and
// generating chat completions (ChatModel). Both run against hosted HTTP
// APIs — Groq's OpenAI-compatible chat endpoint and the HuggingFace
// inference router — with client-side rate limiting and retry on
// transient failures.
//
// The Factory selects a backend pair from configuration:
//
//	huggingface  HF embeddings + HF chat
//	hybrid       HF embeddings + Groq chat
//	groq         HF embeddings + Groq chat (Groq exposes no embeddings API)
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/nyayalabs/nyaya/internal/config"
	"github.com/nyayalabs/nyaya/internal/log"
)

// ErrUnknownProvider indicates a provider name the factory does not know.
var ErrUnknownProvider = errors.New("unknown provider")

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn sent to a ChatModel.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder converts text into embedding vectors.
type Embedder interface {
	// EmbedDocuments embeds a batch of chunk texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimension reports the width of produced vectors.
	Dimension() int
}

// ChatModel generates a completion for a conversation.
type ChatModel interface {
	// Generate returns the assistant reply for the given messages.
	Generate(ctx context.Context, messages []Message) (string, error)

	// Name identifies the backing model for logging and citations.
	Name() string
}

// Pair bundles the embedder and chat model selected for a provider.
type Pair struct {
	Embedder Embedder
	Chat     ChatModel
}

// Factory builds the provider pair for cfg.Provider.
// All providers embed through HuggingFace; generation differs.
func Factory(cfg *config.Config, logger log.Logger) (*Pair, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	embedder := NewHFEmbedder(HFConfig{
		APIKey: cfg.HFAPIKey,
		Model:  cfg.HFEmbeddingModel,
	}, logger.With("component", "hf-embedder"))

	switch cfg.Provider {
	case config.ProviderHuggingFace:
		chat := NewHFChat(HFConfig{
			APIKey:      cfg.HFAPIKey,
			Model:       cfg.HFChatModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger.With("component", "hf-chat"))
		return &Pair{Embedder: embedder, Chat: chat}, nil

	case config.ProviderGroq, config.ProviderHybrid:
		chat := NewGroqChat(GroqConfig{
			APIKey:      cfg.GroqAPIKey,
			Model:       cfg.GroqModel,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger.With("component", "groq-chat"))
		return &Pair{Embedder: embedder, Chat: chat}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
