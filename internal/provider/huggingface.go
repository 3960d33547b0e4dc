package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
)

// HuggingFace API roots. Embeddings go through the hf-inference pipeline
// endpoint; chat goes through the OpenAI-compatible router.
const (
	DefaultHFEmbeddingBaseURL = "https://router.huggingface.co/hf-inference/models"
	DefaultHFChatBaseURL      = "https://router.huggingface.co/v1"
)

// DefaultEmbeddingDimension is the vector width of
// sentence-transformers/all-MiniLM-L6-v2, the default embedding model.
// The documents table schema is sized to match.
const DefaultEmbeddingDimension = 384

// embedBatchSize bounds how many chunk texts go into one pipeline call.
const embedBatchSize = 64

// HFConfig configures the HuggingFace clients.
type HFConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // empty = endpoint default
	Dimension   int    // empty = DefaultEmbeddingDimension
	Temperature float32
	MaxTokens   int
}

// HFEmbedder embeds text through the HuggingFace feature-extraction
// pipeline.
type HFEmbedder struct {
	client    *apiClient
	baseURL   string
	model     string
	dimension int
	logger    *slog.Logger
}

// NewHFEmbedder creates a HuggingFace embeddings client.
func NewHFEmbedder(cfg HFConfig, logger *slog.Logger) *HFEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHFEmbeddingBaseURL
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultEmbeddingDimension
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HFEmbedder{
		client:    newAPIClient(cfg.APIKey, logger),
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		logger:    logger,
	}
}

// Dimension implements Embedder.
func (e *HFEmbedder) Dimension() int { return e.dimension }

type featureExtractionRequest struct {
	Inputs  []string `json:"inputs"`
	Options struct {
		WaitForModel bool `json:"wait_for_model"`
	} `json:"options"`
}

func (e *HFEmbedder) endpoint() string {
	return e.baseURL + "/" + url.PathEscape(e.model) + "/pipeline/feature-extraction"
}

// EmbedDocuments implements Embedder. Texts are embedded in batches to
// keep request payloads bounded.
func (e *HFEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))

		req := featureExtractionRequest{Inputs: texts[start:end]}
		req.Options.WaitForModel = true

		var batch [][]float32
		if err := e.client.postJSON(ctx, e.endpoint(), req, &batch); err != nil {
			return nil, fmt.Errorf("hf feature extraction: %w", err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("hf returned %d embeddings for %d inputs", len(batch), end-start)
		}
		for i, vec := range batch {
			if len(vec) != e.dimension {
				return nil, fmt.Errorf("embedding %d has dimension %d, want %d", start+i, len(vec), e.dimension)
			}
		}
		vectors = append(vectors, batch...)
	}

	e.logger.Debug("embedded documents", "model", e.model, "count", len(vectors))
	return vectors, nil
}

// EmbedQuery implements Embedder.
func (e *HFEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return vectors[0], nil
}

// HFChat calls the HuggingFace router's OpenAI-compatible chat endpoint.
type HFChat struct {
	client      *apiClient
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// NewHFChat creates a HuggingFace chat client.
func NewHFChat(cfg HFConfig, logger *slog.Logger) *HFChat {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHFChatBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HFChat{
		client:      newAPIClient(cfg.APIKey, logger),
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Name implements ChatModel.
func (h *HFChat) Name() string { return "huggingface/" + h.model }

// Generate implements ChatModel.
func (h *HFChat) Generate(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	req := chatCompletionRequest{
		Model:       h.model,
		Messages:    messages,
		Temperature: h.temperature,
		MaxTokens:   h.maxTokens,
	}

	var resp chatCompletionResponse
	if err := h.client.postJSON(ctx, h.baseURL+"/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("hf chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("hf returned no choices")
	}

	h.logger.Debug("completion generated",
		"model", h.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	return resp.Choices[0].Message.Content, nil
}
