package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// DefaultGroqBaseURL is Groq's OpenAI-compatible API root.
const DefaultGroqBaseURL = "https://api.groq.com/openai/v1"

// GroqConfig configures the Groq chat client.
type GroqConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // empty = DefaultGroqBaseURL
	Temperature float32
	MaxTokens   int
}

// GroqChat calls Groq's chat completions endpoint.
type GroqChat struct {
	client      *apiClient
	baseURL     string
	model       string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

// NewGroqChat creates a Groq chat client.
func NewGroqChat(cfg GroqConfig, logger *slog.Logger) *GroqChat {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGroqBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GroqChat{
		client:      newAPIClient(cfg.APIKey, logger),
		baseURL:     cfg.BaseURL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      logger,
	}
}

// Name implements ChatModel.
func (g *GroqChat) Name() string { return "groq/" + g.model }

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Generate implements ChatModel.
func (g *GroqChat) Generate(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages to send")
	}

	req := chatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	var resp chatCompletionResponse
	if err := g.client.postJSON(ctx, g.baseURL+"/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("groq chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}

	g.logger.Debug("completion generated",
		"model", g.model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"finish_reason", resp.Choices[0].FinishReason)

	return resp.Choices[0].Message.Content, nil
}
