package config

import (
	"fmt"
	"log/slog"
	"slices"
)

// Validate checks configuration values.
// Returns sentinel errors checkable with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// Provider selection
	validProviders := []string{ProviderGroq, ProviderHuggingFace, ProviderHybrid}
	if !slices.Contains(validProviders, c.Provider) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidProvider, c.Provider, validProviders)
	}

	// API keys: every provider needs the HuggingFace key for embeddings;
	// groq and hybrid additionally need the Groq key for generation.
	if c.HFAPIKey == "" {
		return fmt.Errorf("%w: HUGGINGFACE_API_KEY is required (embeddings run on the HF inference API)\n"+
			"Get a token at: https://huggingface.co/settings/tokens", ErrMissingAPIKey)
	}
	if (c.Provider == ProviderGroq || c.Provider == ProviderHybrid) && c.GroqAPIKey == "" {
		return fmt.Errorf("%w: GROQ_API_KEY is required for provider %q\n"+
			"Get a key at: https://console.groq.com/keys", ErrMissingAPIKey, c.Provider)
	}

	// Model identifiers
	if c.HFEmbeddingModel == "" {
		return fmt.Errorf("%w: hf_embedding_model cannot be empty", ErrInvalidModelName)
	}
	if c.Provider == ProviderHuggingFace && c.HFChatModel == "" {
		return fmt.Errorf("%w: hf_chat_model cannot be empty", ErrInvalidModelName)
	}
	if (c.Provider == ProviderGroq || c.Provider == ProviderHybrid) && c.GroqModel == "" {
		return fmt.Errorf("%w: groq_model cannot be empty", ErrInvalidModelName)
	}

	// Generation parameters
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 32768 {
		return fmt.Errorf("%w: must be between 1 and 32768, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// Chunking: overlap must leave forward progress.
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got overlap=%d size=%d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	// Retrieval
	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.CandidateK < c.TopK {
		return fmt.Errorf("%w: candidate_k (%d) must be >= top_k (%d)", ErrInvalidTopK, c.CandidateK, c.TopK)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: min_similarity must be in [0, 1], got %v", ErrInvalidThreshold, c.MinSimilarity)
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("%w: history_window must be >= 0, got %d", ErrInvalidTopK, c.HistoryWindow)
	}

	// PostgreSQL
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "nyaya_dev_password" {
		slog.Warn("using default development password for PostgreSQL",
			"hint", "change postgres_password for production deployments")
	}

	return nil
}
