// Package config provides application configuration with multi-source priority.
//
// Sources, highest to lowest:
//  1. Environment variables (GROQ_API_KEY, HUGGINGFACE_API_KEY, DATABASE_URL,
//     plus NYAYA_-prefixed overrides for every key)
//  2. .env file in the working directory
//  3. Config file (~/.nyaya/config.yaml or ./config.yaml)
//  4. Defaults
//
// Categories:
//   - Provider: which hosted LLM backend answers questions (groq,
//     huggingface, hybrid) and the models each uses
//   - Storage: PostgreSQL + pgvector connection
//   - Ingestion: documents directory, chunk size and overlap
//   - Retrieval: candidate width, top-k, similarity threshold
//
// Sensitive fields (API keys, database password) are masked in MarshalJSON.
// Validation runs at load time and fails fast with sentinel errors usable
// via errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Sentinel errors returned by Validate.
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates an unsupported provider name.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates an empty model identifier.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max output tokens is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidChunking indicates inconsistent chunk size/overlap.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates an out-of-range top-k.
	ErrInvalidTopK = errors.New("invalid top-k")

	// ErrInvalidThreshold indicates an out-of-range similarity threshold.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidPostgresHost indicates an empty PostgreSQL host.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates an out-of-range PostgreSQL port.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates an empty database name.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidDatabaseURL indicates an unparseable DATABASE_URL.
	ErrInvalidDatabaseURL = errors.New("invalid DATABASE_URL")
)

// Provider identifiers used in Config.Provider.
const (
	ProviderGroq        = "groq"
	ProviderHuggingFace = "huggingface"
	ProviderHybrid      = "hybrid"
)

// Default model identifiers for the hosted backends.
const (
	DefaultGroqModel        = "llama-3.1-8b-instant"
	DefaultHFEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultHFChatModel      = "HuggingFaceH4/zephyr-7b-beta"
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON. When adding new
// secrets, update MarshalJSON.
type Config struct {
	// Provider selection and hosted model identifiers
	Provider         string `mapstructure:"provider" json:"provider"` // "hybrid" (default), "groq", "huggingface"
	GroqAPIKey       string `mapstructure:"groq_api_key" json:"groq_api_key"` // SENSITIVE: masked in MarshalJSON
	GroqModel        string `mapstructure:"groq_model" json:"groq_model"`
	HFAPIKey         string `mapstructure:"hf_api_key" json:"hf_api_key"` // SENSITIVE: masked in MarshalJSON
	HFEmbeddingModel string `mapstructure:"hf_embedding_model" json:"hf_embedding_model"`
	HFChatModel      string `mapstructure:"hf_chat_model" json:"hf_chat_model"`

	// Generation parameters
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Ingestion
	DocsDir      string `mapstructure:"docs_dir" json:"docs_dir"`
	ChunkSize    int    `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap" json:"chunk_overlap"`

	// Retrieval
	TopK          int     `mapstructure:"top_k" json:"top_k"`
	CandidateK    int     `mapstructure:"candidate_k" json:"candidate_k"`
	MinSimilarity float64 `mapstructure:"min_similarity" json:"min_similarity"`

	// Conversation history window, in exchanges (user+assistant pairs)
	HistoryWindow int `mapstructure:"history_window" json:"history_window"`

	// Storage
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// HTTP API
	ServeAddr string `mapstructure:"serve_addr" json:"serve_addr"`
}

// Load loads configuration.
// Priority: environment variables > .env > config file > defaults.
func Load() (*Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".nyaya")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, wins over discrete postgres_* keys.
	if err := cfg.applyDatabaseURL(os.Getenv("DATABASE_URL")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderHybrid)
	v.SetDefault("groq_model", DefaultGroqModel)
	v.SetDefault("hf_embedding_model", DefaultHFEmbeddingModel)
	v.SetDefault("hf_chat_model", DefaultHFChatModel)

	v.SetDefault("temperature", 0.2)
	v.SetDefault("max_tokens", 1200)

	v.SetDefault("docs_dir", "./data/documents")
	v.SetDefault("chunk_size", 600)
	v.SetDefault("chunk_overlap", 100)

	v.SetDefault("top_k", 5)
	v.SetDefault("candidate_k", 20)
	v.SetDefault("min_similarity", 0.25)
	v.SetDefault("history_window", 3)

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "nyaya")
	v.SetDefault("postgres_password", "nyaya_dev_password")
	v.SetDefault("postgres_db_name", "nyaya")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("serve_addr", "127.0.0.1:3400")
}

func bindEnvVariables(v *viper.Viper) {
	v.SetEnvPrefix("NYAYA")
	v.AutomaticEnv()

	// The hosted providers' conventional variable names, unprefixed, the
	// way the services themselves document them.
	_ = v.BindEnv("groq_api_key", "GROQ_API_KEY", "NYAYA_GROQ_API_KEY")
	_ = v.BindEnv("hf_api_key", "HUGGINGFACE_API_KEY", "HF_TOKEN", "NYAYA_HF_API_KEY")
}

// applyDatabaseURL overrides the discrete postgres fields from a
// postgres:// connection URL. Empty rawURL is a no-op.
func (c *Config) applyDatabaseURL(rawURL string) error {
	if rawURL == "" {
		return nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: scheme must be postgres:// or postgresql://, got %q", ErrInvalidDatabaseURL, u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("%w: port %q: %w", ErrInvalidDatabaseURL, p, err)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if db := filepath.Base(u.Path); db != "." && db != "/" {
		c.PostgresDBName = db
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// ConnURL returns the PostgreSQL connection URL assembled from the
// discrete fields.
func (c *Config) ConnURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MarshalJSON masks sensitive fields so configs can be logged safely.
func (c *Config) MarshalJSON() ([]byte, error) {
	type alias Config // alias drops methods, preventing marshal recursion
	masked := alias(*c)
	if masked.GroqAPIKey != "" {
		masked.GroqAPIKey = "***"
	}
	if masked.HFAPIKey != "" {
		masked.HFAPIKey = "***"
	}
	if masked.PostgresPassword != "" {
		masked.PostgresPassword = "***"
	}
	return json.Marshal(masked)
}
