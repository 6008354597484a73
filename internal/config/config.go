package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultCollection     = "documents"
	DefaultEmbeddingDim   = 1536
)

// Config holds every tunable of the service, sourced from the environment.
type Config struct {
	ListenAddr string
	Debug      bool
	LogLevel   string

	DatabaseURL string
	RedisURL    string

	QdrantURL        string
	QdrantCollection string

	EmbeddingModel string
	EmbeddingDim   int

	LLMModel        string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	GeminiAPIKey    string

	RetryMaxAttempts int
	RetryMinBackoff  time.Duration
	RetryMaxBackoff  time.Duration

	MaxUploadSize int64
}

// Load reads the configuration from the environment. A .env file in the
// working directory is merged in first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:       getEnv("LISTEN_ADDR", ":8080"),
		Debug:            getEnvBool("DEBUG", false),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         getEnv("REDIS_URL", "redis://localhost:6379/0"),
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6334"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", DefaultCollection),
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		EmbeddingDim:     getEnvInt("EMBEDDING_DIM", DefaultEmbeddingDim),
		LLMModel:         getEnv("LLM_MODEL", DefaultLLMModel),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:     firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY"),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryMinBackoff:  getEnvSeconds("RETRY_MIN_BACKOFF_SECONDS", 500*time.Millisecond),
		RetryMaxBackoff:  getEnvSeconds("RETRY_MAX_BACKOFF_SECONDS", 8*time.Second),
		MaxUploadSize:    int64(getEnvInt("MAX_UPLOAD_SIZE", 10*1024*1024)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants between settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("EMBEDDING_DIM must be positive, got %d", c.EmbeddingDim)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryMinBackoff <= 0 || c.RetryMaxBackoff < c.RetryMinBackoff {
		return fmt.Errorf("retry backoff window [%s, %s] is invalid", c.RetryMinBackoff, c.RetryMaxBackoff)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}
