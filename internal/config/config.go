// Package config loads curator configuration from an optional YAML file and
// CURATOR_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable curator reads.
const EnvPrefix = "CURATOR_"

// Config holds all configuration for the curator service.
type Config struct {
	// Server
	Port     int    `koanf:"port"`
	LogLevel string `koanf:"log_level"`

	// Database
	DatabaseURL string `koanf:"database_url"`

	// Encryption of tenant credentials
	EncryptionKeyPath string `koanf:"encryption_key_path"`
	EncryptionKey     string `koanf:"encryption_key"`

	// NATS / Hermes
	NatsURL string `koanf:"nats_url"`

	// Job registry
	RedisURL    string        `koanf:"redis_url"`
	JobRegistry string        `koanf:"job_registry"` // "memory" or "redis"
	JobLeaseTTL time.Duration `koanf:"job_lease_ttl"`

	// Embeddings
	EmbeddingBackend    string  `koanf:"embedding_backend"` // "simple", "openai", or "local"
	OpenAIAPIKey        string  `koanf:"openai_api_key"`
	OpenAIModel         string  `koanf:"openai_embedding_model"`
	OpenAIVisionModel   string  `koanf:"openai_vision_model"`
	EmbeddingSidecarURL string  `koanf:"embedding_sidecar_url"`
	EmbedRatePerSecond  float64 `koanf:"embed_rate_per_second"`

	// Vector index
	VectorBackend string `koanf:"vector_backend"` // "pgvector" or "qdrant"

	// Pipeline
	ImportPageSize      int           `koanf:"import_page_size"`
	IndexBatchSize      int           `koanf:"index_batch_size"`
	ImportFailurePolicy string        `koanf:"import_failure_policy"` // "isolate" or "abort"
	ErrorRetention      time.Duration `koanf:"error_retention"`
	CallTimeout         time.Duration `koanf:"call_timeout"`
	AutoSyncInterval    time.Duration `koanf:"auto_sync_interval"`

	// Rate limiting of job-starting endpoints
	SyncRateLimit int           `koanf:"sync_rate_limit"` // requests per window
	RateWindow    time.Duration `koanf:"rate_window"`
}

// Defaults returns the configuration used for any key left unset.
func Defaults() Config {
	return Config{
		Port:                8600,
		LogLevel:            "info",
		EncryptionKeyPath:   "/run/secrets/curator_encryption_key",
		NatsURL:             "nats://localhost:4222",
		JobRegistry:         "memory",
		JobLeaseTTL:         10 * time.Minute,
		EmbeddingBackend:    "simple",
		OpenAIModel:         "text-embedding-3-small",
		OpenAIVisionModel:   "gpt-4o-mini",
		EmbedRatePerSecond:  5,
		VectorBackend:       "pgvector",
		ImportPageSize:      250,
		IndexBatchSize:      10,
		ImportFailurePolicy: "isolate",
		ErrorRetention:      10 * time.Second,
		CallTimeout:         60 * time.Second,
		SyncRateLimit:       10,
		RateWindow:          time.Minute,
	}
}

// Load reads configuration. Precedence, highest first: CURATOR_* environment
// variables, the YAML file at path (skipped when path is empty), defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	// CURATOR_DATABASE_URL -> database_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	c := Defaults()
	if err := k.Unmarshal("", &c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if c.OpenAIAPIKey == "" {
		c.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks required keys and enumerations.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%sDATABASE_URL is required", EnvPrefix)
	}
	switch c.JobRegistry {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("job_registry redis requires redis_url")
		}
	default:
		return fmt.Errorf("unknown job_registry %q", c.JobRegistry)
	}
	switch c.EmbeddingBackend {
	case "simple", "local":
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("embedding_backend openai requires openai_api_key")
		}
	default:
		return fmt.Errorf("unknown embedding_backend %q", c.EmbeddingBackend)
	}
	if c.VectorBackend != "pgvector" && c.VectorBackend != "qdrant" {
		return fmt.Errorf("unknown vector_backend %q", c.VectorBackend)
	}
	if c.ImportFailurePolicy != "isolate" && c.ImportFailurePolicy != "abort" {
		return fmt.Errorf("unknown import_failure_policy %q", c.ImportFailurePolicy)
	}
	if c.ImportPageSize < 1 || c.ImportPageSize > 250 {
		return fmt.Errorf("import_page_size must be between 1 and 250, got %d", c.ImportPageSize)
	}
	if c.IndexBatchSize < 1 {
		return fmt.Errorf("index_batch_size must be positive, got %d", c.IndexBatchSize)
	}
	return nil
}
