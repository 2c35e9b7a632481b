// Package config provides configuration management for Mnemo.
// Settings load from an optional YAML file, then environment variables
// with the MNEMO_ prefix override file values, with sensible defaults
// for everything.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration settings for the Mnemo application.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Observer  ObserverConfig  `yaml:"observer"`
}

// StorageConfig contains fact store configuration.
type StorageConfig struct {
	// Engine selects the backend: sqlite (default), postgres, chromem.
	Engine string `yaml:"engine"`

	// Path is the SQLite database path (default: ./data/mnemo.db).
	Path string `yaml:"path"`

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// LLMConfig contains model endpoint configuration.
type LLMConfig struct {
	Provider       string `yaml:"provider"`        // ollama (default) or openai
	OllamaURL      string `yaml:"ollama_url"`      // default: http://localhost:11434
	Model          string `yaml:"model"`           // default: qwen3:1.7b
	EmbeddingModel string `yaml:"embedding_model"` // default: nomic-embed-text
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"` // default: gpt-4o-mini
	RerankerURL    string `yaml:"reranker_url"` // empty disables reranking
}

// RetrievalConfig contains context assembly tunables.
type RetrievalConfig struct {
	VectorK             int `yaml:"vector_k"`              // default: 15
	GraphK              int `yaml:"graph_k"`               // default: 10
	RerankK             int `yaml:"rerank_k"`              // default: 5
	MaxContextTokens    int `yaml:"max_context_tokens"`    // default: 3000
	SlidingWindowTokens int `yaml:"sliding_window_tokens"` // default: 2000
	WindowTurns         int `yaml:"window_turns"`          // default: 10

	// Per-tier decay half-lives in days.
	HalfLifeHighDays   int `yaml:"half_life_high_days"`   // default: 180
	HalfLifeMediumDays int `yaml:"half_life_medium_days"` // default: 60
	HalfLifeLowDays    int `yaml:"half_life_low_days"`    // default: 14
}

// ObserverConfig contains observer pipeline tunables.
type ObserverConfig struct {
	Gate           int `yaml:"gate"`             // default: 2
	RetryAttempts  int `yaml:"retry_attempts"`   // default: 3
	RetryBackoffMS int `yaml:"retry_backoff_ms"` // default: 2000
	ShutdownWaitS  int `yaml:"shutdown_wait_s"`  // default: 30
}

// Load builds the configuration: file values (when path is non-empty)
// overridden by MNEMO_-prefixed environment variables, over defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine: "sqlite",
			Path:   "./data/mnemo.db",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			OllamaURL:      "http://localhost:11434",
			Model:          "qwen3:1.7b",
			EmbeddingModel: "nomic-embed-text",
			OpenAIModel:    "gpt-4o-mini",
		},
		Retrieval: RetrievalConfig{
			VectorK:             15,
			GraphK:              10,
			RerankK:             5,
			MaxContextTokens:    3000,
			SlidingWindowTokens: 2000,
			WindowTurns:         10,
			HalfLifeHighDays:    180,
			HalfLifeMediumDays:  60,
			HalfLifeLowDays:     14,
		},
		Observer: ObserverConfig{
			Gate:           2,
			RetryAttempts:  3,
			RetryBackoffMS: 2000,
			ShutdownWaitS:  30,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Storage.Engine = getEnv("MNEMO_STORAGE_ENGINE", cfg.Storage.Engine)
	cfg.Storage.Path = getEnv("MNEMO_STORAGE_PATH", cfg.Storage.Path)
	cfg.Storage.PostgresDSN = getEnv("MNEMO_POSTGRES_DSN", cfg.Storage.PostgresDSN)

	cfg.LLM.Provider = getEnv("MNEMO_LLM_PROVIDER", cfg.LLM.Provider)
	cfg.LLM.OllamaURL = getEnv("MNEMO_OLLAMA_URL", cfg.LLM.OllamaURL)
	cfg.LLM.Model = getEnv("MNEMO_MODEL", cfg.LLM.Model)
	cfg.LLM.EmbeddingModel = getEnv("MNEMO_EMBEDDING_MODEL", cfg.LLM.EmbeddingModel)
	cfg.LLM.OpenAIAPIKey = getEnv("MNEMO_OPENAI_API_KEY", cfg.LLM.OpenAIAPIKey)
	cfg.LLM.OpenAIModel = getEnv("MNEMO_OPENAI_MODEL", cfg.LLM.OpenAIModel)
	cfg.LLM.RerankerURL = getEnv("MNEMO_RERANKER_URL", cfg.LLM.RerankerURL)

	cfg.Retrieval.VectorK = getEnvInt("MNEMO_VECTOR_K", cfg.Retrieval.VectorK)
	cfg.Retrieval.GraphK = getEnvInt("MNEMO_GRAPH_K", cfg.Retrieval.GraphK)
	cfg.Retrieval.RerankK = getEnvInt("MNEMO_RERANK_K", cfg.Retrieval.RerankK)
	cfg.Retrieval.MaxContextTokens = getEnvInt("MNEMO_MAX_CONTEXT_TOKENS", cfg.Retrieval.MaxContextTokens)
	cfg.Retrieval.SlidingWindowTokens = getEnvInt("MNEMO_SLIDING_WINDOW_TOKENS", cfg.Retrieval.SlidingWindowTokens)
	cfg.Retrieval.WindowTurns = getEnvInt("MNEMO_WINDOW_TURNS", cfg.Retrieval.WindowTurns)
	cfg.Retrieval.HalfLifeHighDays = getEnvInt("MNEMO_HALF_LIFE_HIGH_DAYS", cfg.Retrieval.HalfLifeHighDays)
	cfg.Retrieval.HalfLifeMediumDays = getEnvInt("MNEMO_HALF_LIFE_MEDIUM_DAYS", cfg.Retrieval.HalfLifeMediumDays)
	cfg.Retrieval.HalfLifeLowDays = getEnvInt("MNEMO_HALF_LIFE_LOW_DAYS", cfg.Retrieval.HalfLifeLowDays)

	cfg.Observer.Gate = getEnvInt("MNEMO_OBSERVER_GATE", cfg.Observer.Gate)
	cfg.Observer.RetryAttempts = getEnvInt("MNEMO_RETRY_ATTEMPTS", cfg.Observer.RetryAttempts)
	cfg.Observer.RetryBackoffMS = getEnvInt("MNEMO_RETRY_BACKOFF_MS", cfg.Observer.RetryBackoffMS)
	cfg.Observer.ShutdownWaitS = getEnvInt("MNEMO_SHUTDOWN_WAIT_S", cfg.Observer.ShutdownWaitS)
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a
// default value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
