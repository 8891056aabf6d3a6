package config

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	cerr "cortex/internal/errors"
)

// Dir is the workspace state directory created under the repo root
const Dir = ".cortex"

// Config represents the complete cortex configuration
type Config struct {
	Version int `json:"version" toml:"version" mapstructure:"version"`

	Inference  InferenceConfig  `json:"inference" toml:"inference" mapstructure:"inference"`
	Embeddings EmbeddingsConfig `json:"embeddings" toml:"embeddings" mapstructure:"embeddings"`
	Pipeline   PipelineConfig   `json:"pipeline" toml:"pipeline" mapstructure:"pipeline"`
	Rerank     RerankConfig     `json:"rerank" toml:"rerank" mapstructure:"rerank"`
	Watch      WatchConfig      `json:"watch" toml:"watch" mapstructure:"watch"`
	Storage    StorageConfig    `json:"storage" toml:"storage" mapstructure:"storage"`
	Logging    LoggingConfig    `json:"logging" toml:"logging" mapstructure:"logging"`
}

// InferenceConfig selects and parameterizes the summary provider
type InferenceConfig struct {
	Provider  string `json:"provider" toml:"provider" mapstructure:"provider"`
	Model     string `json:"model" toml:"model" mapstructure:"model"`
	Endpoint  string `json:"endpoint" toml:"endpoint" mapstructure:"endpoint"`
	APIKeyEnv string `json:"apiKeyEnv" toml:"api_key_env" mapstructure:"api_key_env"`
}

// EmbeddingsConfig controls the semantic index. Disabled by default.
type EmbeddingsConfig struct {
	Enabled  bool   `json:"enabled" toml:"enabled" mapstructure:"enabled"`
	Provider string `json:"provider" toml:"provider" mapstructure:"provider"`
	Model    string `json:"model" toml:"model" mapstructure:"model"`
	Endpoint string `json:"endpoint" toml:"endpoint" mapstructure:"endpoint"`
	Dims     int    `json:"dims" toml:"dims" mapstructure:"dims"`
}

// PipelineConfig bounds the enrichment dispatcher
type PipelineConfig struct {
	Concurrency       int   `json:"concurrency" toml:"concurrency" mapstructure:"concurrency"`
	Retries           int   `json:"retries" toml:"retries" mapstructure:"retries"`
	AttemptTimeoutMs  int   `json:"attemptTimeoutMs" toml:"attempt_timeout_ms" mapstructure:"attempt_timeout_ms"`
	BackoffBaseMs     int   `json:"backoffBaseMs" toml:"backoff_base_ms" mapstructure:"backoff_base_ms"`
	BackoffCapMs      int   `json:"backoffCapMs" toml:"backoff_cap_ms" mapstructure:"backoff_cap_ms"`
	RequestsPerMinute int   `json:"requestsPerMinute" toml:"requests_per_minute" mapstructure:"requests_per_minute"`
	DailyTokenBudget  int64 `json:"dailyTokenBudget" toml:"daily_token_budget" mapstructure:"daily_token_budget"`
	MaxSymbolChars    int   `json:"maxSymbolChars" toml:"max_symbol_chars" mapstructure:"max_symbol_chars"`
	RerankEnabled     bool  `json:"rerankEnabled" toml:"rerank_enabled" mapstructure:"rerank_enabled"`
	RerankWindow      int   `json:"rerankWindow" toml:"rerank_window" mapstructure:"rerank_window"`
}

// WatchConfig controls change detection
type WatchConfig struct {
	DebounceMs     int      `json:"debounceMs" toml:"debounce_ms" mapstructure:"debounce_ms"`
	MaxFileSize    int64    `json:"maxFileSize" toml:"max_file_size" mapstructure:"max_file_size"`
	IgnorePatterns []string `json:"ignorePatterns" toml:"ignore_patterns" mapstructure:"ignore_patterns"`
}

// RerankConfig selects the optional cross-encoder used on hybrid results
type RerankConfig struct {
	Provider string `json:"provider" toml:"provider" mapstructure:"provider"`
	Model    string `json:"model" toml:"model" mapstructure:"model"`
	Endpoint string `json:"endpoint" toml:"endpoint" mapstructure:"endpoint"`
}

// StorageConfig controls durable storage behavior
type StorageConfig struct {
	MirrorSirFiles bool `json:"mirrorSirFiles" toml:"mirror_sir_files" mapstructure:"mirror_sir_files"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" toml:"format" mapstructure:"format"`
	Level  string `json:"level" toml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: 1,
		Inference: InferenceConfig{
			Provider:  "auto",
			Model:     "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Embeddings: EmbeddingsConfig{
			Enabled:  false,
			Provider: "auto",
			Model:    "nomic-embed-text",
			Dims:     64,
		},
		Pipeline: PipelineConfig{
			Concurrency:       2,
			Retries:           2,
			AttemptTimeoutMs:  30000,
			BackoffBaseMs:     200,
			BackoffCapMs:      2000,
			RequestsPerMinute: 60,
			DailyTokenBudget:  200000,
			MaxSymbolChars:    16000,
			RerankEnabled:     false,
			RerankWindow:      0,
		},
		Rerank: RerankConfig{
			Provider: "auto",
		},
		Watch: WatchConfig{
			DebounceMs:     500,
			MaxFileSize:    1 << 20,
			IgnorePatterns: []string{".git/**", Dir + "/**", "node_modules/**", "vendor/**", "target/**"},
		},
		Storage: StorageConfig{
			MirrorSirFiles: true,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from <root>/.cortex/config.toml, falling
// back to defaults when the file doesn't exist
func LoadConfig(root string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(filepath.Join(root, Dir))

	cfg := DefaultConfig()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, cerr.New(cerr.Config, "failed to read config", err)
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, cerr.New(cerr.Config, "failed to parse config", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to <root>/.cortex/config.toml
func (c *Config) Save(root string) error {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return cerr.New(cerr.Storage, "failed to create state directory", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return cerr.New(cerr.Config, "failed to encode config", err)
	}
	return os.WriteFile(filepath.Join(dir, "config.toml"), data, 0o644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Inference.Provider {
	case "auto", "mock", "gemini", "qwen3-local":
	default:
		return cerr.Newf(cerr.Config, "unknown inference provider %q (expected auto, mock, gemini or qwen3-local)", c.Inference.Provider)
	}
	if c.Pipeline.Concurrency < 1 {
		return cerr.Newf(cerr.Config, "pipeline concurrency must be >= 1, got %d", c.Pipeline.Concurrency)
	}
	if c.Pipeline.Retries < 0 {
		return cerr.Newf(cerr.Config, "pipeline retries must be >= 0, got %d", c.Pipeline.Retries)
	}
	if c.Embeddings.Enabled && c.Embeddings.Dims < 1 {
		return cerr.Newf(cerr.Config, "embedding dims must be >= 1, got %d", c.Embeddings.Dims)
	}
	switch c.Rerank.Provider {
	case "", "auto", "mock", "local":
	default:
		return cerr.Newf(cerr.Config, "unknown rerank provider %q (expected auto, mock or local)", c.Rerank.Provider)
	}
	return nil
}

// APIKey resolves the configured API key env var, trimmed. Empty means the
// real provider is unavailable and auto selection falls back to mock.
func (c *Config) APIKey() string {
	if c.Inference.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.Inference.APIKeyEnv))
}

func (c *Config) normalize() {
	c.Inference.Provider = strings.TrimSpace(strings.ToLower(c.Inference.Provider))
	c.Inference.Model = strings.TrimSpace(c.Inference.Model)
	c.Inference.Endpoint = strings.TrimSpace(c.Inference.Endpoint)
	c.Inference.APIKeyEnv = strings.TrimSpace(c.Inference.APIKeyEnv)
	c.Embeddings.Provider = strings.TrimSpace(strings.ToLower(c.Embeddings.Provider))
	c.Embeddings.Endpoint = strings.TrimSpace(c.Embeddings.Endpoint)
	c.Rerank.Provider = strings.TrimSpace(strings.ToLower(c.Rerank.Provider))
	c.Rerank.Endpoint = strings.TrimSpace(c.Rerank.Endpoint)
}
