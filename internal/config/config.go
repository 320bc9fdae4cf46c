package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Rerank     RerankConfig     `yaml:"rerank,omitempty"`
	LLM        LLMConfig        `yaml:"llm"`
	Ingest     IngestConfig     `yaml:"ingest,omitempty"`
	Retrieval  RetrievalConfig  `yaml:"retrieval,omitempty"`
	Generation GenerationConfig `yaml:"generation,omitempty"`
}

// QdrantConfig holds vector index configuration
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key,omitempty"`
	Collection string `yaml:"collection"`
	// TimeoutSeconds bounds every index request
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
	// LocalPath selects the SQLite-backed store instead of a server
	LocalPath string `yaml:"local_path,omitempty"`
}

// EmbeddingConfig holds embedding service configuration
type EmbeddingConfig struct {
	// Provider: "local" (OpenAI-compatible server) | "inference" (remote inference API)
	Provider string `yaml:"provider"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model"`

	Dimensions int `yaml:"dimensions"`
	BatchSize  int `yaml:"batch_size"`

	// Remote inference API used by the reduced pipeline
	InferenceEndpoint string `yaml:"inference_endpoint,omitempty"`
	InferenceAPIKey   string `yaml:"inference_api_key,omitempty"`
}

// RerankConfig holds cross-encoder reranking configuration
type RerankConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// LLMConfig holds completion endpoint configuration
type LLMConfig struct {
	Endpoint       string  `yaml:"endpoint"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature,omitempty"`
	MaxTokens      int     `yaml:"max_tokens,omitempty"`
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"`
}

// IngestConfig holds offline ingestion configuration
type IngestConfig struct {
	CacheFile    string `yaml:"cache_file,omitempty"`
	UploadBatch  int    `yaml:"upload_batch,omitempty"`
	KeywordIndex string `yaml:"keyword_index,omitempty"` // bleve index dir, empty disables
}

// RetrievalConfig holds online retrieval configuration
type RetrievalConfig struct {
	TopK     int `yaml:"top_k,omitempty"`
	PoolSize int `yaml:"pool_size,omitempty"`
}

// GenerationConfig holds diagnosis generation configuration
type GenerationConfig struct {
	TopN int `yaml:"top_n,omitempty"`
}

// Load loads configuration from the default config file
// Default location: ~/.diagdex/config/diagdex.yaml
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(path)
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".diagdex", "config", "diagdex.yaml"), nil
}

// LoadFromFile loads configuration from a specific file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			defaultPath, _ := DefaultPath()
			return nil, &ConfigNotFoundError{
				RequestedPath: path,
				DefaultPath:   defaultPath,
			}
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
	DefaultPath   string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nDefault location: %s\n\nYou can:\n"+
		"  1. Create the config file at the default location\n"+
		"  2. Specify a custom path with -config flag",
		e.RequestedPath, e.DefaultPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	_, ok := err.(*ConfigNotFoundError)
	return ok
}

// expandPath expands ~ and $HOME to the user's home directory
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}

// expandSecret resolves "$VAR" values against the environment so API keys can
// stay out of the config file.
func expandSecret(value string) string {
	if strings.HasPrefix(value, "$") {
		return os.Getenv(strings.TrimPrefix(value, "$"))
	}
	return value
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	if c.Qdrant.URL == "" {
		c.Qdrant.URL = "http://localhost:6333"
	}
	if c.Qdrant.Collection == "" {
		c.Qdrant.Collection = "medical_protocols_v5"
	}
	if c.Qdrant.TimeoutSeconds == 0 {
		c.Qdrant.TimeoutSeconds = 20
	}
	c.Qdrant.LocalPath = expandPath(c.Qdrant.LocalPath)
	c.Qdrant.APIKey = expandSecret(c.Qdrant.APIKey)

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "local"
	}
	if c.Embedding.Endpoint == "" {
		c.Embedding.Endpoint = "http://localhost:8080"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "BAAI/bge-m3"
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 16
	}
	c.Embedding.APIKey = expandSecret(c.Embedding.APIKey)
	c.Embedding.InferenceAPIKey = expandSecret(c.Embedding.InferenceAPIKey)

	if c.Rerank.Endpoint == "" {
		c.Rerank.Endpoint = "http://localhost:8081"
	}
	c.Rerank.APIKey = expandSecret(c.Rerank.APIKey)

	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = "https://hub.qazcode.ai/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "oss-120b"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.1
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2048
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 120
	}
	c.LLM.APIKey = expandSecret(c.LLM.APIKey)

	if c.Ingest.CacheFile == "" {
		c.Ingest.CacheFile = "points_cache.jsonl"
	}
	c.Ingest.CacheFile = expandPath(c.Ingest.CacheFile)
	if c.Ingest.UploadBatch == 0 {
		c.Ingest.UploadBatch = 256
	}
	c.Ingest.KeywordIndex = expandPath(c.Ingest.KeywordIndex)

	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.PoolSize == 0 {
		c.Retrieval.PoolSize = 30
	}

	if c.Generation.TopN == 0 {
		c.Generation.TopN = 3
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "local", "inference":
	default:
		return fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got: %d", c.Embedding.Dimensions)
	}

	if c.Embedding.BatchSize <= 0 || c.Embedding.BatchSize > 100 {
		return fmt.Errorf("batch_size must be between 1 and 100, got: %d", c.Embedding.BatchSize)
	}

	if c.Retrieval.PoolSize < c.Retrieval.TopK {
		return fmt.Errorf("retrieval pool_size (%d) must be at least top_k (%d)",
			c.Retrieval.PoolSize, c.Retrieval.TopK)
	}

	return nil
}

const defaultConfigTemplate = `# diagdex configuration
#
# Copy and edit this file for your environment.
# Default location: $HOME/.diagdex/config/diagdex.yaml
# Values of the form $VAR are resolved from the environment.

qdrant:
  url: http://localhost:6333
  # api_key: $QDRANT_API_KEY
  collection: medical_protocols_v5
  # local_path: ~/.diagdex/data   # use embedded SQLite store instead of a server

embedding:
  # Provider: "local" (OpenAI-compatible embedding server) or "inference" (remote API)
  provider: local
  endpoint: http://localhost:8080
  model: BAAI/bge-m3
  dimensions: 1024
  batch_size: 16
  # inference_endpoint: https://api-inference.huggingface.co/models/BAAI/bge-m3
  # inference_api_key: $HF_API_KEY

rerank:
  enabled: true
  endpoint: http://localhost:8081

llm:
  endpoint: https://hub.qazcode.ai/v1
  api_key: $LLM_API_KEY
  model: oss-120b
  temperature: 0.1
  max_tokens: 2048

retrieval:
  top_k: 5
  pool_size: 30

generation:
  top_n: 3
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
