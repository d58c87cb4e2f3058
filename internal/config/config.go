// Package config provides layered configuration for specqa.
// Configuration is loaded with a layered precedence: defaults → .env file →
// YAML file → env vars. Environment variables always win, so existing
// workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. SPECQA_CONFIG environment variable
//  3. ~/.specqa/config.yaml
//  4. ./specqa.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Retrieval configures chunking, ranking and the embedding pool.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Qdrant configures the Qdrant embedding cache connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures query history persistence.
	History HistoryConfig `yaml:"history"`

	// Documents configures where documents are loaded from.
	Documents DocumentsConfig `yaml:"documents"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL overrides the API endpoint for OpenAI-compatible servers.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string `yaml:"region"`
	// ModelID is the Bedrock model identifier.
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure, gemini).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// RetrievalConfig holds retrieval and synthesis knobs.
type RetrievalConfig struct {
	// ChunkSize is the target chunk size in characters.
	ChunkSize int `yaml:"chunk_size"`
	// TopK is the number of chunks used as evidence.
	TopK int `yaml:"top_k"`
	// Concurrency bounds in-flight embedding calls.
	Concurrency int `yaml:"embed_concurrency"`
	// BatchSize is the number of chunks per embedding call.
	BatchSize int `yaml:"embed_batch_size"`
	// RequestsPerSecond paces embedding calls; zero means unlimited.
	RequestsPerSecond float64 `yaml:"embed_rps"`
	// FailurePolicy is fail-fast or skip-document.
	FailurePolicy string `yaml:"failure_policy"`
	// EmbedTimeout bounds each embedding call, as a Go duration string.
	EmbedTimeout string `yaml:"embed_timeout"`
	// GenerateTimeout bounds each chat model call, as a Go duration string.
	GenerateTimeout string `yaml:"generate_timeout"`
	// Cache selects the embedding cache: none, memory, qdrant.
	Cache string `yaml:"cache"`
	// Temperature is the answer sampling temperature.
	Temperature float32 `yaml:"temperature"`
	// MaxContextTokens is the estimated prompt budget.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// QdrantConfig holds Qdrant connection settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimit is the sustained per-IP request rate.
	RateLimit float64 `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds query history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// DocumentsConfig holds document source settings.
type DocumentsConfig struct {
	// Dir is the directory documents are loaded from.
	Dir string `yaml:"dir"`
	// Limit caps the number of documents loaded per query.
	Limit int `yaml:"limit"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"SPECQA_CHUNK_SIZE", func(c *Config) string { return intStr(c.Retrieval.ChunkSize) }},
	{"SPECQA_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"SPECQA_EMBED_CONCURRENCY", func(c *Config) string { return intStr(c.Retrieval.Concurrency) }},
	{"SPECQA_EMBED_BATCH_SIZE", func(c *Config) string { return intStr(c.Retrieval.BatchSize) }},
	{"SPECQA_EMBED_RPS", func(c *Config) string { return float64Str(c.Retrieval.RequestsPerSecond) }},
	{"SPECQA_FAILURE_POLICY", func(c *Config) string { return c.Retrieval.FailurePolicy }},
	{"SPECQA_EMBED_TIMEOUT", func(c *Config) string { return c.Retrieval.EmbedTimeout }},
	{"SPECQA_GENERATE_TIMEOUT", func(c *Config) string { return c.Retrieval.GenerateTimeout }},
	{"SPECQA_CACHE", func(c *Config) string { return c.Retrieval.Cache }},
	{"SPECQA_TEMPERATURE", func(c *Config) string { return float64Str(float64(c.Retrieval.Temperature)) }},
	{"SPECQA_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"SPECQA_HOST", func(c *Config) string { return c.Server.Host }},
	{"SPECQA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"SPECQA_RATE_LIMIT", func(c *Config) string { return float64Str(c.Server.RateLimit) }},
	{"SPECQA_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"SPECQA_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"SPECQA_DOCS_DIR", func(c *Config) string { return c.Documents.Dir }},
	{"SPECQA_DOCS_LIMIT", func(c *Config) string { return intStr(c.Documents.Limit) }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// DotEnvPath is the .env file read by Load, relative to the working directory.
var DotEnvPath = ".env"

// Load reads a YAML config file and an optional .env file and applies their
// non-empty values as environment variables. Existing env vars are never
// overwritten (env always wins) and YAML values take precedence over .env.
// Returns the YAML path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)

	applied := 0
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("config: failed to read %s: %w", path, err)
		}

		var cfg Config
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
		}

		for _, m := range envMapping {
			yamlVal := m.value(&cfg)
			if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
				continue
			}
			if os.Getenv(m.envKey) != "" {
				continue // env var already set, do not override
			}
			os.Setenv(m.envKey, yamlVal)
			applied++
		}

		log.Info("config: loaded YAML config",
			slog.String("path", path),
			slog.Int("keys_applied", applied),
		)
	}

	if err := loadDotEnv(DotEnvPath, log); err != nil {
		return "", err
	}

	return path, nil
}

// loadDotEnv applies the entries of a .env file that are not already set. A
// missing file is not an error.
func loadDotEnv(path string, log *slog.Logger) error {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for k, v := range values {
		if os.Getenv(k) != "" || v == "" {
			continue
		}
		os.Setenv(k, v)
		applied++
	}
	log.Debug("config: loaded .env file", slog.String("path", path), slog.Int("keys_applied", applied))
	return nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("SPECQA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".specqa", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("specqa.yaml"); err == nil {
		return "specqa.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float64Str converts a float to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
