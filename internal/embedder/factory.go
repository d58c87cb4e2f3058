package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/54b3r/specqa-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Backend names accepted by EMBEDDING_PROVIDER.
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendAzure  = "azure"
	BackendGemini = "gemini"
)

// Config is the resolved embedding backend configuration.
type Config struct {
	// Backend is one of ollama, openai, azure, gemini.
	Backend string
	// Model is the embedding model (or Azure deployment) name.
	Model string
	// Endpoint is the API base URL. Ignored for gemini.
	Endpoint string
	// APIKey authenticates against hosted backends.
	APIKey string
	// Dimensions requests a specific vector length (0 = model default).
	Dimensions int
	// APIVersion is the Azure OpenAI API version (azure only).
	APIVersion string
}

// DefaultDimensions returns the default embedding vector size for backend.
// Callers that pre-create a vector collection use this rather than hardcoding
// a value. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case BackendOllama:
		return defaultOllamaDimensions
	case BackendGemini:
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// ConfigFromEnv resolves an embedding Config using cascading defaults that
// inherit from the chat provider configuration when embedding-specific
// overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, inheriting MODEL_PROVIDER (default: ollama)
//  2. Per-backend credentials are inherited from the chat provider's env vars
//  3. EMBEDDING_MODEL overrides the default model for the resolved backend
//  4. EMBEDDING_API_KEY overrides the inherited API key
//  5. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  6. EMBEDDING_DIMENSIONS overrides the model default dimensions
func ConfigFromEnv() Config {
	backend := getEnv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", BackendOllama)
	}
	cfg := Config{
		Backend:    backend,
		Model:      getEnv("EMBEDDING_MODEL"),
		Endpoint:   getEnv("EMBEDDING_ENDPOINT"),
		APIKey:     getEnv("EMBEDDING_API_KEY"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
	}

	switch backend {
	case BackendOllama:
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnv("OLLAMA_HOST"), "http://localhost:11434")
		cfg.Model = firstNonEmpty(cfg.Model, defaultOllamaModel)
	case BackendOpenAI:
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, "https://api.openai.com/v1")
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
		if cfg.Dimensions == 0 {
			cfg.Dimensions = defaultOpenAIDimensions
		}
	case BackendAzure:
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("AZURE_OPENAI_API_KEY"))
		cfg.Endpoint = firstNonEmpty(cfg.Endpoint, getEnv("AZURE_OPENAI_ENDPOINT"))
		cfg.Model = firstNonEmpty(cfg.Model, defaultOpenAIModel)
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
		if cfg.Dimensions == 0 {
			cfg.Dimensions = defaultOpenAIDimensions
		}
	case BackendGemini:
		cfg.APIKey = firstNonEmpty(cfg.APIKey, getEnv("GOOGLE_API_KEY"))
		cfg.Model = firstNonEmpty(cfg.Model, defaultGeminiModel)
	}
	return cfg
}

// NewFromEnv constructs a rag.Embedder from ConfigFromEnv.
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	return New(ctx, ConfigFromEnv())
}

// New constructs a rag.Embedder for cfg after validating it.
func New(ctx context.Context, cfg Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendOllama:
		return NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model}), nil
	case BackendOpenAI:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		}), nil
	case BackendAzure:
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    strings.TrimSuffix(cfg.Endpoint, "/") + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		}), nil
	case BackendGemini:
		return NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return nil, fmt.Errorf("embedder: unknown backend %q: valid values: ollama, openai, azure, gemini", cfg.Backend)
	}
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
