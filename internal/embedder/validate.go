package embedder

import (
	"fmt"
	"log/slog"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"gemini-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	if strings.Contains(lower, "embed") {
		return false
	}
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate returns an error when the configuration is clearly unusable, such
// as a hosted backend with no API key.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: ollama requires OLLAMA_HOST or EMBEDDING_ENDPOINT")
		}
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case BackendAzure:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if c.Endpoint == "" {
			return fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case BackendGemini:
		if c.APIKey == "" {
			return fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("embedder: unknown backend %q: valid values: ollama, openai, azure, gemini", c.Backend)
	}
	if c.Model == "" {
		return fmt.Errorf("embedder: EMBEDDING_MODEL must not be empty")
	}
	return nil
}

// WarnMisconfiguration logs operator-facing warnings for configurations that
// work but are probably not what was intended. chatBackend is the resolved
// MODEL_PROVIDER value, explicit reports whether EMBEDDING_PROVIDER was set.
func (c Config) WarnMisconfiguration(log *slog.Logger, chatBackend string, explicit bool) {
	if !explicit && c.Backend == chatBackend && c.Backend != BackendOllama {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER as embedding backend",
			slog.String("backend", c.Backend),
			slog.String("hint", "set EMBEDDING_PROVIDER explicitly to avoid surprises"),
		)
	}
	if looksLikeChatModel(c.Model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, not an embedding model",
			slog.String("model", c.Model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
}
