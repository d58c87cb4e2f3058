// Package provider defines the model provider configuration and factory for
// selecting and constructing LLM backend implementations at runtime.
// Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock, Google Gemini.
package provider

import (
	"context"
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values. Only the sub-config matching
// Backend is consulted.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	// Ollama holds settings for BackendOllama.
	Ollama ProviderOllama
	// OpenAI holds settings for BackendOpenAI.
	OpenAI ProviderOpenAI
	// AzureOpenAI holds settings for BackendAzure.
	AzureOpenAI ProviderAzureOpenAI
	// Bedrock holds settings for BackendBedrock.
	Bedrock ProviderBedrock
	// Gemini holds settings for BackendGemini.
	Gemini ProviderGemini

	// Tuning holds generation settings shared by every backend.
	Tuning SharedTuning
}

// ProviderOllama configures a local Ollama server.
type ProviderOllama struct {
	// Host is the Ollama API endpoint (e.g. "http://localhost:11434").
	Host string
	// Model is the model tag (e.g. "llama3").
	Model string
}

// ProviderOpenAI configures the OpenAI API or a compatible server.
type ProviderOpenAI struct {
	// APIKey is the bearer credential.
	APIKey string
	// Model is the model name (e.g. "gpt-4o").
	Model string
	// BaseURL overrides the default endpoint. Optional.
	BaseURL string
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	// APIKey is the resource key.
	APIKey string
	// Endpoint is the resource endpoint (e.g. "https://my.openai.azure.com").
	Endpoint string
	// Deployment is the deployment name; it is used as the model name.
	Deployment string
	// APIVersion is the REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderBedrock configures AWS Bedrock through the ark runtime.
type ProviderBedrock struct {
	// AWSRegion is the AWS region.
	AWSRegion string
	// ModelID is the Bedrock model identifier.
	ModelID string
	// APIKey is passed to the runtime when set. Optional.
	APIKey string
	// BaseURL is the runtime endpoint. Optional.
	BaseURL string
}

// ProviderGemini configures Google Gemini.
type ProviderGemini struct {
	// APIKey is the Google API key.
	APIKey string
	// Model is the model name (e.g. "gemini-1.5-pro").
	Model string
}

// SharedTuning holds generation parameters applied to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature is the default sampling temperature. Callers may override
	// it per request.
	Temperature float32
}

// Validate checks that the selected backend has every required setting and
// names the missing environment variable in the error.
func (c *Config) Validate() error {
	var missing []string
	require := func(v, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}

	switch c.Backend {
	case BackendOllama:
		require(c.Ollama.Host, "OLLAMA_HOST")
		require(c.Ollama.Model, "OLLAMA_MODEL")
	case BackendOpenAI:
		require(c.OpenAI.APIKey, "OPENAI_API_KEY")
		require(c.OpenAI.Model, "OPENAI_MODEL")
	case BackendAzure:
		require(c.AzureOpenAI.APIKey, "AZURE_OPENAI_API_KEY")
		require(c.AzureOpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
		require(c.AzureOpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT")
	case BackendBedrock:
		require(c.Bedrock.AWSRegion, "AWS_REGION")
		require(c.Bedrock.ModelID, "BEDROCK_MODEL_ID")
	case BackendGemini:
		require(c.Gemini.APIKey, "GOOGLE_API_KEY")
		require(c.Gemini.Model, "GEMINI_MODEL")
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: ollama, openai, azure, bedrock, gemini)", c.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("provider: %s backend requires %s", c.Backend, strings.Join(missing, ", "))
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	case BackendGemini:
		return c.Gemini.Model
	}
	return ""
}

// HealthCheckConfig is a zero-cost reachability probe for a backend,
// typically a model listing request that consumes no tokens.
type HealthCheckConfig interface {
	HealthCheck(ctx context.Context) error
}
