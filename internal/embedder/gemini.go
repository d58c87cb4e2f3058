package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiEmbedder implements rag.Embedder using the Gemini embedContent API.
type GeminiEmbedder struct {
	// models is the genai models service.
	models *genai.Models
	// model is the embedding model name (e.g. "text-embedding-004").
	model string
	// config carries the optional output dimensionality.
	config *genai.EmbedContentConfig
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the embedding model name.
	Model string
	// Dimensions requests a reduced output size (0 = model default).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder backed by the Gemini API.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: failed to create client: %w", err)
	}

	e := &GeminiEmbedder{
		models: client.Models,
		model:  cfg.Model,
		config: &genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"},
	}
	if cfg.Dimensions > 0 {
		dims := int32(cfg.Dimensions) //nolint:gosec // dimensions are small positive ints
		e.config.OutputDimensionality = &dims
	}
	return e, nil
}

// Embed converts a batch of texts into their corresponding embeddings.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.models.EmbedContent(ctx, e.model, contents, e.config)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed content failed: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("gemini embedder: embedding %d missing from response", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}
