package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req openaiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)
		assert.Equal(t, []string{"first", "second"}, req.Input)
		assert.Equal(t, 3, req.Dimensions)

		// Out of order on purpose.
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1,0]},{"index":0,"embedding":[1,0,0]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/v1",
		APIKey:     "sk-test",
		Model:      "text-embedding-3-small",
		Dimensions: 3,
	})
	got, err := e.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0}, {0, 1, 0}}, got)
}

func TestOpenAIEmbedder_Azure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/embed-dep/embeddings", r.URL.Path)
		assert.Equal(t, "2025-04-01-preview", r.URL.Query().Get("api-version"))
		assert.Equal(t, "az-key", r.Header.Get("api-key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[0.5]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		BaseURL:    srv.URL + "/openai",
		APIKey:     "az-key",
		Model:      "embed-dep",
		Azure:      true,
		APIVersion: "2025-04-01-preview",
	})
	got, err := e.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5}}, got)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{name: "api error message", status: http.StatusUnauthorized, body: `{"error":{"message":"invalid key"}}`, wantErr: "invalid key"},
		{name: "bare status", status: http.StatusBadGateway, body: `upstream`, wantErr: "HTTP 502"},
		{name: "count mismatch", status: http.StatusOK, body: `{"data":[]}`, wantErr: "expected 1 embeddings, got 0"},
		{name: "index out of range", status: http.StatusOK, body: `{"data":[{"index":4,"embedding":[1]}]}`, wantErr: "out of range"},
		{name: "malformed body", status: http.StatusOK, body: `{`, wantErr: "decode response"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			e := NewOpenAIEmbedder(&OpenAIConfig{BaseURL: srv.URL, APIKey: "k", Model: "m"})
			_, err := e.Embed(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
			assert.True(t, strings.HasPrefix(err.Error(), "openai embedder:"))
		})
	}
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2],[0.3,0.4]]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	got, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1, 0.2}, {0.3, 0.4}}, got)
}

func TestOllamaEmbedder_Error(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "nope"})
	_, err := e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model "nope" not found`)
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want Config
	}{
		{
			name: "defaults to ollama",
			env:  map[string]string{},
			want: Config{Backend: "ollama", Model: defaultOllamaModel, Endpoint: "http://localhost:11434"},
		},
		{
			name: "inherits openai key from chat provider",
			env:  map[string]string{"MODEL_PROVIDER": "openai", "OPENAI_API_KEY": "sk-chat"},
			want: Config{
				Backend: "openai", Model: defaultOpenAIModel, Endpoint: "https://api.openai.com/v1",
				APIKey: "sk-chat", Dimensions: defaultOpenAIDimensions,
			},
		},
		{
			name: "embedding overrides win",
			env: map[string]string{
				"MODEL_PROVIDER":       "openai",
				"EMBEDDING_PROVIDER":   "ollama",
				"EMBEDDING_MODEL":      "mxbai-embed-large",
				"EMBEDDING_ENDPOINT":   "http://gpu:11434",
				"EMBEDDING_DIMENSIONS": "1024",
			},
			want: Config{Backend: "ollama", Model: "mxbai-embed-large", Endpoint: "http://gpu:11434", Dimensions: 1024},
		},
		{
			name: "gemini",
			env:  map[string]string{"EMBEDDING_PROVIDER": "gemini", "GOOGLE_API_KEY": "AIza"},
			want: Config{Backend: "gemini", Model: defaultGeminiModel, APIKey: "AIza"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for _, k := range []string{
				"MODEL_PROVIDER", "EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_ENDPOINT",
				"EMBEDDING_API_KEY", "EMBEDDING_DIMENSIONS", "OLLAMA_HOST", "OPENAI_API_KEY", "GOOGLE_API_KEY",
			} {
				t.Setenv(k, "")
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tc.want, ConfigFromEnv())
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "ollama/valid", cfg: Config{Backend: "ollama", Endpoint: "http://localhost:11434", Model: "m"}},
		{name: "openai/missing key", cfg: Config{Backend: "openai", Model: "m"}, wantErr: "OPENAI_API_KEY"},
		{name: "azure/missing endpoint", cfg: Config{Backend: "azure", APIKey: "k", Model: "m"}, wantErr: "AZURE_OPENAI_ENDPOINT"},
		{name: "gemini/missing key", cfg: Config{Backend: "gemini", Model: "m"}, wantErr: "GOOGLE_API_KEY"},
		{name: "missing model", cfg: Config{Backend: "openai", APIKey: "k"}, wantErr: "EMBEDDING_MODEL"},
		{name: "unknown", cfg: Config{Backend: "bedrock"}, wantErr: "unknown backend"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLooksLikeChatModel(t *testing.T) {
	t.Parallel()

	for model, want := range map[string]bool{
		"gpt-4o":                 true,
		"llama3:8b":              true,
		"gemini-1.5-pro":         true,
		"nomic-embed-text":       false,
		"text-embedding-3-small": false,
		"gemini-embedding-001":   false,
	} {
		assert.Equal(t, want, looksLikeChatModel(model), model)
	}
}

func TestNew_BuildsBackends(t *testing.T) {
	t.Parallel()

	e, err := New(context.Background(), Config{Backend: "ollama", Endpoint: "http://h:1", Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &OllamaEmbedder{}, e)

	e, err = New(context.Background(), Config{Backend: "azure", Endpoint: "https://r.openai.azure.com/", APIKey: "k", Model: "dep", APIVersion: "v"})
	require.NoError(t, err)
	require.IsType(t, &OpenAIEmbedder{}, e)
	assert.Equal(t, "https://r.openai.azure.com/openai/deployments/dep/embeddings?api-version=v", e.(*OpenAIEmbedder).endpoint)
}
