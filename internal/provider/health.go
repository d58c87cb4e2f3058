package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// httpHealthCheck probes a model listing endpoint with a GET request.
type httpHealthCheck struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// HealthCheck performs the GET and treats any 2xx status as healthy.
func (h *httpHealthCheck) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck returns a zero-cost probe for the selected backend, or nil when
// the backend offers none (Bedrock) and the caller must fall back to a
// generate call.
func (c *Config) HealthCheck() HealthCheckConfig {
	client := &http.Client{Timeout: 10 * time.Second}

	switch c.Backend {
	case BackendOllama:
		return &httpHealthCheck{
			url:    strings.TrimRight(c.Ollama.Host, "/") + "/api/tags",
			client: client,
		}
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		return &httpHealthCheck{
			url:     strings.TrimRight(base, "/") + "/models",
			headers: map[string]string{"Authorization": "Bearer " + c.OpenAI.APIKey},
			client:  client,
		}
	case BackendAzure:
		return &httpHealthCheck{
			url: strings.TrimRight(c.AzureOpenAI.Endpoint, "/") + "/openai/models?api-version=" +
				url.QueryEscape(c.AzureOpenAI.APIVersion),
			headers: map[string]string{"api-key": c.AzureOpenAI.APIKey},
			client:  client,
		}
	case BackendGemini:
		return &httpHealthCheck{
			url:     "https://generativelanguage.googleapis.com/v1beta/models",
			headers: map[string]string{"x-goog-api-key": c.Gemini.APIKey},
			client:  client,
		}
	}
	return nil
}
