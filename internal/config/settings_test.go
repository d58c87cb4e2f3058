package config

import (
	"os"
	"testing"
	"time"
)

// settingsKeys are cleared before each settings test so the host
// environment cannot leak in.
var settingsKeys = []string{
	"SPECQA_CHUNK_SIZE", "SPECQA_TOP_K", "SPECQA_EMBED_CONCURRENCY", "SPECQA_EMBED_BATCH_SIZE",
	"SPECQA_EMBED_RPS", "SPECQA_FAILURE_POLICY", "SPECQA_EMBED_TIMEOUT", "SPECQA_GENERATE_TIMEOUT",
	"SPECQA_CACHE", "SPECQA_TEMPERATURE", "SPECQA_MAX_CONTEXT_TOKENS", "SPECQA_HISTORY_DB",
	"SPECQA_DOCS_DIR", "SPECQA_DOCS_LIMIT", "SPECQA_HOST", "SPECQA_PORT", "SPECQA_RATE_LIMIT",
	"SPECQA_RATE_BURST",
}

func clearSettings(t *testing.T) {
	t.Helper()
	for _, k := range settingsKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestSettingsFromEnv_Defaults(t *testing.T) {
	clearSettings(t)

	s, err := SettingsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Cache != CacheMemory {
		t.Errorf("Cache: got %q, want %q", s.Cache, CacheMemory)
	}
	if s.Port != 8080 || s.Host != "127.0.0.1" {
		t.Errorf("listen address: got %s:%d", s.Host, s.Port)
	}
	if s.DocsDir != "." {
		t.Errorf("DocsDir: got %q", s.DocsDir)
	}
	if s.ChunkSize != 0 || s.TopK != 0 || s.EmbedTimeout != 0 {
		t.Errorf("unset knobs should be zero: %+v", s)
	}
}

func TestSettingsFromEnv_Parsed(t *testing.T) {
	clearSettings(t)
	t.Setenv("SPECQA_CHUNK_SIZE", "800")
	t.Setenv("SPECQA_TOP_K", "3")
	t.Setenv("SPECQA_EMBED_RPS", "2.5")
	t.Setenv("SPECQA_EMBED_TIMEOUT", "15s")
	t.Setenv("SPECQA_FAILURE_POLICY", "skip-document")
	t.Setenv("SPECQA_CACHE", "Qdrant")
	t.Setenv("SPECQA_TEMPERATURE", "0.5")
	t.Setenv("SPECQA_PORT", "9090")

	s, err := SettingsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ChunkSize != 800 || s.TopK != 3 || s.Port != 9090 {
		t.Errorf("ints: %+v", s)
	}
	if s.RequestsPerSecond != 2.5 || s.Temperature != 0.5 {
		t.Errorf("floats: rps=%v temp=%v", s.RequestsPerSecond, s.Temperature)
	}
	if s.EmbedTimeout != 15*time.Second {
		t.Errorf("EmbedTimeout: got %v", s.EmbedTimeout)
	}
	if s.FailurePolicy != "skip-document" || s.Cache != CacheQdrant {
		t.Errorf("strings: policy=%q cache=%q", s.FailurePolicy, s.Cache)
	}
}

func TestSettingsFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SPECQA_TOP_K", "five"},
		{"SPECQA_CHUNK_SIZE", "-1"},
		{"SPECQA_EMBED_RPS", "fast"},
		{"SPECQA_GENERATE_TIMEOUT", "30"},
		{"SPECQA_CACHE", "redis"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			clearSettings(t)
			t.Setenv(tc.key, tc.value)
			if _, err := SettingsFromEnv(); err == nil {
				t.Errorf("%s=%q: expected error", tc.key, tc.value)
			}
		})
	}
}
