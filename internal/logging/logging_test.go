package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	} {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithOptions_JSONAndText(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWithOptions(Options{Level: "info", Writer: &buf}).Info("hello", slog.String("k", "v"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	l := NewWithOptions(Options{Level: "warn", Format: "TEXT", Writer: &buf})
	l.Info("dropped")
	l.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.True(t, strings.Contains(buf.String(), "msg=kept"))
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	assert.Same(t, slog.Default(), FromContext(context.Background()))

	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWithOptions(Options{Writer: &buf}))
	ctx = With(ctx, slog.String("query_id", "q-1"))
	FromContext(ctx).Info("step")

	assert.Contains(t, buf.String(), `"query_id":"q-1"`)
}
