// Package tracing wires optional Langfuse tracing into the eino callback
// system. Every chat model call made through a compiled eino chain is then
// reported as a trace.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/specqa-go/internal/version"
)

// defaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Config holds the Langfuse connection settings.
type Config struct {
	Host      string
	PublicKey string
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler if cfg is enabled. Returns
// a flush function that must be called before process exit to ensure all
// traces are sent. If Langfuse is not configured, both return values are nil
// and tracing is silently disabled.
func Setup(cfg Config) (callbacks.Handler, func(), bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "specqa",
		Release:   version.Version,
	})

	return handler, flusher, true
}

// Install registers the handler globally when tracing is configured in the
// environment and returns the flush function to defer. The returned function
// is never nil.
func Install(log *slog.Logger) func() {
	handler, flush, ok := Setup(ConfigFromEnv())
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}
