package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/specqa-go/internal/analysis"
	"github.com/54b3r/specqa-go/internal/config"
	"github.com/54b3r/specqa-go/internal/docsource"
	"github.com/54b3r/specqa-go/internal/embedder"
	"github.com/54b3r/specqa-go/internal/engine"
	"github.com/54b3r/specqa-go/internal/provider"
	"github.com/54b3r/specqa-go/internal/rag"
	"github.com/54b3r/specqa-go/internal/store"
	"github.com/54b3r/specqa-go/internal/synth"
	"github.com/54b3r/specqa-go/internal/tracing"
)

// historyDisabled turns the query history off when set as SPECQA_HISTORY_DB.
const historyDisabled = "disabled"

// app holds the components a command has built. Close releases them in
// reverse order.
type app struct {
	log      *slog.Logger
	settings config.Settings

	providerCfg *provider.Config
	chatModel   model.BaseChatModel

	embedderCfg embedder.Config
	embedder    rag.Embedder
	cache       rag.EmbeddingCache
	qdrant      *rag.QdrantCache

	history *store.SQLiteStore

	closers []func()
}

// newApp parses the layered settings. Components are built on demand.
func newApp(log *slog.Logger) (*app, error) {
	s, err := config.SettingsFromEnv()
	if err != nil {
		return nil, err //nolint:wrapcheck // already prefixed by config
	}
	return &app{log: log, settings: s}, nil
}

// Close releases every opened resource.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// withChatModel constructs the chat model from MODEL_PROVIDER.
// Langfuse tracing is installed first so every model call is traced.
func (a *app) withChatModel(ctx context.Context) error {
	a.closers = append(a.closers, tracing.Install(a.log))
	a.providerCfg = provider.ConfigFromEnv()
	cm, err := provider.New(ctx, a.providerCfg)
	if err != nil {
		return fmt.Errorf("failed to initialise model provider: %w", err)
	}
	a.chatModel = cm
	a.log.Info("provider initialised",
		slog.String("provider", string(a.providerCfg.Backend)),
		slog.String("model", a.providerCfg.ModelName()),
	)
	return nil
}

// withEmbedder constructs the embedder and the configured embedding cache.
func (a *app) withEmbedder(ctx context.Context) error {
	a.embedderCfg = embedder.ConfigFromEnv()
	a.embedderCfg.WarnMisconfiguration(a.log,
		getEnvOrDefault("MODEL_PROVIDER", string(provider.BackendOllama)),
		os.Getenv("EMBEDDING_PROVIDER") != "",
	)
	emb, err := embedder.New(ctx, a.embedderCfg)
	if err != nil {
		return fmt.Errorf("failed to initialise embedder: %w", err)
	}
	a.embedder = emb
	a.log.Info("embedder initialised",
		slog.String("provider", a.embedderCfg.Backend),
		slog.String("model", a.embedderCfg.Model),
	)
	return a.withCache(ctx)
}

// withCache opens the embedding cache selected by SPECQA_CACHE.
func (a *app) withCache(ctx context.Context) error {
	switch a.settings.Cache {
	case config.CacheNone:
		a.log.Info("embedding cache disabled")
	case config.CacheMemory:
		a.cache = rag.NewMemoryCache(0)
	case config.CacheQdrant:
		dims := a.embedderCfg.Dimensions
		if dims == 0 {
			dims = embedder.DefaultDimensions(a.embedderCfg.Backend)
		}
		qcfg := &rag.QdrantConfig{
			Host:       getEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       getEnvInt("QDRANT_PORT", 6334),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			VectorSize: uint64(dims), //nolint:gosec // dimensions are bounded
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			UseTLS:     os.Getenv("QDRANT_TLS") == "true",
		}
		qc, err := rag.NewQdrantCache(ctx, qcfg)
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qcfg.Host, qcfg.Port, err)
		}
		a.qdrant = qc
		a.cache = qc
		a.closers = append(a.closers, func() { _ = qc.Close() })
		a.log.Info("qdrant embedding cache ready",
			slog.String("host", qcfg.Host),
			slog.Int("port", qcfg.Port),
			slog.String("collection", qcfg.Collection),
		)
	}
	return nil
}

// withHistory opens the query history store. A store that cannot be opened
// disables history with a warning rather than failing the command.
func (a *app) withHistory() {
	path := a.settings.HistoryDB
	if path == historyDisabled {
		a.log.Info("history: disabled via SPECQA_HISTORY_DB=disabled")
		return
	}
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			a.log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
			return
		}
	}
	hs, err := store.Open(path)
	if err != nil {
		a.log.Warn("history: failed to open store, disabling", slog.Any("error", err))
		return
	}
	a.history = hs
	a.closers = append(a.closers, func() { _ = hs.Close() })
	a.log.Info("history: store opened", slog.String("path", path))
}

// retriever builds the Retriever from the settings. reg may be nil.
func (a *app) retriever(reg prometheus.Registerer) (*rag.Retriever, error) {
	var metrics *rag.Metrics
	if reg != nil {
		metrics = rag.NewMetrics(reg)
	}
	r, err := rag.NewRetriever(rag.Config{
		Embedder:          a.embedder,
		Cache:             a.cache,
		ChunkSize:         a.settings.ChunkSize,
		DefaultTopK:       a.settings.TopK,
		Concurrency:       a.settings.Concurrency,
		BatchSize:         a.settings.BatchSize,
		RequestsPerSecond: a.settings.RequestsPerSecond,
		EmbedTimeout:      a.settings.EmbedTimeout,
		FailurePolicy:     rag.FailurePolicy(a.settings.FailurePolicy),
		Metrics:           metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise retriever: %w", err)
	}
	return r, nil
}

// engine wires retriever, synthesizer and (when open) history into an
// Engine. reg may be nil.
func (a *app) engine(ctx context.Context, reg prometheus.Registerer) (*engine.Engine, error) {
	r, err := a.retriever(reg)
	if err != nil {
		return nil, err
	}
	sy, err := synth.New(ctx, synth.Config{
		ChatModel:        a.chatModel,
		Temperature:      a.settings.Temperature,
		GenerateTimeout:  a.settings.GenerateTimeout,
		MaxContextTokens: a.settings.MaxContextTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise synthesizer: %w", err)
	}

	cfg := engine.Config{Retriever: r, Synthesizer: sy, TopK: a.settings.TopK}
	if a.history != nil {
		cfg.Recorder = a.history
	}
	if reg != nil {
		cfg.Metrics = engine.NewMetrics(reg)
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise engine: %w", err)
	}
	return eng, nil
}

// analyzer builds the document Analyzer on the chat model.
func (a *app) analyzer(ctx context.Context) (*analysis.Analyzer, error) {
	an, err := analysis.New(ctx, analysis.Config{
		ChatModel:        a.chatModel,
		GenerateTimeout:  a.settings.GenerateTimeout,
		MaxContentTokens: a.settings.MaxContextTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise analyzer: %w", err)
	}
	return an, nil
}

// documentSource returns a URL source when urls are given and a directory
// source otherwise. dir overrides SPECQA_DOCS_DIR when non-empty.
func (a *app) documentSource(dir string, urls []string) (docsource.Source, error) {
	if len(urls) > 0 {
		src, err := docsource.NewURL(docsource.URLConfig{URLs: urls})
		if err != nil {
			return nil, err //nolint:wrapcheck // already prefixed by docsource
		}
		return src, nil
	}
	if dir == "" {
		dir = a.settings.DocsDir
	}
	return docsource.Dir{Root: dir, Limit: a.settings.DocsLimit}, nil
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
// fallback if it is unset or malformed.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
