package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/54b3r/specqa-go/internal/chunker"
	"github.com/54b3r/specqa-go/internal/logging"
)

// FailurePolicy selects how the Retriever reacts to a failed chunk embedding.
type FailurePolicy string

const (
	// FailFast aborts the whole retrieval on the first embedding failure.
	FailFast FailurePolicy = "fail-fast"
	// SkipDocument drops the document whose chunk failed and continues with
	// the rest. A failed query embedding, a cancelled context, or every
	// document failing is still fatal.
	SkipDocument FailurePolicy = "skip-document"
)

// defaultConcurrency is the number of in-flight embedding calls when the
// caller does not set Config.Concurrency.
const defaultConcurrency = 4

// Config holds the dependencies and tuning knobs for a Retriever.
type Config struct {
	// Embedder converts query and chunk text to vectors. Required.
	Embedder Embedder

	// Cache is an optional chunk embedding cache.
	Cache EmbeddingCache

	// ChunkSize is the chunker target size in characters (default 1000).
	ChunkSize int

	// DefaultTopK is used when Retrieve is called with topK <= 0 (default 5).
	DefaultTopK int

	// Concurrency bounds the number of in-flight embedding calls (default 4).
	Concurrency int

	// BatchSize is the number of chunks sent per embedding call (default 1,
	// one call per chunk).
	BatchSize int

	// RequestsPerSecond paces embedding calls. Zero disables pacing.
	RequestsPerSecond float64

	// EmbedTimeout bounds each embedding call. Zero means no per-call timeout.
	EmbedTimeout time.Duration

	// FailurePolicy selects fail-fast (default) or skip-document behaviour.
	FailurePolicy FailurePolicy

	// Metrics is optional.
	Metrics *Metrics
}

// Retriever chunks, embeds and scores a document set against a query. It
// holds no per-query state and is safe for concurrent use.
type Retriever struct {
	// embedder converts text to dense vectors.
	embedder Embedder
	// cache is the optional chunk embedding cache.
	cache EmbeddingCache
	// limiter paces embedding calls; nil when pacing is disabled.
	limiter *rate.Limiter
	// cfg holds the resolved configuration.
	cfg Config
}

// NewRetriever constructs a Retriever from cfg, applying defaults.
func NewRetriever(cfg Config) (*Retriever, error) {
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultTargetSize
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultTopK
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	switch cfg.FailurePolicy {
	case "":
		cfg.FailurePolicy = FailFast
	case FailFast, SkipDocument:
	default:
		return nil, fmt.Errorf("rag: unknown failure policy %q: valid values: %s, %s", cfg.FailurePolicy, FailFast, SkipDocument)
	}

	r := &Retriever{embedder: cfg.Embedder, cache: cfg.Cache, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(1, cfg.Concurrency))
	}
	return r, nil
}

// pending is a chunk awaiting its embedding.
type pending struct {
	chunk    Chunk
	docIndex int
	key      CacheKey
	vec      []float32
	err      error
}

// Retrieve returns at most topK chunks of docs ranked by cosine similarity to
// query. The query is embedded once; every chunk of every document with
// content is embedded and scored. Embedding batches never span documents.
// An empty pool yields an empty, non-nil slice and no error.
func (r *Retriever) Retrieve(ctx context.Context, query string, docs []Document, topK int) ([]ScoredChunk, error) {
	log := logging.FromContext(ctx)
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}

	queryVecs, err := r.embed(ctx, "query", []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	queryVec := queryVecs[0]

	items := r.split(docs)
	if err := r.embedChunks(ctx, queryVec, items); err != nil {
		return nil, err
	}

	// A cancelled or expired query is a failure even when every chunk error
	// was recorded as a skip.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("rag: embedding chunks: %w: %w", ErrEmbedding, err)
	}

	failed := make(map[int]error)
	contributing := make(map[int]struct{})
	for _, it := range items {
		contributing[it.docIndex] = struct{}{}
		if it.err != nil {
			if _, seen := failed[it.docIndex]; !seen {
				failed[it.docIndex] = it.err
			}
		}
	}
	if len(failed) > 0 && len(failed) == len(contributing) {
		return nil, fmt.Errorf("rag: every document failed to embed: %w", firstFailure(items))
	}
	for idx, ferr := range failed {
		r.cfg.Metrics.skipped()
		log.Warn("rag: skipping document after embedding failure",
			slog.String("document_id", docs[idx].ID),
			slog.String("document_name", docs[idx].Name),
			slog.Any("error", ferr),
		)
	}

	pool := make([]scored, 0, len(items))
	for _, it := range items {
		if _, skip := failed[it.docIndex]; skip {
			continue
		}
		pool = append(pool, scored{
			chunk:    ScoredChunk{Chunk: it.chunk, Score: Similarity(queryVec, it.vec)},
			docIndex: it.docIndex,
		})
	}
	r.cfg.Metrics.scored(len(pool))

	out := rank(pool, topK)
	log.Debug("rag: retrieval complete",
		slog.Int("documents", len(docs)),
		slog.Int("chunks", len(pool)),
		slog.Int("skipped_documents", len(failed)),
		slog.Int("returned", len(out)),
	)
	return out, nil
}

// split chunks every document with content, in input order.
func (r *Retriever) split(docs []Document) []*pending {
	var items []*pending
	for i, doc := range docs {
		if doc.Content == "" {
			continue
		}
		for pos, text := range chunker.Split(doc.Content, r.cfg.ChunkSize) {
			c := Chunk{
				DocumentID:   doc.ID,
				DocumentName: doc.Name,
				Text:         text,
				Position:     pos,
			}
			items = append(items, &pending{chunk: c, docIndex: i, key: NewCacheKey(c)})
		}
	}
	return items
}

// embedChunks fills in the vector of every item, consulting the cache first.
// Embedding calls run on a bounded pool; the function returns only after all
// of them have finished. Under FailFast the first error cancels the rest and
// is returned; under SkipDocument errors are recorded on the items.
func (r *Retriever) embedChunks(ctx context.Context, queryVec []float32, items []*pending) error {
	var misses []*pending
	for _, it := range items {
		if vec, ok := r.cacheGet(ctx, it.key); ok && len(vec) == len(queryVec) {
			it.vec = vec
			continue
		}
		misses = append(misses, it)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for _, batch := range batches(misses, r.cfg.BatchSize) {
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, it := range batch {
				texts[i] = it.chunk.Text
			}

			vecs, err := r.embed(gctx, "chunk", texts)
			if err == nil {
				for i, v := range vecs {
					if len(v) != len(queryVec) {
						err = fmt.Errorf("%w: chunk vector has %d dimensions, query has %d", ErrEmbedding, len(v), len(queryVec))
						break
					}
					batch[i].vec = v
				}
			}
			if err != nil {
				if r.cfg.FailurePolicy == FailFast {
					return fmt.Errorf("rag: embedding chunk %d of %q failed: %w", batch[0].chunk.Position, batch[0].chunk.DocumentName, err)
				}
				for _, it := range batch {
					it.err = err
				}
				return nil
			}

			for _, it := range batch {
				r.cachePut(gctx, it.key, it.vec)
			}
			return nil
		})
	}

	return g.Wait() //nolint:wrapcheck // errors are wrapped inside the goroutines
}

// batches cuts items into runs of at most size that never cross a document
// boundary, so a failed call only implicates one document.
func batches(items []*pending, size int) [][]*pending {
	var out [][]*pending
	start := 0
	for i := 1; i <= len(items); i++ {
		if i == len(items) || i-start == size || items[i].docIndex != items[start].docIndex {
			out = append(out, items[start:i])
			start = i
		}
	}
	return out
}

// firstFailure returns the first recorded item error in chunk order.
func firstFailure(items []*pending) error {
	for _, it := range items {
		if it.err != nil {
			return it.err
		}
	}
	return nil
}

// embed performs one paced, optionally time-bounded embedding call and
// validates the shape of the result. All failures wrap ErrEmbedding.
func (r *Retriever) embed(ctx context.Context, kind string, texts []string) ([][]float32, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
		}
	}
	if r.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.EmbedTimeout)
		defer cancel()
	}

	vecs, err := r.embedder.Embed(ctx, texts)
	if err == nil {
		err = validateEmbeddings(vecs, len(texts))
	}
	r.cfg.Metrics.embedCall(kind, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vecs, nil
}

// validateEmbeddings rejects empty or mis-sized embedding results.
func validateEmbeddings(vecs [][]float32, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("expected %d embeddings, got %d", want, len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("embedding %d is empty", i)
		}
	}
	return nil
}

// cacheGet looks key up in the cache. Cache errors are logged and treated as
// misses.
func (r *Retriever) cacheGet(ctx context.Context, key CacheKey) ([]float32, bool) {
	if r.cache == nil {
		return nil, false
	}
	vec, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		r.cfg.Metrics.cacheLookup("error")
		logging.FromContext(ctx).Warn("rag: embedding cache lookup failed", slog.Any("error", err))
		return nil, false
	case ok:
		r.cfg.Metrics.cacheLookup("hit")
		return vec, true
	default:
		r.cfg.Metrics.cacheLookup("miss")
		return nil, false
	}
}

// cachePut stores vec under key. Failures are logged only.
func (r *Retriever) cachePut(ctx context.Context, key CacheKey, vec []float32) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(ctx, key, vec); err != nil {
		logging.FromContext(ctx).Warn("rag: embedding cache store failed", slog.Any("error", err))
	}
}
