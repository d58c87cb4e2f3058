// Package ingestion pre-computes chunk embeddings for a document set and
// stores them in the embedding cache, so later queries over the same
// documents only need to embed the question. It is invoked by the
// `specqa index` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/54b3r/specqa-go/internal/chunker"
	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the target chunk size in characters. It must match the
	// Retriever's chunk size or the warmed keys will never be looked up.
	// Defaults to chunker.DefaultTargetSize if zero.
	ChunkSize int

	// BatchSize is the number of chunks sent per embedding call.
	// Defaults to 16 if zero.
	BatchSize int

	// Force re-embeds chunks that are already cached.
	Force bool
}

// Stats reports what a Warm run did.
type Stats struct {
	// Documents is the number of documents with content that were processed.
	Documents int
	// Chunks is the total number of chunks produced.
	Chunks int
	// Embedded is the number of chunks sent to the embedding service.
	Embedded int
	// Cached is the number of chunks that were already cached.
	Cached int
}

// Pipeline orchestrates the chunk → embed → cache flow for a set of
// documents.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// cache persists the embedded chunks.
	cache rag.EmbeddingCache

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, cache rag.EmbeddingCache, cfg Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if cache == nil {
		return nil, fmt.Errorf("ingestion: cache must not be nil")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultTargetSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &Pipeline{embedder: embedder, cache: cache, cfg: cfg}, nil
}

// Warm chunks, embeds, and caches all provided documents. Documents are
// processed sequentially and the first embedding or cache write error is
// returned. Progress is reported via the optional progress callback.
func (p *Pipeline) Warm(ctx context.Context, docs []rag.Document, progress func(msg string)) (Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}
	log := logging.FromContext(ctx)

	var (
		stats Stats
		dims  int
	)
	for _, doc := range docs {
		if doc.Content == "" {
			continue
		}
		stats.Documents++

		texts := chunker.Split(doc.Content, p.cfg.ChunkSize)
		stats.Chunks += len(texts)

		var misses []rag.Chunk
		for pos, text := range texts {
			c := rag.Chunk{DocumentID: doc.ID, DocumentName: doc.Name, Text: text, Position: pos}
			if !p.cfg.Force && p.cached(ctx, c) {
				stats.Cached++
				continue
			}
			misses = append(misses, c)
		}
		progress(fmt.Sprintf("chunked %s into %d chunks (%d to embed)", doc.Name, len(texts), len(misses)))

		for start := 0; start < len(misses); start += p.cfg.BatchSize {
			batch := misses[start:min(start+p.cfg.BatchSize, len(misses))]
			n, err := p.embedBatch(ctx, batch, &dims)
			if err != nil {
				return stats, fmt.Errorf("ingestion: %s: %w", doc.Name, err)
			}
			stats.Embedded += n
		}

		log.Debug("ingestion: document warmed",
			slog.String("document_id", doc.ID),
			slog.Int("chunks", len(texts)),
			slog.Int("embedded", len(misses)),
		)
	}

	progress(fmt.Sprintf("indexed %d documents: %d chunks, %d embedded, %d already cached",
		stats.Documents, stats.Chunks, stats.Embedded, stats.Cached))
	return stats, nil
}

// cached reports whether c already has a cache entry. Lookup errors count as
// a miss.
func (p *Pipeline) cached(ctx context.Context, c rag.Chunk) bool {
	_, ok, err := p.cache.Get(ctx, rag.NewCacheKey(c))
	if err != nil {
		logging.FromContext(ctx).Warn("ingestion: cache lookup failed", slog.Any("error", err))
		return false
	}
	return ok
}

// embedBatch embeds batch and writes every vector to the cache. dims records
// the dimensionality of the first vector seen so a misconfigured backend
// cannot mix vector sizes in one cache.
func (p *Pipeline) embedBatch(ctx context.Context, batch []rag.Chunk, dims *int) (int, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	vecs, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", rag.ErrEmbedding, err)
	}
	if len(vecs) != len(batch) {
		return 0, fmt.Errorf("%w: got %d vectors for %d chunks", rag.ErrEmbedding, len(vecs), len(batch))
	}

	for i, vec := range vecs {
		if len(vec) == 0 {
			return 0, fmt.Errorf("%w: empty vector for chunk %d", rag.ErrEmbedding, batch[i].Position)
		}
		if *dims == 0 {
			*dims = len(vec)
		}
		if len(vec) != *dims {
			return 0, fmt.Errorf("%w: chunk %d has %d dimensions, expected %d", rag.ErrEmbedding, batch[i].Position, len(vec), *dims)
		}
		if err := p.cache.Put(ctx, rag.NewCacheKey(batch[i]), vec); err != nil {
			return 0, fmt.Errorf("caching chunk %d: %w", batch[i].Position, err)
		}
	}
	return len(vecs), nil
}
