package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/54b3r/specqa-go/internal/config"
	"github.com/54b3r/specqa-go/internal/ingestion"
	"github.com/54b3r/specqa-go/internal/logging"
)

// NewIndexCmd constructs the `specqa index` command, which pre-computes chunk
// embeddings for a document set and stores them in the embedding cache.
func NewIndexCmd() *cobra.Command {
	var (
		dir   string
		urls  []string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Pre-compute chunk embeddings into the embedding cache",
		Long: `Chunk and embed every document so later queries only embed the question.

Indexing is useful with SPECQA_CACHE=qdrant, where embeddings outlive the
process. Chunks already present in the cache are skipped unless --force is set.

Environment variables:
  SPECQA_CACHE         none | memory | qdrant (default: memory)
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: specqa-embeddings)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_*          Embedding provider overrides

Examples:
  SPECQA_CACHE=qdrant specqa index --dir ./specs
  specqa index --url https://example.com/spec.md --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, err := newApp(log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			defer a.Close()

			switch a.settings.Cache {
			case config.CacheNone:
				return fmt.Errorf("index: embedding cache is disabled (SPECQA_CACHE=none), nothing to index")
			case config.CacheMemory:
				log.Warn("index: the in-memory cache does not outlive this process; set SPECQA_CACHE=qdrant to persist embeddings")
			}

			if err := a.withEmbedder(ctx); err != nil {
				return fmt.Errorf("index: %w", err)
			}
			src, err := a.documentSource(dir, urls)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}
			docs, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			pipeline, err := ingestion.NewPipeline(a.embedder, a.cache, ingestion.Config{
				ChunkSize: a.settings.ChunkSize,
				BatchSize: a.settings.BatchSize,
				Force:     force,
			})
			if err != nil {
				return fmt.Errorf("index: failed to create pipeline: %w", err)
			}

			log.Info("starting indexing", slog.Int("documents", len(docs)))
			stats, err := pipeline.Warm(ctx, docs, func(msg string) { log.Info(msg) })
			if err != nil {
				return fmt.Errorf("index: pipeline failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents: %d chunks, %d embedded, %d already cached\n",
				stats.Documents, stats.Chunks, stats.Embedded, stats.Cached)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of .md, .txt and .pdf documents (default: SPECQA_DOCS_DIR)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to index instead of a directory (repeatable)")
	cmd.Flags().BoolVar(&force, "force", false, "Re-embed chunks that are already cached")

	return cmd
}
