package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/server"
)

// NewServeCmd constructs the `specqa serve` command, which starts the HTTP
// API server.
func NewServeCmd() *cobra.Command {
	var (
		host string
		port int
		dir  string
		urls []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the specqa HTTP API server",
		Long: `Start the specqa HTTP API server.

Endpoints:
  POST /api/query                 answer a question (inline documents optional)
  GET  /api/queries               query history for the X-Requester header
  GET  /api/documents             list the server corpus
  POST /api/documents/summary     summarize a document
  POST /api/documents/actions     extract action items from a document
  POST /api/documents/suggestions suggest improvements to a document
  GET  /api/health, /api/ready    liveness and readiness
  GET  /metrics                   Prometheus metrics

Examples:
  specqa serve --dir ./specs
  specqa serve --port 9090
  MODEL_PROVIDER=azure SPECQA_CACHE=qdrant specqa serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := logging.FromContext(ctx)

			a, err := newApp(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer a.Close()

			if err := a.withChatModel(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if err := a.withEmbedder(ctx); err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			a.withHistory()

			reg := prometheus.DefaultRegisterer
			eng, err := a.engine(ctx, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			an, err := a.analyzer(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			src, err := a.documentSource(dir, urls)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			deps := server.Deps{Querier: eng, Documents: src, Analyzer: an}
			if a.history != nil {
				deps.History = a.history
			}

			if !cmd.Flags().Changed("host") {
				host = a.settings.Host
			}
			if !cmd.Flags().Changed("port") {
				port = a.settings.Port
			}

			srv, err := server.New(deps, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   a.pingers(),
				RateLimit: a.settings.RateLimit,
				RateBurst: a.settings.RateBurst,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			log.Info("serve starting",
				slog.String("addr", srv.Addr()),
				slog.String("provider", string(a.providerCfg.Backend)),
				slog.String("cache", a.settings.Cache),
				slog.Bool("history", a.history != nil),
			)
			return srv.Start(ctx) //nolint:wrapcheck // already prefixed by server
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to (default: SPECQA_HOST)")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on (default: SPECQA_PORT)")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of .md, .txt and .pdf documents (default: SPECQA_DOCS_DIR)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to serve instead of a directory (repeatable)")

	return cmd
}

// pingers returns the readiness probes for the components a has opened.
func (a *app) pingers() []server.Pinger {
	var ps []server.Pinger
	if a.chatModel != nil {
		ps = append(ps, server.NewLLMPinger(a.chatModel, a.providerCfg.HealthCheck(), string(a.providerCfg.Backend)))
	}
	if a.qdrant != nil {
		ps = append(ps, server.NewQdrantPinger(a.qdrant.Client()))
	}
	if a.history != nil {
		ps = append(ps, server.NewStorePinger(a.history, "history"))
	}
	return ps
}
