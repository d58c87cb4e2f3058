package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/specqa-go/internal/engine"
	"github.com/54b3r/specqa-go/internal/logging"
)

// NewAskCmd constructs the `specqa ask` command, which answers one question
// over the document corpus and prints the cited answer.
func NewAskCmd() *cobra.Command {
	var (
		dir       string
		urls      []string
		topK      int
		requester string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about your specifications",
		Long: `Ask a natural language question about the documents in a directory
(--dir, default SPECQA_DOCS_DIR) or at a set of URLs (--url).

The answer cites the documents it was drawn from. Answered queries are
recorded in the local history unless SPECQA_HISTORY_DB=disabled.

Examples:
  specqa ask "What authentication does the mobile app require?"
  specqa ask --dir ./specs --top-k 8 "Which features are planned for Q3?"
  specqa ask --url https://example.com/spec.md --json "Is SSO supported?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			a, err := newApp(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.Close()

			if err := a.withChatModel(ctx); err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			if err := a.withEmbedder(ctx); err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			a.withHistory()

			eng, err := a.engine(ctx, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			src, err := a.documentSource(dir, urls)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			docs, err := src.Load(ctx)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			resp, err := eng.Query(ctx, engine.Request{
				Query:     strings.Join(args, " "),
				Requester: requester,
				TopK:      topK,
			}, docs)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			return printResponse(cmd.OutOrStdout(), resp, asJSON)
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory of .md, .txt and .pdf documents (default: SPECQA_DOCS_DIR)")
	cmd.Flags().StringArrayVarP(&urls, "url", "u", nil, "Document URL to query instead of a directory (repeatable)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of chunks used as evidence (default: SPECQA_TOP_K or 5)")
	cmd.Flags().StringVar(&requester, "requester", "", "Name recorded with the query in history (default: anonymous)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the response as JSON")

	return cmd
}
