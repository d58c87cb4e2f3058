package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/specqa-go/internal/engine"
	"github.com/54b3r/specqa-go/internal/logging"
	"github.com/54b3r/specqa-go/internal/store"
)

// NewHistoryCmd constructs the `specqa history` command, which lists past
// queries newest first.
func NewHistoryCmd() *cobra.Command {
	var (
		requester string
		page      int
		limit     int
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously answered queries, newest first",
		Example: `  specqa history
  specqa history --requester alice --page 2 --limit 20
  specqa history --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer a.Close()

			a.withHistory()
			if a.history == nil {
				return fmt.Errorf("history: query history is disabled or unavailable")
			}

			records, err := a.history.List(ctx, requester, page, limit)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			return printHistory(cmd.OutOrStdout(), records, asJSON)
		},
	}

	cmd.Flags().StringVar(&requester, "requester", engine.AnonymousRequester, "Whose history to list")
	cmd.Flags().IntVar(&page, "page", 1, "1-based page number")
	cmd.Flags().IntVar(&limit, "limit", store.DefaultPageSize, fmt.Sprintf("Records per page (max %d)", store.MaxPageSize))
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the records as JSON")

	return cmd
}
