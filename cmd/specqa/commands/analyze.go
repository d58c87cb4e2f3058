package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/54b3r/specqa-go/internal/analysis"
	"github.com/54b3r/specqa-go/internal/docsource"
	"github.com/54b3r/specqa-go/internal/logging"
)

// analyzeFunc runs one analysis over content and prints the result.
type analyzeFunc func(ctx context.Context, an *analysis.Analyzer, content string, w io.Writer, asJSON bool) error

// NewSummarizeCmd constructs the `specqa summarize` command.
func NewSummarizeCmd() *cobra.Command {
	return newAnalyzeCmd("summarize", "Summarize a specification",
		func(ctx context.Context, an *analysis.Analyzer, content string, w io.Writer, asJSON bool) error {
			summary, err := an.Summarize(ctx, content)
			if err != nil {
				return err //nolint:wrapcheck // wrapped by the command
			}
			if asJSON {
				return printJSON(w, map[string]string{"summary": summary})
			}
			_, err = fmt.Fprintln(w, summary)
			return err //nolint:wrapcheck // CLI output
		})
}

// NewActionsCmd constructs the `specqa actions` command.
func NewActionsCmd() *cobra.Command {
	return newAnalyzeCmd("actions", "Extract action items from a specification",
		func(ctx context.Context, an *analysis.Analyzer, content string, w io.Writer, asJSON bool) error {
			actions, err := an.ActionItems(ctx, content)
			if err != nil {
				return err //nolint:wrapcheck // wrapped by the command
			}
			if asJSON {
				return printJSON(w, map[string][]string{"actions": actions})
			}
			return printList(w, actions, "No action items found.")
		})
}

// NewSuggestCmd constructs the `specqa suggest` command.
func NewSuggestCmd() *cobra.Command {
	return newAnalyzeCmd("suggest", "Suggest improvements to a specification",
		func(ctx context.Context, an *analysis.Analyzer, content string, w io.Writer, asJSON bool) error {
			suggestions, err := an.Suggestions(ctx, content)
			if err != nil {
				return err //nolint:wrapcheck // wrapped by the command
			}
			if asJSON {
				return printJSON(w, map[string][]string{"suggestions": suggestions})
			}
			return printList(w, suggestions, "No suggestions.")
		})
}

// newAnalyzeCmd builds a whole-document command. The document is a file
// argument, or --doc selects one by ID from --dir.
func newAnalyzeCmd(name, short string, run analyzeFunc) *cobra.Command {
	var (
		dir    string
		docID  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   name + " [file]",
		Short: short,
		Example: fmt.Sprintf(`  specqa %[1]s ./specs/checkout.md
  specqa %[1]s --dir ./specs --doc payments/refunds.md`, name),
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := newApp(logging.FromContext(ctx))
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			defer a.Close()

			content, err := analysisContent(ctx, a, args, dir, docID)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := a.withChatModel(ctx); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			an, err := a.analyzer(ctx)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if err := run(ctx, an, content, cmd.OutOrStdout(), asJSON); err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to look --doc up in (default: SPECQA_DOCS_DIR)")
	cmd.Flags().StringVar(&docID, "doc", "", "Document ID (path relative to --dir)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")

	return cmd
}

// analysisContent resolves the text to analyse from a file argument or a
// document ID.
func analysisContent(ctx context.Context, a *app, args []string, dir, docID string) (string, error) {
	switch {
	case len(args) == 1 && docID != "":
		return "", fmt.Errorf("give either a file or --doc, not both")
	case len(args) == 1:
		return docsource.ReadFile(args[0]) //nolint:wrapcheck // already prefixed by docsource
	case docID == "":
		return "", fmt.Errorf("a file argument or --doc is required")
	}

	if dir == "" {
		dir = a.settings.DocsDir
	}
	// The lookup is by ID, so the newest-first cap does not apply.
	docs, err := docsource.Dir{Root: dir, Limit: -1}.Load(ctx)
	if err != nil {
		return "", err //nolint:wrapcheck // already prefixed by docsource
	}
	for _, d := range docs {
		if d.ID == docID {
			return d.Content, nil
		}
	}
	return "", fmt.Errorf("document %q not found", docID)
}
