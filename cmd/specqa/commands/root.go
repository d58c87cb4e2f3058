// Package commands defines all Cobra CLI commands for the specqa binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/54b3r/specqa-go/internal/audit"
	"github.com/54b3r/specqa-go/internal/config"
	"github.com/54b3r/specqa-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "specqa",
		Short: "specqa answers questions about your product specifications",
		Long: `specqa is a retrieval-augmented question answering tool for product
specifications.

It splits your documents into sentence-aligned chunks, ranks them against the
question by embedding similarity, and asks the model for an answer grounded in
the top-ranked chunks, with citations back to the source documents.

The model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.specqa/config.yaml).
See 'specqa --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()

			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}

			// LOG_LEVEL and LOG_FORMAT may have come from the config file.
			log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), log))

			audit.LogCommandStart(log, cmd.Name(), args, path)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.specqa/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewIndexCmd(),
		NewHistoryCmd(),
		NewSummarizeCmd(),
		NewActionsCmd(),
		NewSuggestCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
