// Package main provides the entry point for the graphiti CLI tool.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/cmd/graphiti/commands"
	"github.com/sumatoshi-tech/graphiti/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "graphiti",
		Short: "A developer knowledge graph that learns from git history and AI conversations",
		Long: `graphiti builds a per-project (or global) knowledge graph from two streams:
git commit history and AI-assistant conversation transcripts. Captured content
is summarized by an LLM and stored as episodes in an embedded graph database,
searchable from the CLI or from an AI assistant over MCP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewAddCommand())
	rootCmd.AddCommand(commands.NewSearchCommand())
	rootCmd.AddCommand(commands.NewListCommand())
	rootCmd.AddCommand(commands.NewShowCommand())
	rootCmd.AddCommand(commands.NewDeleteCommand())
	rootCmd.AddCommand(commands.NewSummarizeCommand())
	rootCmd.AddCommand(commands.NewCompactCommand())
	rootCmd.AddCommand(commands.NewHealthCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewCaptureCommand())
	rootCmd.AddCommand(commands.NewIndexCommand())
	rootCmd.AddCommand(commands.NewHooksCommand())
	rootCmd.AddCommand(commands.NewQueueCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)

		var usageErr *commands.UsageError
		if errors.As(err, &usageErr) {
			os.Exit(2)
		}

		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cobraCmd *cobra.Command, _ []string) {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "graphiti %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
