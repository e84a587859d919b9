package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewSearchCommand creates the "search" command: keyword search over the
// graph's stored episodes.
func NewSearchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "search [query]",
		Short:         "Search the knowledge graph",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	format := outputFlag(cmd)
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results to return")

	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")

		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, _, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		store, err := openStore(paths)
		if err != nil {
			return err
		}

		results, err := store.Search(cobraCmd.Context(), query, limit)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}

		if *format == "json" {
			return printJSON(cobraCmd, results)
		}

		if len(results) == 0 {
			fmt.Fprintln(cobraCmd.OutOrStdout(), "no matches")

			return nil
		}

		for _, r := range results {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "[%.2f] %s (%s)\n%s\n\n", r.Score, r.Name, r.SourceDesc, r.Body)
		}

		return nil
	}

	return cmd
}
