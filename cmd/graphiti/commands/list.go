package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewListCommand creates the "list" command: enumerate stored episodes,
// most recent first.
func NewListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List episodes in the knowledge graph",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	format := outputFlag(cmd)
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum episodes to list (0 = all)")

	cmd.RunE = func(cobraCmd *cobra.Command, _ []string) error {
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

		episodes := store.List()
		if limit > 0 && len(episodes) > limit {
			episodes = episodes[:limit]
		}

		if *format == "json" {
			return printJSON(cobraCmd, episodes)
		}

		if len(episodes) == 0 {
			fmt.Fprintln(cobraCmd.OutOrStdout(), "no episodes")

			return nil
		}

		for _, ep := range episodes {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "%s\t%s\t%s\n", ep.Name, ep.SourceDesc, ep.ReferenceTime.Format("2006-01-02 15:04"))
		}

		return nil
	}

	return cmd
}
