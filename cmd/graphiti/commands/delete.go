package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewDeleteCommand creates the "delete" command: remove one episode by
// exact name, or every episode whose source_desc contains a substring.
func NewDeleteCommand() *cobra.Command {
	var bySource string

	cmd := &cobra.Command{
		Use:           "delete [name]",
		Short:         "Delete an episode from the knowledge graph",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	cmd.Flags().StringVar(&bySource, "source-contains", "", "delete every episode whose source_desc contains this substring, instead of a single name")

	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
		if bySource == "" && len(args) == 0 {
			return usageErrorf("delete requires either a name argument or --source-contains")
		}

		if bySource != "" && len(args) > 0 {
			return usageErrorf("delete takes either a name argument or --source-contains, not both")
		}

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

		if bySource != "" {
			removed, err := store.DeleteEpisodesBySourceSubstring(cobraCmd.Context(), bySource)
			if err != nil {
				return fmt.Errorf("delete by source: %w", err)
			}

			fmt.Fprintf(cobraCmd.OutOrStdout(), "deleted %d episode(s)\n", removed)

			return nil
		}

		found, err := store.Delete(args[0])
		if err != nil {
			return fmt.Errorf("delete %q: %w", args[0], err)
		}

		if !found {
			return fmt.Errorf("episode %q not found", args[0])
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "deleted %s\n", args[0])

		return nil
	}

	return cmd
}
