package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewCompactCommand creates the "compact" command: rebuild/tidy the
// graph store's secondary state.
func NewCompactCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "compact",
		Short:         "Compact the knowledge graph store",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)

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

		if err := store.Compact(cobraCmd.Context()); err != nil {
			return fmt.Errorf("compact: %w", err)
		}

		fmt.Fprintln(cobraCmd.OutOrStdout(), "compact complete")

		return nil
	}

	return cmd
}
