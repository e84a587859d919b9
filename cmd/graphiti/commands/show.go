package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewShowCommand creates the "show" command: print one episode by exact name.
func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show [name]",
		Short:         "Show a single episode by name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	format := outputFlag(cmd)

	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
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

		ep, found := store.Show(args[0])
		if !found {
			return fmt.Errorf("episode %q not found", args[0])
		}

		if *format == "json" {
			return printJSON(cobraCmd, ep)
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "name: %s\nsource: %s\ngroup: %s\ntime: %s\n\n%s\n",
			ep.Name, ep.SourceDesc, ep.GroupID, ep.ReferenceTime.Format("2006-01-02 15:04:05"), ep.Body)

		return nil
	}

	return cmd
}
