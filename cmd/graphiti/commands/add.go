package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewAddCommand creates the "add" command: manually append an episode to
// the graph, bypassing the capture/index pipelines.
func NewAddCommand() *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:           "add [text]",
		Short:         "Add a manual episode to the knowledge graph",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	cmd.Flags().StringVar(&source, "source", "", "source tag recorded on the episode")

	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
		body := strings.Join(args, " ")

		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, res, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		store, err := openStore(paths)
		if err != nil {
			return err
		}

		ep := graphengine.Episode{
			Name:          fmt.Sprintf("manual_%d", time.Now().UnixNano()),
			Body:          body,
			ReferenceTime: time.Now(),
			GroupID:       string(res.Scope),
			SourceDesc:    sourceOrDefault(source),
		}

		if err := store.AddEpisode(cobraCmd.Context(), ep); err != nil {
			return fmt.Errorf("add episode: %w", err)
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "added episode %s\n", ep.Name)

		return nil
	}

	return cmd
}

func sourceOrDefault(source string) string {
	if source == "" {
		return "manual"
	}

	return "manual:" + source
}
