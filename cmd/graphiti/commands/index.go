package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
	"github.com/sumatoshi-tech/graphiti/pkg/indexer"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

// NewIndexCommand creates the "index" command: the git history indexer
// (4.I), a one-shot (or resumable) backfill of the repository's past
// commits into the graph.
func NewIndexCommand() *cobra.Command {
	var (
		since string
		full  bool
	)

	cmd := &cobra.Command{
		Use:           "index",
		Short:         "Index git commit history into the knowledge graph",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	format := outputFlag(cmd)
	cmd.Flags().StringVar(&since, "since", "", "resume cursor: a commit SHA or a date (YYYY-MM-DD); empty resumes from saved state")
	cmd.Flags().BoolVar(&full, "full", false, "ignore saved state and re-index everything from HEAD")

	cmd.RunE = func(cobraCmd *cobra.Command, _ []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, res, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		root, err := resolveProjectRoot()
		if err != nil {
			return err
		}

		repo, err := gitlib.OpenRepository(root)
		if err != nil {
			return fmt.Errorf("open repository: %w", err)
		}
		defer repo.Free()

		logger := cliLogger(cobraCmd)

		allowlist, err := security.LoadAllowlist(paths.Root, true)
		if err != nil {
			return fmt.Errorf("load allowlist: %w", err)
		}

		audit := security.NewFileAuditLog(paths.AuditLogPath(), 10, 5)
		defer audit.Close() //nolint:errcheck // best-effort flush on CLI exit.

		store, err := openStore(paths)
		if err != nil {
			return err
		}

		llmClient, queue, err := openLLM(paths, logger)
		if err != nil {
			return err
		}
		defer queue.Close() //nolint:errcheck // best-effort close on CLI exit.

		pipeline := &indexer.Pipeline{
			Repo:      repo,
			Sanitizer: security.NewSanitizer(allowlist, audit),
			LLM:       llmClient,
			Store:     store,
			StateDir:  paths.Root,
			GroupID:   string(res.Scope),
			Logger:    logger,
		}

		result, err := pipeline.Run(cobraCmd.Context(), since, full)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}

		if *format == "json" {
			return printJSON(cobraCmd, result)
		}

		if result.SkippedReason != "" {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "skipped: %s\n", result.SkippedReason)

			return nil
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "walked %d, indexed %d, skipped %d, episodes emitted %d\n",
			result.CommitsWalked, result.CommitsIndexed, result.CommitsSkipped, result.EpisodesEmitted)

		return nil
	}

	return cmd
}
