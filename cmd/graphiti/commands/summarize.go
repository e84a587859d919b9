package commands

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/capture"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

// NewSummarizeCommand creates the "summarize" command: run arbitrary text
// (an argument, or stdin) through the security filter and LLM summarizer
// and store the result as an episode, per 4.G's summarize_and_store.
func NewSummarizeCommand() *cobra.Command {
	var (
		source     string
		itemsLabel string
	)

	cmd := &cobra.Command{
		Use:           "summarize [text]",
		Short:         "Summarize text (or stdin) and store it as an episode",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	cmd.Flags().StringVar(&source, "source", "cli-summarize", "source tag recorded on the episode")
	cmd.Flags().StringVar(&itemsLabel, "items-label", "item", "label describing the items being summarized")

	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
		text, err := readSummarizeInput(cobraCmd, args)
		if err != nil {
			return err
		}

		if strings.TrimSpace(text) == "" {
			return usageErrorf("summarize requires non-empty text, either as an argument or on stdin")
		}

		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, res, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

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

		pipeline := &capture.Pipeline{
			Sanitizer: security.NewSanitizer(allowlist, audit),
			LLM:       llmClient,
			Store:     store,
			Logger:    logger,
		}

		handle, err := pipeline.SummarizeAndStore(cobraCmd.Context(), []string{text}, source, itemsLabel, string(res.Scope), nil)
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}

		if handle == nil {
			fmt.Fprintln(cobraCmd.OutOrStdout(), "nothing to summarize")

			return nil
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "stored episode %s\n", handle.Name)

		return nil
	}

	return cmd
}

func readSummarizeInput(cobraCmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	data, err := io.ReadAll(bufio.NewReader(cobraCmd.InOrStdin()))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	return string(data), nil
}
