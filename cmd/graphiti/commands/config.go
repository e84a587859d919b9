package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewConfigCommand creates the "config" command group: inspect the
// resolved graphiti.yaml + env configuration and the derived scope paths.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathsCommand())

	return cmd
}

func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show",
		Short:         "Print the resolved configuration",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	format := outputFlag(cmd)

	cmd.RunE = func(cobraCmd *cobra.Command, _ []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		if *format == "json" {
			return printJSON(cobraCmd, cfg)
		}

		out := cobraCmd.OutOrStdout()
		fmt.Fprintf(out, "scope.prefer_project:        %v\n", cfg.Scope.PreferProject)
		fmt.Fprintf(out, "capture.batch_size:          %d\n", cfg.Capture.BatchSize)
		fmt.Fprintf(out, "capture.max_lines_per_file:  %d\n", cfg.Capture.MaxLinesPerFile)
		fmt.Fprintf(out, "indexer.cooldown_minutes:    %d\n", cfg.Indexer.CooldownMinutes)
		fmt.Fprintf(out, "indexer.processed_sha_cap:   %d\n", cfg.Indexer.ProcessedShaCap)
		fmt.Fprintf(out, "job_queue.worker_pool_size:  %d\n", cfg.JobQueue.WorkerPoolSize)
		fmt.Fprintf(out, "job_queue.max_retries:       %d\n", cfg.JobQueue.MaxRetries)
		fmt.Fprintf(out, "job_queue.base_backoff:      %s\n", cfg.JobQueue.BaseBackoff)
		fmt.Fprintf(out, "job_queue.soft_cap:          %d\n", cfg.JobQueue.SoftCap)
		fmt.Fprintf(out, "logging.level:               %s\n", cfg.Logging.Level)
		fmt.Fprintf(out, "logging.format:              %s\n", cfg.Logging.Format)

		return nil
	}

	return cmd
}

func newConfigPathsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "paths",
		Short:         "Print the on-disk paths for the resolved scope",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	format := outputFlag(cmd)

	cmd.RunE = func(cobraCmd *cobra.Command, _ []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, res, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		if *format == "json" {
			return printJSON(cobraCmd, struct {
				Scope string      `json:"scope"`
				Paths scope.Paths `json:"paths"`
			}{string(res.Scope), paths})
		}

		out := cobraCmd.OutOrStdout()
		fmt.Fprintf(out, "scope:               %s\n", res.Scope)
		fmt.Fprintf(out, "root:                %s\n", paths.Root)
		fmt.Fprintf(out, "graph_db:            %s\n", paths.GraphDB)
		fmt.Fprintf(out, "queue_dir:           %s\n", paths.QueueDir())
		fmt.Fprintf(out, "llm_queue_dir:       %s\n", paths.LLMQueueDir())
		fmt.Fprintf(out, "audit_log:           %s\n", paths.AuditLogPath())
		fmt.Fprintf(out, "pending_commits:     %s\n", paths.PendingCommitsPath())
		fmt.Fprintf(out, "capture_metadata:    %s\n", paths.CaptureMetadataPath())
		fmt.Fprintf(out, "index_state:         %s\n", paths.IndexStatePath())
		fmt.Fprintf(out, "allowlist:           %s\n", paths.AllowlistPath())
		fmt.Fprintf(out, "llm_config:          %s\n", paths.LLMConfigPath())

		return nil
	}

	return cmd
}
