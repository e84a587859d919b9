package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/jobqueue"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// NewQueueCommand creates the "queue" command group: inspecting and
// driving the background job queue (4.H) that decouples CLI-triggered
// work (capture, index) from its actual execution.
func NewQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and run the background job queue",
	}

	cmd.AddCommand(newQueueListCommand())
	cmd.AddCommand(newQueueDeadLetterCommand())
	cmd.AddCommand(newQueueRequeueCommand())
	cmd.AddCommand(newQueueWorkCommand())

	return cmd
}

func newQueueListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "Show the pending job count",
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

		paths, _, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		store, err := openJobQueue(paths)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best-effort close on CLI exit.

		pending, err := store.PendingCount(cobraCmd.Context())
		if err != nil {
			return fmt.Errorf("count pending jobs: %w", err)
		}

		if *format == "json" {
			return printJSON(cobraCmd, map[string]int{"pending": pending})
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "pending jobs: %d\n", pending)

		return nil
	}

	return cmd
}

func newQueueDeadLetterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dead-letter",
		Short:         "List jobs that exhausted their retries",
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

		paths, _, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		store, err := openJobQueue(paths)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best-effort close on CLI exit.

		jobs, err := store.ListDeadLetter(cobraCmd.Context())
		if err != nil {
			return fmt.Errorf("list dead-letter jobs: %w", err)
		}

		if *format == "json" {
			return printJSON(cobraCmd, jobs)
		}

		if len(jobs) == 0 {
			fmt.Fprintln(cobraCmd.OutOrStdout(), "no dead-letter jobs")

			return nil
		}

		for _, j := range jobs {
			fmt.Fprintf(cobraCmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", j.ID, j.Type, j.FailedAt.Format("2006-01-02 15:04:05"), j.FinalError)
		}

		return nil
	}

	return cmd
}

func newQueueRequeueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "requeue [job-id]",
		Short:         "Requeue a dead-letter job for another attempt",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)

	cmd.RunE = func(cobraCmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, _, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		store, err := openJobQueue(paths)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best-effort close on CLI exit.

		if err := store.RequeueDeadLetter(cobraCmd.Context(), args[0]); err != nil {
			return fmt.Errorf("requeue %s: %w", args[0], err)
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "requeued %s\n", args[0])

		return nil
	}

	return cmd
}

func newQueueWorkCommand() *cobra.Command {
	var poolSize int

	cmd := &cobra.Command{
		Use:   "work",
		Short: "Run the background worker loop until interrupted",
		Long: `Run the background worker loop, draining jobs enqueued by other
graphiti commands (e.g. index or capture dispatched asynchronously) until
the process receives an interrupt.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	cmd.Flags().IntVar(&poolSize, "pool-size", 0, "concurrent worker slots (0 = use configured job_queue.worker_pool_size)")

	cmd.RunE = func(cobraCmd *cobra.Command, _ []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}

		paths, _, err := flags.resolve(scope.OperationScoped, cfg)
		if err != nil {
			return err
		}

		store, err := openJobQueue(paths)
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck // best-effort close on CLI exit.

		logger := cliLogger(cobraCmd)

		size := poolSize
		if size <= 0 {
			size = cfg.JobQueue.WorkerPoolSize
		}

		worker := &jobqueue.Worker{
			Store:       store,
			Handlers:    map[string]jobqueue.Handler{},
			PoolSize:    size,
			MaxRetries:  cfg.JobQueue.MaxRetries,
			BaseBackoff: cfg.JobQueue.BaseBackoff,
			Logger:      logger,
		}

		worker.Start(cobraCmd.Context())

		fmt.Fprintln(cobraCmd.OutOrStdout(), "worker running, press ctrl-c to stop")

		<-cobraCmd.Context().Done()

		worker.Stop()

		return nil
	}

	return cmd
}
