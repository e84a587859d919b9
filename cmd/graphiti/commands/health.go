package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/hooks"
	"github.com/sumatoshi-tech/graphiti/pkg/llmconfig"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
)

// healthReport is the structured result of "graphiti health".
type healthReport struct {
	Scope           string `json:"scope"`
	GraphDBPath     string `json:"graph_db_path"`
	GraphDBOK       bool   `json:"graph_db_ok"`
	EpisodeCount    int    `json:"episode_count"`
	LLMConfigOK     bool   `json:"llm_config_ok"`
	CloudConfigured bool   `json:"cloud_configured"`
	PendingLLMItems int    `json:"pending_llm_items"`
	PendingJobs     int    `json:"pending_jobs"`
	DeadLetterJobs  int    `json:"dead_letter_jobs"`
	HooksInstalled  int    `json:"hooks_installed"`
	HooksTotal      int    `json:"hooks_total"`
}

// NewHealthCommand creates the "health" command: a quick diagnostic sweep
// over every component's on-disk and config state.
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "health",
		Short:         "Check the health of the knowledge graph and its components",
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

		report := healthReport{Scope: string(res.Scope), GraphDBPath: paths.GraphDB}

		store, err := openStore(paths)
		if err == nil {
			report.GraphDBOK = true
			report.EpisodeCount = len(store.List())
		}

		llmCfg, llmErr := llmconfig.Load(paths.LLMConfigPath())
		report.LLMConfigOK = llmErr == nil
		report.CloudConfigured = llmErr == nil && llmCfg.Cloud.APIKey != ""

		if queue, qErr := openLLMQueueReadOnly(paths, llmCfg); qErr == nil {
			if n, cErr := queue.Len(cobraCmd.Context()); cErr == nil {
				report.PendingLLMItems = n
			}

			queue.Close() //nolint:errcheck // best-effort close.
		}

		if jq, jErr := openJobQueue(paths); jErr == nil {
			if n, cErr := jq.PendingCount(cobraCmd.Context()); cErr == nil {
				report.PendingJobs = n
			}

			if dl, dErr := jq.ListDeadLetter(cobraCmd.Context()); dErr == nil {
				report.DeadLetterJobs = len(dl)
			}

			jq.Close() //nolint:errcheck // best-effort close.
		}

		installer := hooks.New(projectHooksDir(res))
		report.HooksTotal = len(hooks.HookNames)

		for _, name := range hooks.HookNames {
			if installer.IsInstalled(name) {
				report.HooksInstalled++
			}
		}

		if *format == "json" {
			return printJSON(cobraCmd, report)
		}

		printHealthText(cobraCmd, report)

		return nil
	}

	return cmd
}

func printHealthText(cobraCmd *cobra.Command, r healthReport) {
	out := cobraCmd.OutOrStdout()

	fmt.Fprintf(out, "scope:            %s\n", r.Scope)
	fmt.Fprintf(out, "graph db:         %s (ok=%v, episodes=%d)\n", r.GraphDBPath, r.GraphDBOK, r.EpisodeCount)
	fmt.Fprintf(out, "llm config:       ok=%v cloud_configured=%v\n", r.LLMConfigOK, r.CloudConfigured)
	fmt.Fprintf(out, "pending llm:      %d\n", r.PendingLLMItems)
	fmt.Fprintf(out, "pending jobs:     %d (dead-letter: %d)\n", r.PendingJobs, r.DeadLetterJobs)
	fmt.Fprintf(out, "hooks installed:  %d/%d\n", r.HooksInstalled, r.HooksTotal)
}

// projectHooksDir resolves the git hooks directory for the current
// project, regardless of global/project graph scope (hook health is
// always reported against the repo graphiti is actually run from).
func projectHooksDir(res scope.Resolution) string {
	if res.ProjectRoot == "" {
		return ""
	}

	return res.ProjectRoot + "/.git/hooks"
}
