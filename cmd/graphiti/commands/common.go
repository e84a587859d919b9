package commands

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/config"
	"github.com/sumatoshi-tech/graphiti/pkg/graphadapter"
	"github.com/sumatoshi-tech/graphiti/pkg/graphengine/localstore"
	"github.com/sumatoshi-tech/graphiti/pkg/jobqueue"
	"github.com/sumatoshi-tech/graphiti/pkg/llm"
	"github.com/sumatoshi-tech/graphiti/pkg/llmconfig"
	"github.com/sumatoshi-tech/graphiti/pkg/llmqueue"
	"github.com/sumatoshi-tech/graphiti/pkg/observability"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
	"github.com/sumatoshi-tech/graphiti/pkg/version"
)

// UsageError marks a bad command invocation (mutually exclusive flags, a
// missing required argument). main maps it onto exit code 2; every other
// error maps onto exit code 1.
type UsageError struct {
	msg string
}

func (e *UsageError) Error() string { return e.msg }

func usageErrorf(format string, args ...any) error {
	return &UsageError{msg: fmt.Sprintf(format, args...)}
}

// scopeFlags holds the --global/--project flags shared by every command
// that touches scoped on-disk state (4.K).
type scopeFlags struct {
	global  bool
	project bool
}

func addScopeFlags(cmd *cobra.Command) *scopeFlags {
	f := &scopeFlags{}

	cmd.Flags().BoolVar(&f.global, "global", false, "operate on the global (per-user) graph")
	cmd.Flags().BoolVar(&f.project, "project", false, "operate on the project graph for the current directory")

	return f
}

// resolve determines GLOBAL vs PROJECT per 4.K and derives the on-disk
// paths for that scope. kind lets hook-install-style operations force
// OperationAlwaysGlobal regardless of the flags.
func (f *scopeFlags) resolve(kind scope.OperationKind, cfg *config.Config) (scope.Paths, scope.Resolution, error) {
	if f.global && f.project {
		return scope.Paths{}, scope.Resolution{}, usageErrorf("--global and --project are mutually exclusive")
	}

	prefer := cfg.Scope.PreferProject

	switch {
	case f.global:
		prefer = false
	case f.project:
		prefer = true
	}

	res, err := scope.DetermineScope(kind, prefer, "")
	if err != nil {
		return scope.Paths{}, scope.Resolution{}, fmt.Errorf("resolve scope: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return scope.Paths{}, scope.Resolution{}, fmt.Errorf("resolve home directory: %w", err)
	}

	return scope.DerivePaths(res, home), res, nil
}

// outputFlag adds the shared --format flag (text|json) every read command
// exposes; the specification's CLI surface is JSON-mode-first, rendering
// ergonomics beyond that are out of scope.
func outputFlag(cmd *cobra.Command) *string {
	format := new(string)
	*format = "text"
	cmd.Flags().StringVar(format, "format", "text", `output format: "text" or "json"`)

	return format
}

func printJSON(cobraCmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cobraCmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// loadCLIConfig loads graphiti's layered configuration for a one-shot CLI
// invocation. An explicit config path is not currently exposed as a flag,
// so every command searches the standard locations.
func loadCLIConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig("")
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return cfg, nil
}

// cliLogger builds a structured logger for a one-shot CLI invocation,
// honoring the root command's --verbose/--quiet persistent flags.
func cliLogger(cobraCmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo

	if verbose, _ := cobraCmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	if quiet, _ := cobraCmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version.Version
	obsCfg.LogLevel = level
	obsCfg.LogJSON = false

	providers, err := observability.Init(obsCfg)
	if err != nil {
		return slog.Default()
	}

	return providers.Logger
}

// openStore opens the reference graph store for a resolved scope.
func openStore(paths scope.Paths) (*localstore.Store, error) {
	store, err := localstore.Open(paths.GraphDB)
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}

	return store, nil
}

// openLLM wires the LLM transport + failed-request queue + graphengine
// adapter for a resolved scope, per 4.B/4.C/4.D.
func openLLM(paths scope.Paths, logger *slog.Logger) (*graphadapter.Adapter, *llmqueue.Queue, error) {
	llmCfg, err := llmconfig.Load(paths.LLMConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load llm config: %w", err)
	}

	if err := os.MkdirAll(paths.LLMQueueDir(), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create llm queue dir: %w", err)
	}

	queue, err := llmqueue.Open(filepath.Join(paths.LLMQueueDir(), "queue.db"), llmCfg.Queue.MaxSize, llmCfg.QueueTTL())
	if err != nil {
		return nil, nil, fmt.Errorf("open llm queue: %w", err)
	}

	transport := llm.New(llmCfg, paths.Root, queue, logger)

	return graphadapter.New(transport), queue, nil
}

// openLLMQueueReadOnly opens just the failed-request queue (4.C), without
// standing up the full LLM transport, for diagnostics.
func openLLMQueueReadOnly(paths scope.Paths, llmCfg llmconfig.Config) (*llmqueue.Queue, error) {
	if err := os.MkdirAll(paths.LLMQueueDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create llm queue dir: %w", err)
	}

	queue, err := llmqueue.Open(filepath.Join(paths.LLMQueueDir(), "queue.db"), llmCfg.Queue.MaxSize, llmCfg.QueueTTL())
	if err != nil {
		return nil, fmt.Errorf("open llm queue: %w", err)
	}

	return queue, nil
}

// openJobQueue opens the background job queue store for a resolved scope.
func openJobQueue(paths scope.Paths) (*jobqueue.Store, error) {
	if err := os.MkdirAll(paths.QueueDir(), 0o755); err != nil {
		return nil, fmt.Errorf("create job queue dir: %w", err)
	}

	store, err := jobqueue.Open(filepath.Join(paths.QueueDir(), "queue.db"))
	if err != nil {
		return nil, fmt.Errorf("open job queue: %w", err)
	}

	return store, nil
}
