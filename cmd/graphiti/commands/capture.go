package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/capture"
	"github.com/sumatoshi-tech/graphiti/pkg/convcapture"
	"github.com/sumatoshi-tech/graphiti/pkg/gitcapture"
	"github.com/sumatoshi-tech/graphiti/pkg/gitlib"
	"github.com/sumatoshi-tech/graphiti/pkg/scope"
	"github.com/sumatoshi-tech/graphiti/pkg/security"
)

// NewCaptureCommand creates the "capture" command group: the live,
// incremental capture side of 4.E/4.F/4.G — processing commits accumulated
// by the post-commit/post-merge/post-checkout/post-rewrite hooks, and
// summarizing AI-assistant conversation transcripts on session Stop.
func NewCaptureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture git commits or AI-assistant conversations into the graph",
	}

	cmd.AddCommand(newCaptureCommitsCommand())
	cmd.AddCommand(newCaptureConversationCommand())

	return cmd
}

// newCapturePipeline wires the shared security/LLM/store plumbing every
// capture subcommand needs.
func newCapturePipeline(cobraCmd *cobra.Command, paths scope.Paths) (*capture.Pipeline, func(), error) {
	logger := cliLogger(cobraCmd)

	allowlist, err := security.LoadAllowlist(paths.Root, true)
	if err != nil {
		return nil, nil, fmt.Errorf("load allowlist: %w", err)
	}

	audit := security.NewFileAuditLog(paths.AuditLogPath(), 10, 5)

	store, err := openStore(paths)
	if err != nil {
		audit.Close() //nolint:errcheck // best-effort cleanup on early return.

		return nil, nil, err
	}

	llmClient, queue, err := openLLM(paths, logger)
	if err != nil {
		audit.Close() //nolint:errcheck // best-effort cleanup on early return.

		return nil, nil, err
	}

	pipeline := &capture.Pipeline{
		Sanitizer: security.NewSanitizer(allowlist, audit),
		LLM:       llmClient,
		Store:     store,
		Logger:    logger,
	}

	cleanup := func() {
		queue.Close() //nolint:errcheck // best-effort close on CLI exit.
		audit.Close() //nolint:errcheck // best-effort flush on CLI exit.
	}

	return pipeline, cleanup, nil
}

func newCaptureCommitsCommand() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:           "commits",
		Short:         "Process pending commits accumulated by the git hooks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "batch size override (0 = use configured capture.batch_size)")

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

		pipeline, cleanup, err := newCapturePipeline(cobraCmd, paths)
		if err != nil {
			return err
		}
		defer cleanup()

		size := batchSize
		if size <= 0 {
			size = cfg.Capture.BatchSize
		}

		fetch := func(shaHex string) (gitcapture.CommitDiff, string, error) {
			hash := gitlib.NewHash(shaHex)

			cd, err := gitcapture.FetchCommitDiff(cobraCmd.Context(), repo, hash, cfg.Capture.MaxLinesPerFile)
			if err != nil {
				return gitcapture.CommitDiff{}, "", err
			}

			return cd, cd.Subject, nil
		}

		result, err := pipeline.ProcessPendingCommits(cobraCmd.Context(), fetch, paths.PendingCommitsPath(), string(res.Scope), size)
		if err != nil {
			return fmt.Errorf("process pending commits: %w", err)
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "stored %d episode(s), skipped %d commit(s)\n", result.EpisodesStored, result.Skipped)

		return nil
	}

	return cmd
}

// hookStopPayload is the JSON an AI-assistant Stop hook passes on stdin.
type hookStopPayload struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
}

func newCaptureConversationCommand() *cobra.Command {
	var (
		auto           bool
		transcriptPath string
		sessionID      string
	)

	cmd := &cobra.Command{
		Use:   "conversation",
		Short: "Summarize an AI-assistant conversation transcript into the graph",
		Long: `Summarize an AI-assistant conversation transcript into the graph.

Reads transcript_path/session_id either from --transcript/--session-id or,
if unset, as a JSON object on stdin (the convention AI-assistant Stop hooks
use to pass session context to an invoked command).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := addScopeFlags(cmd)
	cmd.Flags().BoolVar(&auto, "auto", false, "only summarize turns not already captured (per-session watermark)")
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "path to the JSONL transcript file")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session identifier (used as the episode's scope discriminator)")

	cmd.RunE = func(cobraCmd *cobra.Command, _ []string) error {
		if transcriptPath == "" {
			payload, err := readHookStopPayload(cobraCmd)
			if err != nil {
				return err
			}

			transcriptPath = payload.TranscriptPath
			if sessionID == "" {
				sessionID = payload.SessionID
			}
		}

		if transcriptPath == "" {
			return usageErrorf("capture conversation requires --transcript or a transcript_path on stdin")
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

		captured, found, err := convcapture.Capture(transcriptPath, sessionID, auto, paths.Root, logger)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}

		if !found {
			fmt.Fprintln(cobraCmd.OutOrStdout(), "no new turns to capture")

			return nil
		}

		pipeline, cleanup, err := newCapturePipeline(cobraCmd, paths)
		if err != nil {
			return err
		}
		defer cleanup()

		handle, err := pipeline.SummarizeAndStore(cobraCmd.Context(), []string{captured.Text}, "conversation:"+sessionID, "turn", string(res.Scope), nil)
		if err != nil {
			return fmt.Errorf("summarize conversation: %w", err)
		}

		if handle == nil {
			fmt.Fprintln(cobraCmd.OutOrStdout(), "nothing to summarize")

			return nil
		}

		fmt.Fprintf(cobraCmd.OutOrStdout(), "stored episode %s (%d turns)\n", handle.Name, captured.TurnsCaptured)

		return nil
	}

	return cmd
}

func readHookStopPayload(cobraCmd *cobra.Command) (hookStopPayload, error) {
	data, err := io.ReadAll(bufio.NewReader(cobraCmd.InOrStdin()))
	if err != nil {
		return hookStopPayload{}, fmt.Errorf("read stdin: %w", err)
	}

	var payload hookStopPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return hookStopPayload{}, fmt.Errorf("parse stdin payload: %w", err)
	}

	return payload, nil
}
