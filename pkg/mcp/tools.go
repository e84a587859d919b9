// Package mcp implements a Model Context Protocol server exposing graphiti's
// CLI operations as MCP tools over stdio transport. Tool handlers dispatch to
// the graphiti binary as a subprocess with --format json; the capture tool
// and background re-indexing are spawned detached so callers never block on
// LLM work.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants, one per exposed CLI operation.
const (
	ToolNameAdd         = "graphiti_add"
	ToolNameSearch      = "graphiti_search"
	ToolNameList        = "graphiti_list"
	ToolNameShow        = "graphiti_show"
	ToolNameDelete      = "graphiti_delete"
	ToolNameSummarize   = "graphiti_summarize"
	ToolNameCompact     = "graphiti_compact"
	ToolNameHealth      = "graphiti_health"
	ToolNameCapture     = "graphiti_capture"
	ToolNameIndex       = "graphiti_index"
	ToolNameQueueStatus = "graphiti_queue_status"
	ToolNameQueueRetry  = "graphiti_queue_retry"
)

// ErrEmptyQuery indicates the query parameter is empty.
var ErrEmptyQuery = errors.New("query parameter is required and must not be empty")

// ErrEmptyName indicates the name parameter is empty.
var ErrEmptyName = errors.New("name parameter is required and must not be empty")

// scopeArgs appends --global/--project to args per the shared scope flags.
func scopeArgs(args []string, global, project bool) []string {
	if global {
		args = append(args, "--global")
	}

	if project {
		args = append(args, "--project")
	}

	return args
}

// ToolOutput wraps a tool's decoded JSON result for structured output.
type ToolOutput struct {
	Data any `json:"data"`
}

func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		IsError: true,
	}, ToolOutput{}, nil
}

func rawResult(raw json.RawMessage) (*mcpsdk.CallToolResult, ToolOutput, error) {
	var parsed any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return errorResult(fmt.Errorf("decode cli output: %w", err))
		}
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(raw)}},
	}, ToolOutput{Data: parsed}, nil
}

// AddInput is the input schema for the graphiti_add tool.
type AddInput struct {
	Name    string `json:"name"              jsonschema:"episode name"`
	Body    string `json:"body"              jsonschema:"episode body text"`
	Source  string `json:"source,omitempty"  jsonschema:"optional source description"`
	Global  bool   `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool   `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleAdd(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in AddInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Name == "" {
		return errorResult(ErrEmptyName)
	}

	args := []string{"add", "--name", in.Name, "--body", in.Body}
	if in.Source != "" {
		args = append(args, "--source", in.Source)
	}

	return s.dispatch(ctx, scopeArgs(args, in.Global, in.Project))
}

// SearchInput is the input schema for the graphiti_search tool.
type SearchInput struct {
	Query   string `json:"query"             jsonschema:"search query text"`
	Limit   int    `json:"limit,omitempty"   jsonschema:"maximum number of results (default 10)"`
	Global  bool   `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool   `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleSearch(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in SearchInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Query == "" {
		return errorResult(ErrEmptyQuery)
	}

	args := []string{"search", in.Query}
	if in.Limit > 0 {
		args = append(args, "--limit", fmt.Sprintf("%d", in.Limit))
	}

	return s.dispatch(ctx, scopeArgs(args, in.Global, in.Project))
}

// ListInput is the input schema for the graphiti_list tool.
type ListInput struct {
	Global  bool `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleList(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in ListInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, scopeArgs([]string{"list"}, in.Global, in.Project))
}

// ShowInput is the input schema for the graphiti_show tool.
type ShowInput struct {
	Name    string `json:"name"              jsonschema:"episode name to show"`
	Global  bool   `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool   `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleShow(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in ShowInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Name == "" {
		return errorResult(ErrEmptyName)
	}

	return s.dispatch(ctx, scopeArgs([]string{"show", in.Name}, in.Global, in.Project))
}

// DeleteInput is the input schema for the graphiti_delete tool.
type DeleteInput struct {
	Source  string `json:"source"            jsonschema:"source-description substring to delete episodes by"`
	Global  bool   `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool   `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleDelete(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in DeleteInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if in.Source == "" {
		return errorResult(fmt.Errorf("%w: source", ErrEmptyName))
	}

	return s.dispatch(ctx, scopeArgs([]string{"delete", "--source", in.Source}, in.Global, in.Project))
}

// SummarizeInput is the input schema for the graphiti_summarize tool.
type SummarizeInput struct {
	Global  bool `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleSummarize(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in SummarizeInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, scopeArgs([]string{"summarize"}, in.Global, in.Project))
}

// CompactInput is the input schema for the graphiti_compact tool.
type CompactInput struct {
	Global  bool `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleCompact(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in CompactInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, scopeArgs([]string{"compact"}, in.Global, in.Project))
}

// HealthInput is the input schema for the graphiti_health tool.
type HealthInput struct{}

func handleHealth(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, _ HealthInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, []string{"health"})
}

// IndexInput is the input schema for the graphiti_index tool.
type IndexInput struct {
	Global  bool `json:"global,omitempty"  jsonschema:"target the global scope instead of the project scope"`
	Project bool `json:"project,omitempty" jsonschema:"target the project scope explicitly"`
}

func handleIndex(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in IndexInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, scopeArgs([]string{"index"}, in.Global, in.Project))
}

// QueueStatusInput is the input schema for the graphiti_queue_status tool.
type QueueStatusInput struct{}

func handleQueueStatus(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, _ QueueStatusInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return s.dispatch(ctx, []string{"queue", "status"})
}

// QueueRetryInput is the input schema for the graphiti_queue_retry tool.
type QueueRetryInput struct {
	JobID string `json:"job_id,omitempty" jsonschema:"optional specific dead-letter job id to retry; omit to retry all"`
}

func handleQueueRetry(ctx context.Context, s *Server, _ *mcpsdk.CallToolRequest, in QueueRetryInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	args := []string{"queue", "retry"}
	if in.JobID != "" {
		args = append(args, in.JobID)
	}

	return s.dispatch(ctx, args)
}

// CaptureInput is the input schema for the graphiti_capture tool. The tool
// always launches detached: the caller does not want to block on LLM work.
type CaptureInput struct {
	TranscriptPath string `json:"transcript_path,omitempty" jsonschema:"path to a conversation transcript file (defaults to CLAUDE_TRANSCRIPT_PATH)"`
	SessionID      string `json:"session_id,omitempty"      jsonschema:"conversation session identifier"`
}

func handleCapture(_ context.Context, s *Server, _ *mcpsdk.CallToolRequest, in CaptureInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	args := []string{"capture"}

	var env []string
	if in.TranscriptPath != "" {
		env = append(env, "CLAUDE_TRANSCRIPT_PATH="+in.TranscriptPath)
	}

	if in.SessionID != "" {
		args = append(args, "--session-id", in.SessionID)
	}

	bin, err := binaryPath(s.binaryPath)
	if err != nil {
		return errorResult(err)
	}

	if spawnErr := spawnDetached(bin, args, env); spawnErr != nil {
		return errorResult(spawnErr)
	}

	return rawResult(json.RawMessage(`{"status":"capture started"}`))
}
