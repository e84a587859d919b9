package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sumatoshi-tech/graphiti/pkg/observability"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "graphiti"
	// serverVersion is the MCP server implementation version.
	serverVersion = "1.0.0"

	// defaultToolTimeout bounds synchronous CLI-dispatch tools; capture is
	// exempt since it always spawns detached.
	defaultToolTimeout = 60 * time.Second

	toolCount = 12
)

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer

	// BinaryPath overrides the graphiti executable used for subprocess
	// dispatch. Empty resolves to the currently running executable.
	BinaryPath string

	// ToolTimeout bounds each synchronous CLI-dispatch tool call. Zero uses
	// defaultToolTimeout.
	ToolTimeout time.Duration
}

// Server wraps the MCP SDK server with graphiti tool and resource registrations.
type Server struct {
	inner       *mcpsdk.Server
	mu          sync.RWMutex
	tools       []string
	metrics     *observability.REDMetrics
	tracer      trace.Tracer
	logger      *slog.Logger
	binaryPath  string
	toolTimeout time.Duration
}

// NewServer creates a new MCP server with all graphiti tools and the context
// resource registered.
func NewServer(deps ServerDeps) *Server {
	opts := &mcpsdk.ServerOptions{}
	if deps.Logger != nil {
		opts.Logger = deps.Logger
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		opts,
	)

	timeout := deps.ToolTimeout
	if timeout <= 0 {
		timeout = defaultToolTimeout
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		inner:       inner,
		tools:       make([]string, 0, toolCount),
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		logger:      logger,
		binaryPath:  deps.BinaryPath,
		toolTimeout: timeout,
	}

	srv.registerTools()
	srv.registerResources()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	err := s.inner.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// RunWithTransport starts the MCP server on the given transport. It blocks
// until the context is canceled or the connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

// dispatch runs the graphiti CLI synchronously with the given args, bounded
// by the server's tool timeout, and wraps the result as tool output.
func (s *Server) dispatch(ctx context.Context, args []string) (*mcpsdk.CallToolResult, ToolOutput, error) {
	bin, err := binaryPath(s.binaryPath)
	if err != nil {
		return errorResult(err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.toolTimeout)
	defer cancel()

	raw, err := runCLI(ctx, bin, args, nil)
	if err != nil {
		return errorResult(err)
	}

	return rawResult(raw)
}

// registerTools adds all graphiti MCP tools to the server.
func (s *Server) registerTools() {
	addDispatchTool(s, ToolNameAdd, addToolDescription, handleAdd)
	addDispatchTool(s, ToolNameSearch, searchToolDescription, handleSearch)
	addDispatchTool(s, ToolNameList, listToolDescription, handleList)
	addDispatchTool(s, ToolNameShow, showToolDescription, handleShow)
	addDispatchTool(s, ToolNameDelete, deleteToolDescription, handleDelete)
	addDispatchTool(s, ToolNameSummarize, summarizeToolDescription, handleSummarize)
	addDispatchTool(s, ToolNameCompact, compactToolDescription, handleCompact)
	addDispatchTool(s, ToolNameHealth, healthToolDescription, handleHealth)
	addDispatchTool(s, ToolNameIndex, indexToolDescription, handleIndex)
	addDispatchTool(s, ToolNameQueueStatus, queueStatusToolDescription, handleQueueStatus)
	addDispatchTool(s, ToolNameQueueRetry, queueRetryToolDescription, handleQueueRetry)
	addDispatchTool(s, ToolNameCapture, captureToolDescription, handleCapture)
}

// addDispatchTool registers a generic-input tool handler wrapped with
// tracing and metrics.
func addDispatchTool[Input any](
	s *Server,
	name, description string,
	handler func(context.Context, *Server, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) {
	bound := func(ctx context.Context, req *mcpsdk.CallToolRequest, in Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		return handler(ctx, s, req, in)
	}

	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, withMetrics(s.metrics, name, withTracing(s.tracer, name, bound)))

	s.trackTool(name)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, "mcp."+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := "ok"
		if err != nil || (result != nil && result.IsError) {
			status = "error"
		}

		metrics.RecordRequest(ctx, "mcp."+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}

// Tool description constants.
const (
	addToolDescription = "Add an episode (a named body of text) to the knowledge graph directly, " +
		"bypassing capture and summarization."
	searchToolDescription = "Search the knowledge graph for episodes matching a query, " +
		"scoped to the current project or the global graph."
	listToolDescription   = "List episodes stored in the knowledge graph."
	showToolDescription   = "Show the full content of a single episode by name."
	deleteToolDescription = "Delete episodes whose source description contains the given substring."
	summarizeToolDescription = "Force a summarization pass over any buffered, not-yet-summarized capture batches."
	compactToolDescription   = "Compact the underlying graph storage engine."
	healthToolDescription    = "Report the health of the graph store, job queue, and LLM transport."
	indexToolDescription     = "Walk the full git history of the current repository and (re)index it into the graph."
	queueStatusToolDescription = "Report job queue depth, dead-letter count, and oldest pending job age."
	queueRetryToolDescription  = "Move one or all dead-letter jobs back onto the job queue for retry."
	captureToolDescription = "Capture pending git commits and/or a conversation transcript into the graph. " +
		"Always runs detached in the background; does not block on LLM work."
)
