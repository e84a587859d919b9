package observability

import "log/slog"

// defaultShutdownTimeoutSec bounds how long provider shutdown waits to flush
// pending telemetry when Config.ShutdownTimeoutSec is unset or non-positive.
const defaultShutdownTimeoutSec = 5

// AppMode distinguishes the process surface emitting telemetry, recorded as
// the app.mode resource attribute and folded into every log record.
type AppMode string

const (
	// ModeCLI marks telemetry emitted from a one-shot CLI invocation.
	ModeCLI AppMode = "cli"
	// ModeMCP marks telemetry emitted from the long-running MCP server.
	ModeMCP AppMode = "mcp"
)

// Config controls observability provider initialization. The zero value is
// not directly usable; start from DefaultConfig and override as needed.
type Config struct {
	// ServiceName is the otel service.name resource attribute.
	ServiceName string

	// ServiceVersion is the otel service.version resource attribute, left
	// empty to omit it from the resource.
	ServiceVersion string

	// Environment is the deployment.environment resource attribute, left
	// empty to omit it from the resource.
	Environment string

	// Mode identifies the process surface (CLI vs MCP server).
	Mode AppMode

	// LogLevel is the minimum slog level emitted.
	LogLevel slog.Level

	// LogJSON selects JSON log output over human-readable text.
	LogJSON bool

	// OTLPEndpoint is the OTLP/gRPC collector endpoint. Empty disables
	// exporting and falls back to no-op tracer/meter providers.
	OTLPEndpoint string

	// OTLPInsecure disables TLS for the OTLP/gRPC connection.
	OTLPInsecure bool

	// OTLPHeaders are additional headers sent with every OTLP export.
	OTLPHeaders map[string]string

	// SampleRatio is the trace sampling ratio used when no OTEL_TRACES_SAMPLER
	// env var is set. Zero defers to ParentBased(AlwaysSample).
	SampleRatio float64

	// DebugTrace forces always-on sampling and surfaces attribute-filter
	// warnings on stderr. Intended for local debugging only.
	DebugTrace bool

	// TraceVerbose disables the high-cardinality attribute filter on
	// exported spans. Leave false in production.
	TraceVerbose bool

	// ShutdownTimeoutSec bounds how long Shutdown waits to flush telemetry.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for CLI invocations:
// no OTLP export (no-op providers), info-level text logging to stderr.
func DefaultConfig() Config {
	return Config{
		ServiceName:        "graphiti",
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
