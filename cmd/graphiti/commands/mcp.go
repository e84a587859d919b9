package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sumatoshi-tech/graphiti/pkg/mcp"
	"github.com/sumatoshi-tech/graphiti/pkg/observability"
	"github.com/sumatoshi-tech/graphiti/pkg/version"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand() *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start or install the Model Context Protocol server",
	}

	cmd.AddCommand(newMCPServeCommand(&debug))
	cmd.AddCommand(newMCPInstallCommand())

	return cmd
}

func newMCPServeCommand(debug *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio transport",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The server exposes the knowledge graph's CLI operations as tools an AI
assistant can discover and invoke (graphiti_add, graphiti_search,
graphiti_capture, ...), plus a graphiti://context resource fetched on
session start.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			providers, err := initMCPObservability(*debug)
			if err != nil {
				return err
			}

			defer func() {
				shutdownErr := providers.Shutdown(context.Background())
				if shutdownErr != nil {
					providers.Logger.Warn("observability shutdown failed", "error", shutdownErr)
				}
			}()

			red, redErr := observability.NewREDMetrics(providers.Meter)
			if redErr != nil {
				return redErr
			}

			deps := mcp.ServerDeps{Logger: providers.Logger, Metrics: red, Tracer: providers.Tracer}

			srv := mcp.NewServer(deps)

			return srv.Run(cobraCmd.Context())
		},
	}

	cmd.Flags().BoolVar(debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}

func newMCPInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Print the MCP client configuration block for this binary",
		Long: `Print the JSON configuration block to register the graphiti MCP
server with an MCP client (e.g. a ~/.claude.json mcpServers entry).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			return printMCPInstallBlock(cobraCmd)
		},
	}
}

func printMCPInstallBlock(cobraCmd *cobra.Command) error {
	self, err := os.Executable()
	if err != nil {
		self = "graphiti"
	}

	const tmpl = `{
  "mcpServers": {
    "graphiti": {
      "command": %q,
      "args": ["mcp", "serve"]
    }
  }
}
`

	_, err = fmt.Fprintf(cobraCmd.OutOrStdout(), tmpl, self)

	return err
}

func initMCPObservability(debug bool) (observability.Providers, error) {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version.Version
	cfg.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	cfg.OTLPInsecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	cfg.Mode = observability.ModeMCP
	cfg.LogJSON = true

	if debug {
		cfg.LogLevel = slog.LevelDebug
		cfg.DebugTrace = true
	}

	return observability.Init(cfg)
}
