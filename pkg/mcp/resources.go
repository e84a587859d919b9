package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	contextResourceURI  = "graphiti://context"
	contextMIMEType     = "application/json"
	gitRevParseTimeout  = 30 * time.Second
	headCompareBudget   = 10 * time.Millisecond
	defaultContextChars = 32000 // ~8192 tokens at ~4 chars/token.

	projectRootEnv = "GRAPHITI_PROJECT_ROOT"
)

// registerResources adds the context resource the MCP client fetches on
// session start.
func (s *Server) registerResources() {
	s.inner.AddResource(&mcpsdk.Resource{
		URI:         contextResourceURI,
		Name:        "context",
		Title:       "Project knowledge graph context",
		Description: "Recent decisions and architecture notes from the knowledge graph, plus a staleness check that triggers background re-indexing.",
		MIMEType:    contextMIMEType,
	}, s.handleContextResource)
}

// handleContextResource implements the context-injection algorithm: compare
// HEAD against the indexer's last-indexed SHA (stale ⇒ spawn a detached
// re-index, don't wait), then independently run a bounded search for
// decisions/architecture topics and return it immediately.
func (s *Server) handleContextResource(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	if req != nil && req.Params != nil && req.Params.URI != "" && req.Params.URI != contextResourceURI {
		return nil, mcpsdk.ResourceNotFoundError(req.Params.URI)
	}

	root := os.Getenv(projectRootEnv)

	if s.isStale(root) {
		s.triggerReindex(root)
	}

	body := s.fetchContextSearch(ctx, root)

	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{
			{
				URI:      contextResourceURI,
				MIMEType: contextMIMEType,
				Text:     body,
			},
		},
	}, nil
}

// isStale compares `git rev-parse --short HEAD` against the indexer's
// last-indexed SHA. Any error (no repo, no state file) is treated as stale,
// since that is the safe side: it triggers a re-index rather than serving
// context that was never built.
func (s *Server) isStale(root string) bool {
	headCtx, cancel := context.WithTimeout(context.Background(), gitRevParseTimeout)
	defer cancel()

	cmd := exec.CommandContext(headCtx, "git", "rev-parse", "--short", "HEAD")
	if root != "" {
		cmd.Dir = root
	}

	out, err := cmd.Output()
	if err != nil {
		return true
	}

	head := strings.TrimSpace(string(out))

	lastIndexed, err := readLastIndexedSHA(root)
	if err != nil {
		return true
	}

	return head != lastIndexed
}

// triggerReindex spawns `graphiti index` detached and does not wait for it.
func (s *Server) triggerReindex(root string) {
	bin, err := binaryPath(s.binaryPath)
	if err != nil {
		s.logger.Warn("context resource: cannot resolve binary for re-index", "error", err)

		return
	}

	var env []string
	if root != "" {
		env = append(env, projectRootEnv+"="+root)
	}

	if spawnErr := spawnDetached(bin, []string{"index"}, env); spawnErr != nil {
		s.logger.Warn("context resource: failed to spawn background re-index", "error", spawnErr)
	}
}

// fetchContextSearch runs a short, bounded search for decision/architecture
// topics and returns its JSON body (or an empty-result JSON body on
// failure — the context resource must never block or fail session start).
func (s *Server) fetchContextSearch(ctx context.Context, root string) string {
	bin, err := binaryPath(s.binaryPath)
	if err != nil {
		return `{"results":[],"error":"binary not resolvable"}`
	}

	searchCtx, cancel := context.WithTimeout(ctx, defaultToolTimeout)
	defer cancel()

	args := []string{"search", "decisions architecture", "--limit", "10"}

	var env []string
	if root != "" {
		env = append(env, projectRootEnv+"="+root)
	}

	raw, err := runCLI(searchCtx, bin, args, env)
	if err != nil {
		return `{"results":[],"error":"search unavailable"}`
	}

	text := truncateContext(string(raw))

	return text
}

// truncateContext bounds the returned body to defaultContextChars, matching
// the default ~8192-token context budget.
func truncateContext(body string) string {
	if len(body) <= defaultContextChars {
		return body
	}

	return body[:defaultContextChars]
}

// indexStateFile mirrors the on-disk shape of pkg/indexer's persisted state,
// read here directly to avoid a dependency from pkg/mcp onto pkg/indexer for
// a single field.
type indexStateFile struct {
	LastIndexedSHA string `json:"last_indexed_sha"`
}

func readLastIndexedSHA(root string) (string, error) {
	dir := root
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}

		dir = cwd
	}

	data, err := os.ReadFile(dir + "/.graphiti/index-state.json")
	if err != nil {
		return "", err
	}

	var state indexStateFile

	if err := json.Unmarshal(data, &state); err != nil {
		return "", err
	}

	return state.LastIndexedSHA, nil
}
