// Package graphengine defines the narrow boundary this system depends on
// for episode storage and search. The graph storage engine itself (an
// embedded labelled-property graph with vector indices) and its
// episode-extraction algorithm are explicitly out of scope; only this
// interface matters to the capture pipeline, indexer, and CLI.
package graphengine

import (
	"context"
	"time"
)

// Episode is one unit of knowledge emitted to the graph: a captured
// commit, a conversation summary, or an indexer-extracted fact.
type Episode struct {
	Name          string
	Body          string
	ReferenceTime time.Time
	GroupID       string
	SourceDesc    string
}

// SearchResult is one hit returned from Store.Search.
type SearchResult struct {
	Name       string
	Body       string
	SourceDesc string
	Score      float64
}

// Store is the graph engine's episode storage surface.
type Store interface {
	AddEpisode(ctx context.Context, ep Episode) error
	DeleteEpisodesBySourceSubstring(ctx context.Context, substring string) (int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Compact(ctx context.Context) error
}

// Message is one chat message in an LLMClient request.
type Message struct {
	Role    string
	Content string
}

// Schema is a JSON schema the LLMClient should constrain its response to.
type Schema struct {
	Raw []byte
}

// LLMClient is the async LLM interface the graph engine consumes.
type LLMClient interface {
	Chat(ctx context.Context, messages []Message, schema *Schema) (string, error)
}

// Embedder is the embedding interface the graph engine consumes.
type Embedder interface {
	Create(ctx context.Context, text string) ([]float32, error)
	CreateBatch(ctx context.Context, texts []string) ([][]float32, error)
}
