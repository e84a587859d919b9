// Package graphadapter translates the graph engine's async LLM/embed
// interface (graphengine.LLMClient/Embedder) onto pkg/llm's transport,
// stripping redundant schema prompts and coercing structured output
// (4.D). The heavy lifting (schema-suffix stripping, code-fence
// stripping, bare-list wrapping) already lives in pkg/llm since the CLI's
// direct summarization path needs the identical coercion; this package is
// the thin seam that satisfies graphengine's interfaces.
package graphadapter

import (
	"context"
	"encoding/json"

	"github.com/sumatoshi-tech/graphiti/pkg/graphengine"
	"github.com/sumatoshi-tech/graphiti/pkg/llm"
)

// Transport is the subset of pkg/llm.Transport this adapter depends on.
// Narrowed to an interface so tests can substitute a stub transport.
type Transport interface {
	Chat(ctx context.Context, req llm.Request) (llm.Response, error)
	Embed(ctx context.Context, req llm.Request) (llm.Response, error)
}

// Adapter implements graphengine.LLMClient and graphengine.Embedder on top
// of a Transport.
type Adapter struct {
	transport Transport
}

// New builds an Adapter.
func New(transport Transport) *Adapter {
	return &Adapter{transport: transport}
}

// Chat implements graphengine.LLMClient. It maps messages + optional
// schema into a B.chat call; the caller is expected to invoke this from its
// own worker goroutine since the transport call is blocking.
func (a *Adapter) Chat(ctx context.Context, messages []graphengine.Message, schema *graphengine.Schema) (string, error) {
	req := llm.Request{Messages: toLLMMessages(messages)}
	if schema != nil {
		req.Schema = json.RawMessage(schema.Raw)
	}

	resp, err := a.transport.Chat(ctx, req)
	if err != nil {
		return "", err
	}

	if schema != nil && resp.Structured != nil {
		return string(resp.Structured), nil
	}

	return resp.Text, nil
}

// Create implements graphengine.Embedder.
func (a *Adapter) Create(ctx context.Context, text string) ([]float32, error) {
	resp, err := a.transport.Embed(ctx, llm.Request{Input: text})
	if err != nil {
		return nil, err
	}

	return decodeEmbedding(resp.Text)
}

// CreateBatch implements graphengine.Embedder as sequential Create calls —
// no hidden parallelism, matching the spec's explicit requirement.
func (a *Adapter) CreateBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))

	for _, text := range texts {
		vec, err := a.Create(ctx, text)
		if err != nil {
			return nil, err
		}

		out = append(out, vec)
	}

	return out, nil
}

func toLLMMessages(messages []graphengine.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}

	return out
}

func decodeEmbedding(raw string) ([]float32, error) {
	var vec []float32

	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, err
	}

	return vec, nil
}
