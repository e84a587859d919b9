// Package llm implements the cloud-primary, local-fallback LLM transport
// (4.B): retry, rate-limit cooldown, quota tracking, and failover onto the
// failed-request queue when both endpoints are exhausted.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"

	"github.com/sumatoshi-tech/graphiti/pkg/llmconfig"
	"github.com/sumatoshi-tech/graphiti/pkg/llmqueue"
	"github.com/sumatoshi-tech/graphiti/pkg/persist"
)

// ErrLLMUnavailable is returned when both the cloud and local endpoints
// have been exhausted. QueueID names the failed-request queue entry the
// caller can inspect or retry later.
type ErrLLMUnavailable struct {
	QueueID string
	Cause   error
}

func (e *ErrLLMUnavailable) Error() string {
	return fmt.Sprintf("llm unavailable, queued as %s: %v", e.QueueID, e.Cause)
}

func (e *ErrLLMUnavailable) Unwrap() error { return e.Cause }

// ErrModelNotListed is returned when a specific requested local model is
// not present in the endpoint's model list.
var ErrModelNotListed = errors.New("requested model is not listed on the local endpoint")

const cooldownStateBasename = "llm_state"

// cooldownState is the tiny persisted JSON file tracking cooldown_until.
type cooldownState struct {
	CooldownUntil int64 `json:"cooldown_until"`
}

// Request is one chat/generate/embed call.
type Request struct {
	Messages []Message       `json:"messages,omitempty"`
	Prompt   string          `json:"prompt,omitempty"`
	Input    string          `json:"input,omitempty"`
	Model    string          `json:"model,omitempty"`
	Schema   json.RawMessage `json:"schema,omitempty"`
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is the transport's result: either free text or, when a schema
// was supplied, a parsed structured JSON object.
type Response struct {
	Text       string
	Structured json.RawMessage
}

// Clock abstracts time.Now for deterministic cooldown tests.
type Clock func() time.Time

// Transport routes chat/generate/embed calls per the state machine in 4.B.
type Transport struct {
	cfg        llmconfig.Config
	cloud      *retryablehttp.Client
	local      *http.Client
	stateDir   string
	queue      *llmqueue.Queue
	logger     *slog.Logger
	now        Clock
	cooldownUntil int64
}

// New builds a Transport. stateDir is the directory holding llm_state.json
// (cooldown) — normally the scope's Root directory.
func New(cfg llmconfig.Config, stateDir string, queue *llmqueue.Queue, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}

	cloud := retryablehttp.NewClient()
	cloud.Logger = nil
	cloud.RetryMax = 0 // the transport itself drives the fixed-delay retry loop per spec.
	cloud.HTTPClient.Timeout = cfg.ReadTimeout()

	t := &Transport{
		cfg:      cfg,
		cloud:    cloud,
		local:    &http.Client{Timeout: cfg.ReadTimeout()},
		stateDir: stateDir,
		queue:    queue,
		logger:   logger,
		now:      time.Now,
	}

	var state cooldownState
	if err := persist.LoadState(stateDir, cooldownStateBasename, persist.NewJSONCodec(), &state); err == nil {
		t.cooldownUntil = state.CooldownUntil
	}

	return t
}

func (t *Transport) cloudUsable(forEmbed bool) bool {
	if forEmbed {
		return false
	}

	return t.cfg.Cloud.APIKey != "" && t.now().Unix() >= t.cooldownUntil
}

func (t *Transport) setCooldown() {
	t.cooldownUntil = t.now().Unix() + int64(t.cfg.Quota.CooldownSec)

	_ = persist.SaveState(t.stateDir, cooldownStateBasename, persist.NewJSONCodec(), cooldownState{CooldownUntil: t.cooldownUntil})
}

// Chat implements B.chat.
func (t *Transport) Chat(ctx context.Context, req Request) (Response, error) {
	return t.dispatch(ctx, "chat", req, false)
}

// Generate implements B.generate.
func (t *Transport) Generate(ctx context.Context, req Request) (Response, error) {
	return t.dispatch(ctx, "generate", req, false)
}

// Embed implements B.embed. Embedding always routes to local.
func (t *Transport) Embed(ctx context.Context, req Request) (Response, error) {
	return t.dispatch(ctx, "embed", req, true)
}

func (t *Transport) dispatch(ctx context.Context, op string, req Request, forEmbed bool) (Response, error) {
	if t.cloudUsable(forEmbed) {
		resp, err := t.tryCloud(ctx, op, req)
		if err == nil {
			return resp, nil
		}

		t.logFailover(op, "cloud", "local", err)
	}

	resp, err := t.tryLocal(ctx, op, req)
	if err == nil {
		return resp, nil
	}

	t.logFailover(op, "local", "queue", err)

	return Response{}, t.enqueueFailure(ctx, op, req, err)
}

func (t *Transport) tryCloud(ctx context.Context, op string, req Request) (Response, error) {
	var lastErr error

	attempts := t.cfg.Retry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		resp, status, err := t.callCloud(ctx, op, req)
		if err == nil {
			return resp, nil
		}

		if status == http.StatusTooManyRequests {
			t.setCooldown()

			return Response{}, err
		}

		lastErr = err

		if !isRetriableCloudError(status, err) {
			return Response{}, err
		}

		if attempt < attempts-1 {
			if sleepErr := interruptibleSleep(ctx, t.cfg.RetryDelay()); sleepErr != nil {
				return Response{}, sleepErr
			}
		}
	}

	return Response{}, lastErr
}

func isRetriableCloudError(status int, err error) bool {
	if status >= 500 && status < 600 {
		return true
	}

	if status == 0 && err != nil {
		return true // connection-level error, no HTTP status.
	}

	return false
}

func interruptibleSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) callCloud(ctx context.Context, op string, req Request) (Response, int, error) {
	body, err := buildRequestBody(op, req)
	if err != nil {
		return Response{}, 0, err
	}

	url := t.cfg.Cloud.Endpoint + "/api/" + op

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, 0, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.cfg.Cloud.APIKey)

	resp, err := t.cloud.Do(httpReq)
	if err != nil {
		return Response{}, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Response{}, resp.StatusCode, fmt.Errorf("cloud %s: status %d", op, resp.StatusCode)
	}

	return parseResponseBody(resp.Body, req.Schema)
}

func (t *Transport) tryLocal(ctx context.Context, op string, req Request) (Response, error) {
	model := req.Model
	if model == "" {
		model = t.cfg.Embeddings.Model
	}

	if op != "embed" {
		selected, err := t.selectLocalModel(ctx, req.Model)
		if err != nil {
			return Response{}, err
		}

		model = selected
	}

	localReq := req
	localReq.Model = model

	body, err := buildRequestBody(op, localReq)
	if err != nil {
		return Response{}, err
	}

	url := t.cfg.Local.Endpoint + "/api/" + op

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.local.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("local %s: status %d", op, resp.StatusCode)
	}

	return parseResponseBody(resp.Body, req.Schema)
}

// selectLocalModel picks the largest available model from the fallback
// chain, where "largest" is the highest integer N in a "Nb" suffix
// (case-insensitive), else 0. A specific requested model not present in
// the listed models is an immediate failure.
func (t *Transport) selectLocalModel(ctx context.Context, requested string) (string, error) {
	listed, err := t.listLocalModels(ctx)
	if err != nil {
		return "", err
	}

	listedSet := make(map[string]bool, len(listed))
	for _, m := range listed {
		listedSet[m] = true
	}

	if requested != "" {
		if !listedSet[requested] {
			return "", ErrModelNotListed
		}

		return requested, nil
	}

	best := ""
	bestSize := -1

	for _, candidate := range t.cfg.Local.FallbackChain {
		if !listedSet[candidate] {
			continue
		}

		size := modelSizeBillions(candidate)
		if size > bestSize {
			best = candidate
			bestSize = size
		}
	}

	if best == "" {
		return "", ErrModelNotListed
	}

	return best, nil
}

func (t *Transport) listLocalModels(ctx context.Context) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.Local.Endpoint+"/api/tags", nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.local.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}

	return names, nil
}

// modelSizeBillions extracts the integer N from a "...Nb..." suffix
// (case-insensitive), e.g. "llama3.1:70b" -> 70. Returns 0 if no such
// suffix is found.
func modelSizeBillions(name string) int {
	lower := strings.ToLower(name)

	end := -1
	for i := len(lower) - 1; i >= 0; i-- {
		if lower[i] == 'b' {
			end = i

			break
		}
	}

	if end <= 0 {
		return 0
	}

	start := end
	for start > 0 && (lower[start-1] >= '0' && lower[start-1] <= '9' || lower[start-1] == '.') {
		start--
	}

	if start == end {
		return 0
	}

	value, err := strconv.ParseFloat(lower[start:end], 64)
	if err != nil {
		return 0
	}

	return int(value)
}

func (t *Transport) logFailover(op, from, to string, cause error) {
	t.logger.Warn("llm_failover", "event", "llm_failover", "operation", op, "from", from, "to", to, "error", cause)
}

func (t *Transport) enqueueFailure(ctx context.Context, op string, req Request, cause error) error {
	params, marshalErr := json.Marshal(req)
	if marshalErr != nil {
		params = json.RawMessage(`{}`)
	}

	id, _, err := t.queue.Enqueue(ctx, operationFromString(op), params, cause.Error())
	if err != nil {
		return &ErrLLMUnavailable{QueueID: "", Cause: errors.Join(cause, err)}
	}

	return &ErrLLMUnavailable{QueueID: id, Cause: cause}
}

func operationFromString(op string) llmqueue.Operation {
	switch op {
	case "chat":
		return llmqueue.OperationChat
	case "embed":
		return llmqueue.OperationEmbed
	default:
		return llmqueue.OperationGenerate
	}
}

func buildRequestBody(op string, req Request) ([]byte, error) {
	payload := map[string]any{"model": req.Model}

	switch op {
	case "chat":
		messages := make([]map[string]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			messages = append(messages, map[string]string{"role": m.Role, "content": stripSchemaSuffix(m.Content, req.Schema)})
		}

		payload["messages"] = messages
		if req.Schema != nil {
			payload["format"] = json.RawMessage(req.Schema)
		}
	case "generate":
		payload["prompt"] = stripSchemaSuffix(req.Prompt, req.Schema)
		if req.Schema != nil {
			payload["format"] = json.RawMessage(req.Schema)
		}
	case "embed":
		payload["input"] = req.Input
	}

	return json.Marshal(payload)
}

const schemaSuffixMarker = "Respond with a JSON object in the following format:"

// stripSchemaSuffix removes the trailing schema-instruction block a caller
// may have appended to a prompt/message when a schema is already supplied
// structurally, avoiding double-specification.
func stripSchemaSuffix(content string, schema json.RawMessage) string {
	if schema == nil {
		return content
	}

	idx := strings.Index(content, schemaSuffixMarker)
	if idx < 0 {
		return content
	}

	return strings.TrimRight(content[:idx], " \n")
}

func parseResponseBody(body io.Reader, schema json.RawMessage) (Response, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return Response{}, err
	}

	var envelope struct {
		Response string `json:"response"`
		Message  struct {
			Content string `json:"content"`
		} `json:"message"`
	}

	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Response{Text: string(raw)}, nil
	}

	text := envelope.Response
	if text == "" {
		text = envelope.Message.Content
	}

	if schema == nil {
		return Response{Text: text}, nil
	}

	structured, err := coerceStructured(text, schema)
	if err != nil {
		return Response{Text: text}, nil //nolint:nilerr // fall back to free text if coercion fails; caller decides.
	}

	return Response{Text: text, Structured: structured}, nil
}

// coerceStructured strips triple-backtick code fences and, if the
// decoded value is a bare JSON array while the schema declares exactly one
// list-typed field, wraps it as {field: array}.
func coerceStructured(text string, schema json.RawMessage) (json.RawMessage, error) {
	stripped := stripCodeFences(text)

	var generic any
	if err := json.Unmarshal([]byte(stripped), &generic); err != nil {
		return nil, err
	}

	array, isArray := generic.([]any)
	if !isArray {
		return json.RawMessage(stripped), nil
	}

	field, ok := singleListField(schema)
	if !ok {
		return json.RawMessage(stripped), nil
	}

	wrapped, err := json.Marshal(map[string]any{field: array})
	if err != nil {
		return nil, err
	}

	return wrapped, nil
}

func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop an optional language tag on the fence's opening line.
		trimmed = trimmed[idx+1:]
	}

	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")

	return strings.TrimSpace(trimmed)
}

// singleListField inspects a JSON schema and returns the sole property
// name whose type is "array", if there is exactly one.
func singleListField(schema json.RawMessage) (string, bool) {
	var parsed struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}

	if err := json.Unmarshal(schema, &parsed); err != nil {
		return "", false
	}

	field := ""
	count := 0

	for name, prop := range parsed.Properties {
		if prop.Type == "array" {
			field = name
			count++
		}
	}

	if count != 1 {
		return "", false
	}

	return field, true
}
