package llm

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumatoshi-tech/graphiti/pkg/llmconfig"
	"github.com/sumatoshi-tech/graphiti/pkg/llmqueue"
)

func newTestTransport(t *testing.T, cfg llmconfig.Config) *Transport {
	t.Helper()

	q, err := llmqueue.Open(t.TempDir()+"/llm_queue.db", 1000, 24*time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	return New(cfg, t.TempDir(), q, nil)
}

func TestCloudUsable_RequiresAPIKey(t *testing.T) {
	cfg := llmconfig.Default()
	cfg.Cloud.APIKey = ""
	tr := newTestTransport(t, cfg)

	assert.False(t, tr.cloudUsable(false))
}

func TestCloudUsable_EmbedAlwaysUnusable(t *testing.T) {
	cfg := llmconfig.Default()
	cfg.Cloud.APIKey = "key"
	tr := newTestTransport(t, cfg)

	assert.False(t, tr.cloudUsable(true))
}

func TestCloudUsable_RespectsCooldown(t *testing.T) {
	cfg := llmconfig.Default()
	cfg.Cloud.APIKey = "key"
	tr := newTestTransport(t, cfg)

	tr.cooldownUntil = time.Now().Add(time.Hour).Unix()
	assert.False(t, tr.cloudUsable(false))

	tr.cooldownUntil = time.Now().Add(-time.Hour).Unix()
	assert.True(t, tr.cloudUsable(false))
}

func TestSetCooldown_PersistsAcrossInstances(t *testing.T) {
	cfg := llmconfig.Default()
	cfg.Quota.CooldownSec = 600

	q, err := llmqueue.Open(t.TempDir()+"/q.db", 1000, 24*time.Hour)
	require.NoError(t, err)
	defer q.Close()

	dir := t.TempDir()
	tr := New(cfg, dir, q, nil)
	tr.setCooldown()

	reloaded := New(cfg, dir, q, nil)
	assert.InDelta(t, time.Now().Add(600*time.Second).Unix(), reloaded.cooldownUntil, 5)
}

func TestModelSizeBillions(t *testing.T) {
	assert.Equal(t, 70, modelSizeBillions("llama3.1:70b"))
	assert.Equal(t, 8, modelSizeBillions("llama3.1:8B"))
	assert.Equal(t, 0, modelSizeBillions("nomic-embed-text"))
}

func TestSelectLocalModel_PicksLargestAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"},{"name":"llama3.1:70b"}]}`))
	}))
	defer server.Close()

	cfg := llmconfig.Default()
	cfg.Local.Endpoint = server.URL
	cfg.Local.FallbackChain = []string{"llama3.1:8b", "llama3.1:70b"}
	tr := newTestTransport(t, cfg)

	model, err := tr.selectLocalModel(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:70b", model)
}

func TestSelectLocalModel_RequestedNotListed_Fails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3.1:8b"}]}`))
	}))
	defer server.Close()

	cfg := llmconfig.Default()
	cfg.Local.Endpoint = server.URL
	tr := newTestTransport(t, cfg)

	_, err := tr.selectLocalModel(t.Context(), "mistral:7b")
	assert.ErrorIs(t, err, ErrModelNotListed)
}

func TestStripSchemaSuffix_RemovesTrailingBlock(t *testing.T) {
	schema := []byte(`{"type":"object"}`)
	content := "Analyze this.\n\nRespond with a JSON object in the following format: {...}"

	stripped := stripSchemaSuffix(content, schema)
	assert.Equal(t, "Analyze this.", stripped)
}

func TestCoerceStructured_WrapsBareList(t *testing.T) {
	schema := []byte(`{"properties":{"items":{"type":"array"}}}`)

	result, err := coerceStructured("[\"a\",\"b\"]", schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":["a","b"]}`, string(result))
}

func TestCoerceStructured_StripsCodeFences(t *testing.T) {
	schema := []byte(`{"properties":{"name":{"type":"string"}}}`)

	result, err := coerceStructured("```json\n{\"name\":\"x\"}\n```", schema)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x"}`, string(result))
}
