package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/config"
	"docquery/internal/query"
)

func gatewayConfig(provider, baseURL string) config.GatewayConfig {
	return config.GatewayConfig{
		Provider:    provider,
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "test-model",
		MaxTokens:   4000,
		Temperature: 0.1,
		Timeout:     5 * time.Second,
	}
}

func TestNewSelectsAdapterByConfig(t *testing.T) {
	openai, err := New(gatewayConfig("openai", ""))
	require.NoError(t, err)
	assert.IsType(t, &openaiGateway{}, openai)

	anthropic, err := New(gatewayConfig("anthropic", ""))
	require.NoError(t, err)
	assert.IsType(t, &anthropicGateway{}, anthropic)

	_, err = New(gatewayConfig("mystery", ""))
	assert.Error(t, err)

	_, err = New(config.GatewayConfig{Provider: "openai"})
	assert.Error(t, err, "missing API key must be rejected")
}

func TestOpenAIGenerate(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "QUERY_COMPLETE: 12 pages"}},
			},
		})
	}))
	defer srv.Close()

	gw := newOpenAIGateway(gatewayConfig("openai", srv.URL), srv.Client(), instantPolicy())

	text, err := gw.Generate(context.Background(), "system prompt", []query.Turn{
		{Role: query.RoleUser, Content: "how many pages?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "QUERY_COMPLETE: 12 pages", text)

	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Equal(t, "system prompt", first["content"])
}

func TestOpenAIRetriesOnRateLimit(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	gw := newOpenAIGateway(gatewayConfig("openai", srv.URL), srv.Client(), instantPolicy())

	text, err := gw.Generate(context.Background(), "", []query.Turn{{Role: query.RoleUser, Content: "q"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, calls)
}

func TestOpenAIClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	gw := newOpenAIGateway(gatewayConfig("openai", srv.URL), srv.Client(), instantPolicy())

	_, err := gw.Generate(context.Background(), "", []query.Turn{{Role: query.RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "401")
}

func TestAnthropicGenerate(t *testing.T) {
	var gotPath, gotKey, gotVersion string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "hello from the model"},
			},
		})
	}))
	defer srv.Close()

	gw := newAnthropicGateway(gatewayConfig("anthropic", srv.URL), srv.Client(), instantPolicy())

	text, err := gw.Generate(context.Background(), "sys", []query.Turn{
		{Role: query.RoleUser, Content: "hi"},
		{Role: query.RoleAssistant, Content: "hello"},
		{Role: query.RoleUser, Content: "again"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from the model", text)

	assert.Equal(t, "/messages", gotPath)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "2023-06-01", gotVersion)

	// System prompt travels out-of-band, not as a message.
	assert.Equal(t, "sys", gotBody["system"])
	messages := gotBody["messages"].([]any)
	assert.Len(t, messages, 3)
}

func TestScriptedGateway(t *testing.T) {
	gw := NewScriptedGateway("one", "two")

	first, err := gw.Generate(context.Background(), "p", []query.Turn{{Role: query.RoleUser, Content: "a"}})
	require.NoError(t, err)
	assert.Equal(t, "one", first)

	second, err := gw.Generate(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "two", second)

	_, err = gw.Generate(context.Background(), "p", nil)
	assert.Error(t, err)

	assert.Len(t, gw.Calls(), 3)
	assert.Equal(t, []string{"p", "p", "p"}, gw.Prompts())
}
