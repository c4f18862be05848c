package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(providers.OpenAIConfig{}, zap.NewNop())
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, defaultBaseURL, p.Cfg.BaseURL)
	assert.False(t, p.Configured())

	var _ llm.Provider = p
}

func TestOpenAIProvider_Invoke_OrganizationHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "org-1", r.Header.Get("OpenAI-Organization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, fallbackModel, body["model"])

		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"finish_reason":"stop","message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(server.Close)

	cfg := providers.OpenAIConfig{Organization: "org-1"}
	cfg.APIKey = "sk-test"
	cfg.BaseURL = server.URL

	p := NewOpenAIProvider(cfg, zap.NewNop())
	require.True(t, p.Configured())

	resp, err := p.Invoke(context.Background(), &llm.Request{Prompt: "ping"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
}
