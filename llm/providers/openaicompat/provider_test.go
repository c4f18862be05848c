package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// New() constructor
// ---------------------------------------------------------------------------

func TestNew_Defaults(t *testing.T) {
	p := New(Config{ProviderName: "test"}, nil)
	require.NotNil(t, p)
	assert.Equal(t, "/v1/chat/completions", p.Cfg.EndpointPath)
	assert.Equal(t, 60*time.Second, p.Client.Timeout)
	assert.Equal(t, "test", p.Name())
	assert.False(t, p.Configured())
	assert.NotNil(t, p.Logger)
}

func TestNew_Custom(t *testing.T) {
	p := New(Config{ProviderName: "t", APIKey: "k", Timeout: 10 * time.Second, EndpointPath: "/api/chat"}, zap.NewNop())
	assert.Equal(t, 10*time.Second, p.Client.Timeout)
	assert.Equal(t, "/api/chat", p.Cfg.EndpointPath)
	assert.True(t, p.Configured())
}

func TestSetBuildHeaders(t *testing.T) {
	p := New(Config{ProviderName: "test", APIKey: "key"}, nil)

	p.SetBuildHeaders(func(r *http.Request, apiKey string) {
		r.Header.Set("X-Custom", apiKey)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p.buildHeaders(req, "key")
	assert.Equal(t, "key", req.Header.Get("X-Custom"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

// ---------------------------------------------------------------------------
// Invoke
// ---------------------------------------------------------------------------

func TestProvider_Invoke_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "default-model", body.Model)
		assert.Equal(t, 256, body.MaxTokens)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "user", body.Messages[0].Role)
		assert.Equal(t, "Write a brief", body.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(chatResponse{
			ID:    "resp-1",
			Model: "default-model-0613",
			Choices: []chatChoice{{
				FinishReason: "stop",
				Message:      chatMessage{Role: "assistant", Content: "# Brief"},
			}},
			Usage: &chatUsage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7},
		})
	}))
	t.Cleanup(server.Close)

	p := New(Config{
		ProviderName: "test",
		APIKey:       "test-key",
		BaseURL:      server.URL + "/",
		DefaultModel: "default-model",
	}, zap.NewNop())

	resp, err := p.Invoke(context.Background(), &llm.Request{Prompt: "Write a brief", MaxTokens: 256})
	require.NoError(t, err)
	assert.Equal(t, "# Brief", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "default-model-0613", resp.Model)
	assert.Equal(t, llm.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}, resp.Usage)
}

func TestProvider_Invoke_HTTPError(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantCode   types.ErrorCode
		retryable  bool
	}{
		{
			name:       "401 unauthorized",
			statusCode: http.StatusUnauthorized,
			body:       `{"error":{"message":"invalid key","type":"auth"}}`,
			wantCode:   types.ErrAuth,
		},
		{
			name:       "429 rate limited",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"slow down"}}`,
			wantCode:   types.ErrRateLimit,
			retryable:  true,
		},
		{
			name:       "429 with quota text is still a rate limit",
			statusCode: http.StatusTooManyRequests,
			body:       `{"error":{"message":"You exceeded your current quota","type":"insufficient_quota"}}`,
			wantCode:   types.ErrRateLimit,
			retryable:  true,
		},
		{
			name:       "400 with quota text",
			statusCode: http.StatusBadRequest,
			body:       `{"error":{"message":"Billing hard limit has been reached"}}`,
			wantCode:   types.ErrQuotaExceeded,
		},
		{
			name:       "500 server error",
			statusCode: http.StatusInternalServerError,
			body:       `{"error":{"message":"oops"}}`,
			wantCode:   types.ErrServer,
			retryable:  true,
		},
		{
			name:       "404 client error",
			statusCode: http.StatusNotFound,
			body:       `model not found`,
			wantCode:   types.ErrClient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(server.Close)

			p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

			_, err := p.Invoke(context.Background(), &llm.Request{Prompt: "Hi"})
			require.Error(t, err)
			var typed *types.Error
			require.ErrorAs(t, err, &typed)
			assert.Equal(t, tt.wantCode, typed.Code)
			assert.Equal(t, tt.statusCode, typed.HTTPStatus)
			assert.Equal(t, tt.retryable, typed.Retryable)
			assert.Equal(t, "test", typed.Provider)

			// 网关的分类器与映射结果一致
			assert.Equal(t, tt.wantCode, llm.Categorize(err))
		})
	}
}

func TestProvider_Invoke_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, "not json")
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL}, zap.NewNop())

	_, err := p.Invoke(context.Background(), &llm.Request{Prompt: "Hi"})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrServer))
}

func TestProvider_Invoke_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: url}, zap.NewNop())

	_, err := p.Invoke(context.Background(), &llm.Request{Prompt: "Hi"})
	require.Error(t, err)
	assert.Equal(t, types.ErrNetwork, llm.Categorize(err))
	assert.True(t, llm.Classify(err).Retryable)
}

func TestProvider_Invoke_ContentFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{FinishReason: "content_filter"}},
		})
	}))
	t.Cleanup(server.Close)

	p := New(Config{ProviderName: "test", APIKey: "key", BaseURL: server.URL, FallbackModel: "fallback"}, zap.NewNop())

	resp, err := p.Invoke(context.Background(), &llm.Request{Prompt: "Hi"})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
	assert.Equal(t, "fallback", resp.Model)
	assert.True(t, llm.IsPolicyRejection(resp.FinishReason))
}
