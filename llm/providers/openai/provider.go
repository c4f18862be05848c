package openai

import (
	"net/http"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// Name OpenAI Provider 的注册名
	Name = "openai"

	defaultBaseURL = "https://api.openai.com"
	fallbackModel  = "gpt-4o-mini"
)

// OpenAIProvider 实现 OpenAI Chat Completions Provider。
// HTTP 调用由嵌入的 openaicompat.Provider 处理，这里只补充默认地址与组织头。
type OpenAIProvider struct {
	*openaicompat.Provider
	openaiCfg providers.OpenAIConfig
}

// NewOpenAIProvider 创建新的 OpenAI 提供者实例.
func NewOpenAIProvider(cfg providers.OpenAIConfig, logger *zap.Logger) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	p := &OpenAIProvider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:  Name,
			APIKey:        cfg.APIKey,
			BaseURL:       baseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: fallbackModel,
			Timeout:       cfg.Timeout,
		}, logger),
		openaiCfg: cfg,
	}

	p.SetBuildHeaders(func(req *http.Request, apiKey string) {
		req.Header.Set("Authorization", "Bearer "+apiKey)
		if cfg.Organization != "" {
			req.Header.Set("OpenAI-Organization", cfg.Organization)
		}
		req.Header.Set("Content-Type", "application/json")
	})

	return p
}
