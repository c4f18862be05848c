package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	// Name Gemini Provider 的注册名
	Name = "gemini"

	defaultModel = "gemini-2.0-flash"
)

// generator 抽象 genai.Models.GenerateContent，测试时可替换
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider 基于 genai SDK 的 Gemini Provider
type GeminiProvider struct {
	cfg    providers.GeminiConfig
	models generator
	logger *zap.Logger
}

var _ llm.Provider = (*GeminiProvider)(nil)

// NewGeminiProvider 创建 Gemini Provider。未配置 APIKey 时返回一个未就绪的
// Provider（Configured 为 false），不会创建 SDK 客户端。
func NewGeminiProvider(ctx context.Context, cfg providers.GeminiConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	p := &GeminiProvider{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "provider"), zap.String("provider", Name)),
	}
	if !cfg.Configured() {
		return p, nil
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.models = client.Models
	return p, nil
}

// newWithGenerator 测试用构造函数
func newWithGenerator(cfg providers.GeminiConfig, g generator, logger *zap.Logger) *GeminiProvider {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GeminiProvider{cfg: cfg, models: g, logger: logger}
}

func (p *GeminiProvider) Name() string { return Name }

func (p *GeminiProvider) Configured() bool { return p.models != nil }

// Invoke 实现 llm.Provider
func (p *GeminiProvider) Invoke(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if p.models == nil {
		return nil, types.NewError(types.ErrAuth, "gemini api key not configured").WithProvider(Name)
	}

	model := providers.ChooseModel(req.Model, p.cfg.Model, defaultModel)
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(req.Temperature)
	}

	callCtx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	resp, err := p.models.GenerateContent(callCtx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, mapError(err)
	}

	out := &llm.Response{Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 {
		c := resp.Candidates[0]
		out.FinishReason = string(c.FinishReason)
		out.Content = candidateText(c)
	} else if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		// 提示词本身被拦截时没有候选
		out.FinishReason = string(resp.PromptFeedback.BlockReason)
	}
	if resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	p.logger.Debug("completion received",
		zap.String("model", out.Model),
		zap.String("finish_reason", out.FinishReason),
		zap.Int("total_tokens", out.Usage.TotalTokens),
	)
	return out, nil
}

// candidateText 拼接非思考部分的文本
func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range c.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

// mapError 将 SDK 错误转换为 types.Error
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.MapHTTPError(apiErr.Code, apiMessage(apiErr), Name).WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return providers.MapHTTPError(apiErrPtr.Code, apiMessage(*apiErrPtr), Name).WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return providers.NetworkError(err, Name)
}

func apiMessage(e genai.APIError) string {
	if e.Status != "" {
		return fmt.Sprintf("%s (status: %s)", e.Message, e.Status)
	}
	return e.Message
}
