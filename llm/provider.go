package llm

import (
	"context"
	"strings"
)

// Request 发往单个 Provider 的补全请求
type Request struct {
	Prompt      string  `json:"prompt"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// Usage 单次调用的 token 用量与估算成本
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost,omitempty"`
}

// Response Provider 返回的原始结果
type Response struct {
	Content      string `json:"content"`
	Model        string `json:"model,omitempty"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Provider 封装某个模型服务商的一次补全调用。
// 实现必须返回可区分的错误（鉴权、配额、限流、服务端），以便 Classify 归类。
type Provider interface {
	Name() string

	// Configured 凭证是否就绪；未配置的 Provider 不进入默认优先级列表
	Configured() bool

	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// rejectedFinishReasons 表示内容被服务商策略拦截的完成原因
var rejectedFinishReasons = map[string]struct{}{
	"content_filter":     {},
	"safety":             {},
	"recitation":         {},
	"blocklist":          {},
	"prohibited_content": {},
	"spii":               {},
}

// IsPolicyRejection 判断完成原因是否表示策略拒绝
func IsPolicyRejection(finishReason string) bool {
	_, ok := rejectedFinishReasons[strings.ToLower(strings.TrimSpace(finishReason))]
	return ok
}
