package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
)

// Reply 网关的一次预设应答
type Reply struct {
	Content  string
	Provider string
	Err      error
	// Delay 应答前等待的时间，ctx 取消时提前返回
	Delay time.Duration
	Usage llm.Usage
}

// GatewayCall 记录单次网关调用
type GatewayCall struct {
	Prompt  string
	Options llm.CallOptions
}

// ScriptedGateway 按顺序返回预设应答的模型网关。
// 脚本用完后重复最后一条应答；设置了 handler 时优先使用 handler。
type ScriptedGateway struct {
	mu      sync.Mutex
	replies []Reply
	handler func(call int, prompt string) Reply
	calls   []GatewayCall
}

// NewScriptedGateway 创建脚本化网关
func NewScriptedGateway(replies ...Reply) *ScriptedGateway {
	return &ScriptedGateway{replies: replies}
}

// WithHandler 按调用序号（从 1 开始）与提示词动态生成应答
func (g *ScriptedGateway) WithHandler(fn func(call int, prompt string) Reply) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handler = fn
	return g
}

// Call 实现步骤执行器使用的网关接口
func (g *ScriptedGateway) Call(ctx context.Context, prompt string, opts llm.CallOptions) (*llm.GatewayResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, GatewayCall{Prompt: prompt, Options: opts})
	n := len(g.calls)
	var r Reply
	switch {
	case g.handler != nil:
		r = g.handler(n, prompt)
	case len(g.replies) == 0:
		r = Reply{Content: "Mock response"}
	case n <= len(g.replies):
		r = g.replies[n-1]
	default:
		r = g.replies[len(g.replies)-1]
	}
	g.mu.Unlock()

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	provider := r.Provider
	if provider == "" {
		provider = "mock"
	}
	return &llm.GatewayResult{
		Content:      r.Content,
		Provider:     provider,
		FinishReason: "stop",
		Usage:        r.Usage,
		Attempts:     1,
	}, nil
}

// Calls 返回所有调用记录
func (g *ScriptedGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]GatewayCall(nil), g.calls...)
}

// CallCount 调用次数
func (g *ScriptedGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// Prompts 按调用顺序返回提示词
func (g *ScriptedGateway) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, len(g.calls))
	for i, c := range g.calls {
		out[i] = c.Prompt
	}
	return out
}
