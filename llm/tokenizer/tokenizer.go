package tokenizer

import (
	"strings"
	"sync"
)

// Counter token 计数接口
type Counter interface {
	// Count 返回给定文本的 token 数
	Count(text string) (int, error)

	// Name 返回计数器名称
	Name() string
}

// Registry 模型名到计数器的映射，按前缀匹配；未注册的模型使用估算器。
type Registry struct {
	mu       sync.RWMutex
	counters map[string]Counter
	fallback Counter
}

// NewRegistry 创建注册表，并预先注册已知的 OpenAI 系列模型
func NewRegistry() *Registry {
	r := &Registry{
		counters: make(map[string]Counter),
		fallback: NewEstimator(),
	}
	for model := range modelEncodings {
		r.Register(model, NewTiktoken(model))
	}
	return r
}

// Register 为模型注册计数器
func (r *Registry) Register(model string, c Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[model] = c
}

// For 返回模型对应的计数器，最长前缀优先
func (r *Registry) For(model string) Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.counters[model]; ok {
		return c
	}

	var best Counter
	bestLen := 0
	for prefix, c := range r.counters {
		if len(prefix) > bestLen && strings.HasPrefix(model, prefix) {
			best, bestLen = c, len(prefix)
		}
	}
	if best != nil {
		return best
	}
	return r.fallback
}

// Estimate 计算文本 token 数；精确计数失败（例如编码数据不可用）时退回估算器
func (r *Registry) Estimate(model, text string) int {
	if n, err := r.For(model).Count(text); err == nil {
		return n
	}
	n, _ := r.fallback.Count(text)
	return n
}
