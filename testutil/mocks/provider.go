// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、延迟与错误注入场景。
package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name       string
	configured bool

	// 响应配置
	response     string
	finishReason string
	err          error

	// Token 使用统计
	promptTokens     int
	completionTokens int

	// 调用记录
	calls      []MockProviderCall
	invokeFunc func(ctx context.Context, call int, req *llm.Request) (*llm.Response, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	callCount int
}

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.Request
	Response *llm.Response
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:             name,
		configured:       true,
		response:         "Mock response",
		finishReason:     "stop",
		promptTokens:     10,
		completionTokens: 20,
	}
}

// WithResponse 设置固定响应内容
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithFinishReason 设置完成原因
func (m *MockProvider) WithFinishReason(reason string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finishReason = reason
	return m
}

// WithError 设置返回错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithTokenUsage 设置 Token 使用量
func (m *MockProvider) WithTokenUsage(prompt, completion int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.promptTokens = prompt
	m.completionTokens = completion
	return m
}

// WithDelay 设置响应延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithUnconfigured 模拟缺少凭证的 Provider
func (m *MockProvider) WithUnconfigured() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = false
	return m
}

// WithInvokeFunc 设置自定义调用函数，call 从 1 开始
func (m *MockProvider) WithInvokeFunc(fn func(ctx context.Context, call int, req *llm.Request) (*llm.Response, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invokeFunc = fn
	return m
}

// --- llm.Provider 接口实现 ---

// Name 返回提供商名称
func (m *MockProvider) Name() string { return m.name }

// Configured 凭证是否就绪
func (m *MockProvider) Configured() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configured
}

// Invoke 生成响应
func (m *MockProvider) Invoke(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.callCount++
	call := m.callCount
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			m.record(req, nil, ctx.Err())
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	failAfter, presetErr, fn := m.failAfter, m.err, m.invokeFunc
	resp := &llm.Response{
		Content:      m.response,
		Model:        req.Model,
		FinishReason: m.finishReason,
		Usage: llm.Usage{
			PromptTokens:     m.promptTokens,
			CompletionTokens: m.completionTokens,
			TotalTokens:      m.promptTokens + m.completionTokens,
		},
	}
	m.mu.RUnlock()

	// 检查是否应该失败
	if failAfter > 0 && call > failAfter {
		err := errors.New("mock provider: configured to fail after N calls")
		m.record(req, nil, err)
		return nil, err
	}
	if presetErr != nil {
		m.record(req, nil, presetErr)
		return nil, presetErr
	}
	if fn != nil {
		r, err := fn(ctx, call, req)
		m.record(req, r, err)
		return r, err
	}

	m.record(req, resp, nil)
	return resp, nil
}

func (m *MockProvider) record(req *llm.Request, resp *llm.Response, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockProviderCall{Request: req, Response: resp, Error: err})
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockProvider) GetCalls() []MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MockProviderCall{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// Reset 重置所有状态
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
	m.err = nil
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(name, response string) *MockProvider {
	return NewMockProvider(name).WithResponse(response)
}

// NewErrorProvider 创建总是失败的 Provider
func NewErrorProvider(name string, err error) *MockProvider {
	return NewMockProvider(name).WithError(err)
}

// NewFlakeyProvider 创建不稳定的 Provider（前 N 次成功之后失败）
func NewFlakeyProvider(name string, failAfter int, response string) *MockProvider {
	return NewMockProvider(name).
		WithResponse(response).
		WithFailAfter(failAfter)
}
