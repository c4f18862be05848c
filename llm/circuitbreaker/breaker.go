package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（只放行一次试探调用）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config 熔断器配置
type Config struct {
	// Name 所保护的 Provider 名称，用于日志和错误
	Name string

	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// ResetTimeout 熔断恢复等待时间（从 Open -> HalfOpen）
	ResetTimeout time.Duration

	// MonitoringPeriod 仅用于上报，不参与判定
	MonitoringPeriod time.Duration

	// OnStateChange 状态变更回调（异步执行）
	OnStateChange func(from State, to State)

	// Now 时钟，测试时注入
	Now func() time.Time
}

// DefaultConfig 返回主 Provider 的默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		ResetTimeout:     60 * time.Second,
		MonitoringPeriod: 2 * time.Minute,
	}
}

// SecondaryConfig 返回备用 Provider 的默认配置，阈值更低
func SecondaryConfig() *Config {
	cfg := DefaultConfig()
	cfg.Threshold = 3
	return cfg
}

// Snapshot 熔断器状态快照
type Snapshot struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	FailureCount     int           `json:"failure_count"`
	LastFailure      time.Time     `json:"last_failure,omitempty"`
	NextAttempt      time.Time     `json:"next_attempt,omitempty"`
	MonitoringPeriod time.Duration `json:"monitoring_period"`
}

// CircuitBreaker 熔断器接口
type CircuitBreaker interface {
	// Call 执行调用，如果熔断器打开则返回错误
	Call(ctx context.Context, fn func() error) error

	// CallWithResult 执行调用并返回结果
	CallWithResult(ctx context.Context, fn func() (any, error)) (any, error)

	// State 获取当前状态
	State() State

	// Snapshot 获取状态快照
	Snapshot() Snapshot

	// Reset 重置熔断器（凭证重新初始化后使用）
	Reset()
}

// breaker 熔断器实现
type breaker struct {
	config *Config
	logger *zap.Logger

	mu            sync.Mutex
	state         State
	failureCount  int       // 连续失败次数
	lastFailure   time.Time // 最后失败时间
	nextAttempt   time.Time // 允许进入半开的时间
	trialInFlight bool      // 半开状态下的试探调用是否进行中
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(config *Config, logger *zap.Logger) CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 60 * time.Second
	}
	if config.MonitoringPeriod <= 0 {
		config.MonitoringPeriod = 2 * time.Minute
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &breaker{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("provider", config.Name)),
		state:  StateClosed,
	}
}

// Call 实现 CircuitBreaker.Call
func (b *breaker) Call(ctx context.Context, fn func() error) error {
	_, err := b.CallWithResult(ctx, func() (any, error) {
		return nil, fn()
	})
	return err
}

// CallWithResult 实现 CircuitBreaker.CallWithResult。
// 调用失败时原样返回 fn 的错误；熔断中返回 CIRCUIT_OPEN 且不会调用 fn。
func (b *breaker) CallWithResult(ctx context.Context, fn func() (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := b.beforeCall(); err != nil {
		return nil, err
	}

	result, err := fn()
	b.afterCall(err == nil)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// beforeCall 调用前检查
func (b *breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		if b.config.Now().Before(b.nextAttempt) {
			return b.openError()
		}
		b.setState(StateHalfOpen)
		b.trialInFlight = true
		b.logger.Info("熔断器进入半开状态")
		return nil

	case StateHalfOpen:
		// 试探调用进行中，其余请求继续按熔断处理
		if b.trialInFlight {
			return b.openError()
		}
		b.trialInFlight = true
		return nil

	default:
		return fmt.Errorf("未知的熔断器状态: %v", b.state)
	}
}

// afterCall 调用后处理
func (b *breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

// onSuccess 处理成功调用
func (b *breaker) onSuccess() {
	b.failureCount = 0

	if b.state == StateHalfOpen {
		b.logger.Info("熔断器恢复正常")
		b.trialInFlight = false
		b.setState(StateClosed)
	}
}

// onFailure 处理失败调用
func (b *breaker) onFailure() {
	now := b.config.Now()
	b.failureCount++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.logger.Warn("熔断器打开",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			b.trip(now)
		}

	case StateHalfOpen:
		b.logger.Warn("熔断器半开状态试探失败，重新打开",
			zap.Int("failure_count", b.failureCount),
		)
		b.trialInFlight = false
		b.trip(now)

	case StateOpen:
		// 熔断前已放行的调用迟到的失败，只计数
	}
}

func (b *breaker) trip(now time.Time) {
	b.nextAttempt = now.Add(b.config.ResetTimeout)
	b.setState(StateOpen)
}

// setState 设置状态并触发回调
func (b *breaker) setState(newState State) {
	oldState := b.state
	if oldState == newState {
		return
	}
	b.state = newState

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

func (b *breaker) openError() error {
	return types.NewError(types.ErrCircuitOpen,
		fmt.Sprintf("circuit open until %s", b.nextAttempt.Format(time.RFC3339))).
		WithProvider(b.config.Name).
		WithCause(ErrCircuitOpen)
}

// State 实现 CircuitBreaker.State
func (b *breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 实现 CircuitBreaker.Snapshot
func (b *breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:             b.config.Name,
		State:            b.state,
		FailureCount:     b.failureCount,
		LastFailure:      b.lastFailure,
		NextAttempt:      b.nextAttempt,
		MonitoringPeriod: b.config.MonitoringPeriod,
	}
}

// Reset 实现 CircuitBreaker.Reset
func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	oldState := b.state
	b.failureCount = 0
	b.lastFailure = time.Time{}
	b.nextAttempt = time.Time{}
	b.trialInFlight = false
	b.setState(StateClosed)

	b.logger.Info("熔断器已重置",
		zap.String("from_state", oldState.String()),
	)
}

// ErrCircuitOpen 熔断中，调用被拒绝
var ErrCircuitOpen = errors.New("circuit breaker is open")
