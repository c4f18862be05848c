package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/circuitbreaker"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/retry"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/throttle"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/tokenizer"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/usage"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/EreZAzariyA/dream-team-builder-sub007/llm"

// GatewayConfig 网关配置
type GatewayConfig struct {
	// Priority 显式的 Provider 顺序；为空时按注册顺序取已配置凭证的 Provider
	Priority []string

	// PrimaryBreaker 优先级第一的 Provider 使用的熔断配置，其余使用 SecondaryBreaker
	PrimaryBreaker   *circuitbreaker.Config
	SecondaryBreaker *circuitbreaker.Config

	// Retry 同一 Provider 上的重试策略
	Retry *retry.RetryPolicy

	// CallTimeout 单次 Invoke 的超时，0 表示不限制
	CallTimeout time.Duration

	DefaultMaxTokens   int
	DefaultTemperature float32
}

// DefaultGatewayConfig 返回默认配置
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		PrimaryBreaker:     circuitbreaker.DefaultConfig(),
		SecondaryBreaker:   circuitbreaker.SecondaryConfig(),
		Retry:              retry.DefaultRetryPolicy(),
		DefaultMaxTokens:   4096,
		DefaultTemperature: 0.7,
	}
}

// CallOptions 单次网关调用的参数
type CallOptions struct {
	MaxTokens   int
	Temperature float32
	Model       string

	// UserID 为空时从 ctx 的 types.Scope 读取
	UserID string

	// Providers 覆盖本次调用的 Provider 顺序
	Providers []string

	// Detached 为 true 时，已经发出的 Provider 请求不随 ctx 取消，跑完后照常计入用量。
	// ctx 取消后不再排队、不再重试、不再切换下一个 Provider。
	Detached bool
}

// GatewayResult 成功调用的结果
type GatewayResult struct {
	Content      string            `json:"content"`
	Provider     string            `json:"provider"`
	Model        string            `json:"model,omitempty"`
	FinishReason string            `json:"finish_reason,omitempty"`
	Usage        Usage             `json:"usage"`
	Attempts     int               `json:"attempts"`
	Failures     []ProviderFailure `json:"failures,omitempty"`
}

// ProviderFailure 某个 Provider 的失败记录
type ProviderFailure struct {
	Provider string          `json:"provider"`
	Category types.ErrorCode `json:"category"`
	// RetryAfter 分类器建议的等待时间，仅供调用方参考
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Err        error         `json:"-"`
}

// AggregateError 所有 Provider 都失败时返回，列出每个 Provider 的失败
type AggregateError struct {
	Failures []ProviderFailure
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s (%v)", f.Provider, f.Category, f.Err))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Unwrap 让 errors.Is/As 能看到每个 Provider 的原始错误
func (e *AggregateError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// Category 聚合错误的分类取最后一个失败的分类
func (e *AggregateError) Category() types.ErrorCode {
	if len(e.Failures) == 0 {
		return types.ErrAllProvidersFailed
	}
	return e.Failures[len(e.Failures)-1].Category
}

// As 使 types.GetErrorCode 对聚合错误返回 ALL_PROVIDERS_FAILED
func (e *AggregateError) As(target any) bool {
	t, ok := target.(**types.Error)
	if !ok {
		return false
	}
	*t = types.NewError(types.ErrAllProvidersFailed, e.Error())
	return true
}

// FailureCategory 返回网关错误的分类；聚合错误取最后一个失败的分类
func FailureCategory(err error) types.ErrorCode {
	var agg *AggregateError
	if errors.As(err, &agg) {
		return agg.Category()
	}
	return Categorize(err)
}

// GatewayOption 网关可选组件
type GatewayOption func(*Gateway)

// WithProviders 注册 Provider，注册顺序即默认优先级
func WithProviders(providers ...Provider) GatewayOption {
	return func(g *Gateway) {
		g.registered = append(g.registered, providers...)
	}
}

// WithUsageTracker 调用前检查用量上限，成功后记录用量
func WithUsageTracker(t *usage.Tracker) GatewayOption {
	return func(g *Gateway) { g.usage = t }
}

// WithThrottler 按用户串行化并限速
func WithThrottler(t *throttle.Throttler) GatewayOption {
	return func(g *Gateway) { g.throttler = t }
}

// WithMetrics 设置指标收集器
func WithMetrics(m *metrics.Collector) GatewayOption {
	return func(g *Gateway) { g.metrics = m }
}

// WithTokenizer Provider 未返回用量时用于估算 token
func WithTokenizer(r *tokenizer.Registry) GatewayOption {
	return func(g *Gateway) { g.tokens = r }
}

// WithPriceTable Provider 未返回成本时用于估算
func WithPriceTable(p *PriceTable) GatewayOption {
	return func(g *Gateway) { g.prices = p }
}

// WithTracer 设置 OTel Tracer，默认使用全局 TracerProvider
func WithTracer(t trace.Tracer) GatewayOption {
	return func(g *Gateway) { g.tracer = t }
}

// Gateway 按优先级依次尝试 Provider。每个 Provider 有独立熔断器，
// 熔断器内部包着重试；一个 Provider 失败后换下一个，全部失败返回 AggregateError。
type Gateway struct {
	config     GatewayConfig
	registered []Provider
	providers  map[string]Provider
	breakers   map[string]circuitbreaker.CircuitBreaker
	priority   []string
	retryer    retry.Retryer

	usage     *usage.Tracker
	throttler *throttle.Throttler
	metrics   *metrics.Collector
	tokens    *tokenizer.Registry
	prices    *PriceTable
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewGateway 创建网关
func NewGateway(config GatewayConfig, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultGatewayConfig()
	if config.PrimaryBreaker == nil {
		config.PrimaryBreaker = defaults.PrimaryBreaker
	}
	if config.SecondaryBreaker == nil {
		config.SecondaryBreaker = defaults.SecondaryBreaker
	}
	if config.Retry == nil {
		config.Retry = defaults.Retry
	}
	if config.DefaultMaxTokens <= 0 {
		config.DefaultMaxTokens = defaults.DefaultMaxTokens
	}

	g := &Gateway{
		config:    config,
		providers: make(map[string]Provider),
		breakers:  make(map[string]circuitbreaker.CircuitBreaker),
		logger:    logger.With(zap.String("component", "gateway")),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}

	for _, p := range g.registered {
		name := p.Name()
		if _, dup := g.providers[name]; dup {
			g.logger.Warn("duplicate provider ignored", zap.String("provider", name))
			continue
		}
		g.providers[name] = p
	}
	g.priority = g.defaultPriority()

	primary := ""
	if len(g.priority) > 0 {
		primary = g.priority[0]
	}
	for _, p := range g.registered {
		name := p.Name()
		if _, ok := g.breakers[name]; ok {
			continue
		}
		base := config.SecondaryBreaker
		if name == primary {
			base = config.PrimaryBreaker
		}
		g.breakers[name] = g.newBreaker(name, base)
	}

	policy := *config.Retry
	policy.Classifier = func(err error) bool { return Classify(err).Retryable }
	userOnRetry := config.Retry.OnRetry
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		g.logger.Debug("retrying provider call",
			zap.Int("attempt", attempt),
			zap.String("category", string(Categorize(err))),
			zap.Duration("delay", delay),
		)
		if userOnRetry != nil {
			userOnRetry(attempt, err, delay)
		}
	}
	g.retryer = retry.NewBackoffRetryer(&policy, logger)

	g.logger.Info("gateway initialized", zap.Strings("priority", g.priority))
	return g
}

func (g *Gateway) newBreaker(name string, base *circuitbreaker.Config) circuitbreaker.CircuitBreaker {
	cfg := *base
	cfg.Name = name
	userHook := base.OnStateChange
	cfg.OnStateChange = func(from, to circuitbreaker.State) {
		g.metrics.RecordBreakerState(name, int(to))
		if userHook != nil {
			userHook(from, to)
		}
	}
	return circuitbreaker.NewCircuitBreaker(&cfg, g.logger)
}

// defaultPriority 显式配置优先，否则取凭证已就绪的 Provider
func (g *Gateway) defaultPriority() []string {
	var out []string
	if len(g.config.Priority) > 0 {
		for _, name := range g.config.Priority {
			if _, ok := g.providers[name]; !ok {
				g.logger.Warn("priority names an unregistered provider", zap.String("provider", name))
				continue
			}
			out = append(out, name)
		}
		return out
	}
	for _, p := range g.registered {
		if p.Configured() && !contains(out, p.Name()) {
			out = append(out, p.Name())
		}
	}
	return out
}

// Providers 返回默认优先级列表
func (g *Gateway) Providers() []string {
	return append([]string(nil), g.priority...)
}

// Breaker 返回某个 Provider 的熔断器
func (g *Gateway) Breaker(name string) (circuitbreaker.CircuitBreaker, bool) {
	b, ok := g.breakers[name]
	return b, ok
}

// ResetProvider 凭证重新初始化后重置熔断器
func (g *Gateway) ResetProvider(name string) error {
	b, ok := g.breakers[name]
	if !ok {
		return fmt.Errorf("provider %q not registered", name)
	}
	b.Reset()
	g.metrics.RecordBreakerState(name, int(circuitbreaker.StateClosed))
	g.logger.Info("provider breaker reset", zap.String("provider", name))
	return nil
}

// States 返回所有熔断器的快照
func (g *Gateway) States() map[string]circuitbreaker.Snapshot {
	out := make(map[string]circuitbreaker.Snapshot, len(g.breakers))
	for name, b := range g.breakers {
		out[name] = b.Snapshot()
	}
	return out
}

// Call 按优先级调用 Provider，返回第一个可用结果
func (g *Gateway) Call(ctx context.Context, prompt string, opts CallOptions) (*GatewayResult, error) {
	userID := opts.UserID
	if userID == "" {
		userID, _ = types.UserID(ctx)
	}

	ctx, span := g.tracer.Start(ctx, "gateway.call",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	if err := g.checkUsage(ctx, userID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// 用量在 sweep 返回时记录：调用方提前放弃时，已完成的调用仍然计费
	run := func() (*GatewayResult, error) {
		res, err := g.sweep(ctx, prompt, opts)
		if err == nil {
			g.recordUsage(context.WithoutCancel(ctx), userID, res)
		}
		return res, err
	}

	var (
		result *GatewayResult
		err    error
	)
	if g.throttler != nil && userID != "" {
		result, err = throttle.EnqueueTyped(g.throttler, ctx, userID, run)
	} else {
		result, err = run()
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(FailureCategory(err)))
		return nil, err
	}

	span.SetAttributes(
		attribute.String("provider", result.Provider),
		attribute.Int("attempts", result.Attempts),
		attribute.Int("tokens", result.Usage.TotalTokens),
	)
	return result, nil
}

func (g *Gateway) checkUsage(ctx context.Context, userID string) error {
	if g.usage == nil || userID == "" {
		return nil
	}
	decision, err := g.usage.CheckLimits(ctx, userID)
	if err != nil {
		// 用量存储不可用时放行
		g.logger.Warn("usage check failed, allowing call", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !decision.Allowed {
		g.metrics.RecordUsageDenial()
		g.logger.Info("call rejected by usage limits",
			zap.String("user_id", userID),
			zap.String("reason", decision.Reason),
		)
		return types.NewError(types.ErrUsageLimit, decision.Reason)
	}
	return nil
}

// sweep 依次尝试每个 Provider
func (g *Gateway) sweep(ctx context.Context, prompt string, opts CallOptions) (*GatewayResult, error) {
	order := g.priority
	if len(opts.Providers) > 0 {
		order = opts.Providers
	}
	if len(order) == 0 {
		return nil, types.NewError(types.ErrAllProvidersFailed, "no providers configured")
	}

	req := &Request{
		Prompt:      prompt,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.config.DefaultMaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = g.config.DefaultTemperature
	}

	var (
		failures []ProviderFailure
		attempts int
	)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			failures = append(failures, ProviderFailure{Provider: name, Category: types.ErrUnknown, Err: err})
			break
		}

		p, ok := g.providers[name]
		if !ok {
			failures = append(failures, ProviderFailure{
				Provider: name,
				Category: types.ErrClient,
				Err:      types.NewError(types.ErrClient, "provider not registered").WithProvider(name),
			})
			continue
		}

		start := time.Now()
		resp, n, cause, err := g.invoke(ctx, p, req, opts.Detached)
		attempts += n
		if err == nil {
			g.metrics.RecordLLMRequest(name, "success", time.Since(start),
				resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.Cost)
			return &GatewayResult{
				Content:      resp.Content,
				Provider:     name,
				Model:        resp.Model,
				FinishReason: resp.FinishReason,
				Usage:        resp.Usage,
				Attempts:     attempts,
				Failures:     failures,
			}, nil
		}

		c := Classify(cause)
		category := c.Category
		g.metrics.RecordProviderFailure(name, string(category), time.Since(start))
		g.logger.Warn("provider failed, trying next",
			zap.String("provider", name),
			zap.String("category", string(category)),
			zap.Int("invocations", n),
			zap.Error(err),
		)
		failures = append(failures, ProviderFailure{
			Provider:   name,
			Category:   category,
			RetryAfter: c.SuggestedDelay,
			Err:        err,
		})
	}

	return nil, &AggregateError{Failures: failures}
}

// invoke 在熔断器内执行带重试的 Provider 调用，返回实际调用次数和用于分类的原因。
// 原因取最后一次原始错误，而不是重试耗尽后的包装错误。
func (g *Gateway) invoke(ctx context.Context, p Provider, req *Request, detached bool) (*Response, int, error, error) {
	name := p.Name()
	breaker := g.breakers[name]

	var (
		resp    *Response
		calls   int
		lastErr error
	)
	attempt := func() (err error) {
		defer func() { lastErr = err }()
		if err := ctx.Err(); err != nil {
			return err
		}
		calls++
		callCtx := ctx
		if detached {
			callCtx = context.WithoutCancel(ctx)
		}
		if g.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, g.config.CallTimeout)
			defer cancel()
		}

		r, err := p.Invoke(callCtx, req)
		if err != nil {
			return err
		}
		if r == nil || strings.TrimSpace(r.Content) == "" {
			return types.NewError(types.ErrContentRejected, "provider returned empty content").WithProvider(name)
		}
		if IsPolicyRejection(r.FinishReason) {
			return types.NewError(types.ErrContentRejected,
				fmt.Sprintf("content rejected by provider policy (finish reason %s)", r.FinishReason)).
				WithProvider(name)
		}
		resp = r
		return nil
	}

	err := breaker.Call(ctx, func() error {
		return g.retryer.Do(ctx, attempt)
	})
	if err != nil {
		cause := err
		if lastErr != nil {
			cause = lastErr
		}
		return nil, calls, cause, err
	}
	g.fillUsage(name, req, resp)
	return resp, calls, nil, nil
}

// fillUsage Provider 未返回用量或成本时估算
func (g *Gateway) fillUsage(provider string, req *Request, resp *Response) {
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	u := &resp.Usage
	if u.TotalTokens == 0 && g.tokens != nil {
		u.PromptTokens = g.tokens.Estimate(model, req.Prompt)
		u.CompletionTokens = g.tokens.Estimate(model, resp.Content)
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	if u.Cost == 0 && g.prices != nil {
		u.Cost = g.prices.Estimate(provider, model, u.PromptTokens, u.CompletionTokens)
	}
}

func (g *Gateway) recordUsage(ctx context.Context, userID string, result *GatewayResult) {
	if g.usage == nil || userID == "" {
		return
	}
	err := g.usage.Record(ctx, usage.Record{
		UserID:   userID,
		Provider: result.Provider,
		Tokens:   result.Usage.TotalTokens,
		Cost:     result.Usage.Cost,
	})
	if err != nil {
		g.logger.Warn("failed to record usage", zap.String("user_id", userID), zap.Error(err))
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
