package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/EreZAzariyA/dream-team-builder-sub007/config"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/cache"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/database"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/server"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/telemetry"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/circuitbreaker"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers/gemini"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/providers/openai"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/retry"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/throttle"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/tokenizer"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm/usage"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/persistence"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/prompt"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
)

// =============================================================================
// 🧩 组件装配
// =============================================================================

// app 一次 CLI 调用用到的全部组件
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector

	telemetry *telemetry.Providers
	redis     *cache.Manager
	db        *database.PoolManager

	gateway   *llm.Gateway
	throttler *throttle.Throttler
	tracker   *usage.Tracker
	catalog   *template.FileCatalog
	store     persistence.Store
	engine    *workflow.Engine
	status    *server.Manager
}

// newApp 按配置装配网关、状态存储与工作流引擎。
// 失败时已创建的资源会被释放。
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.NewCollectorWithRegistry(cfg.Metrics.Namespace, a.registry, logger)
	}

	var err error
	a.telemetry, err = telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		// 遥测不可用不影响工作流执行
		logger.Warn("failed to initialize telemetry", zap.Error(err))
		a.telemetry = &telemetry.Providers{}
	}

	if needsRedis(cfg) {
		a.redis, err = cache.NewManager(redisConfig(cfg.Redis), logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
	}

	a.store, err = a.openStateStore()
	if err != nil {
		return err
	}

	provs, err := buildProviders(ctx, cfg.LLM, logger)
	if err != nil {
		return err
	}

	opts := []llm.GatewayOption{
		llm.WithProviders(provs...),
		llm.WithTokenizer(tokenizer.NewRegistry()),
		llm.WithPriceTable(llm.NewPriceTable()),
		llm.WithMetrics(a.metrics),
		llm.WithTracer(a.telemetry.Tracer("dreamteam/gateway")),
	}
	if cfg.Throttle.Enabled {
		a.throttler = throttle.New(throttle.Config{
			MinInterval:   cfg.Throttle.MinInterval,
			Retention:     cfg.Throttle.Retention,
			SweepInterval: time.Minute,
			QueueSize:     cfg.Throttle.QueueSize,
		}, logger)
		opts = append(opts, llm.WithThrottler(a.throttler))
	}
	if cfg.Usage.Enabled {
		a.tracker = usage.NewTracker(a.usageStore(), usageConfig(cfg.Usage), logger)
		opts = append(opts, llm.WithUsageTracker(a.tracker))
	}
	a.gateway = llm.NewGateway(gatewayConfig(cfg), logger, opts...)

	a.catalog = template.NewFileCatalog(cfg.Resources.AgentsDir, cfg.Resources.TemplatesDir, logger)
	resolver := template.NewResolver(a.catalog, template.WithLogger(logger))
	coordinator := workflow.NewElicitationCoordinator(a.gateway, a.store, a.catalog, logger,
		workflow.WithRephrase(cfg.Executor.RephraseQuestions))

	executor := workflow.NewStepExecutor(
		a.gateway,
		resolver,
		prompt.NewAssembler(),
		nil,
		coordinator,
		a.store,
		workflow.NewFileSink(cfg.Resources.ArtifactsDir, logger),
		logger,
		workflow.WithStepDefaults(stepConfig(cfg)),
		workflow.WithExecutorMetrics(a.metrics),
		workflow.WithExecutorTracer(a.telemetry.Tracer("dreamteam/executor")),
	)
	a.engine = workflow.NewEngine(executor, a.store, a.catalog, logger)
	return nil
}

// openStateStore 按 state.backend 选择存储
func (a *app) openStateStore() (persistence.Store, error) {
	switch a.cfg.State.Backend {
	case "memory":
		a.logger.Warn("memory state backend: workflows cannot be resumed by another process")
		return persistence.NewMemoryStore(a.metrics, a.logger), nil
	case "redis":
		return persistence.NewRedisStore(a.redis, a.cfg.State.TTL, a.metrics, a.logger), nil
	case "database":
		pm, err := database.Open(a.cfg.Database, a.metrics, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.db = pm
		store, err := persistence.NewGormStore(pm, a.metrics, a.logger)
		if err != nil {
			return nil, fmt.Errorf("prepare state table: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported state backend: %s", a.cfg.State.Backend)
	}
}

func (a *app) usageStore() usage.Store {
	if a.cfg.Usage.Store == "redis" && a.redis != nil {
		return usage.NewRedisStore(a.redis)
	}
	return usage.NewMemoryStore()
}

// startStatusServer 在配置了 metrics.addr 时暴露 /metrics 与 /healthz
func (a *app) startStatusServer() error {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}

	checks := map[string]server.Check{
		"gateway": a.gatewayCheck,
	}
	if a.redis != nil {
		checks["redis"] = a.redis.Ping
	}
	if a.db != nil {
		checks["database"] = a.db.Ping
	}

	var gatherer prometheus.Gatherer
	if a.registry != nil {
		gatherer = a.registry
	}
	mux := server.NewStatusMux(gatherer, checks)
	mux.HandleFunc("/breakers", func(w http.ResponseWriter, _ *http.Request) {
		server.WriteJSON(w, http.StatusOK, a.gateway.States())
	})

	cfg := server.DefaultConfig()
	cfg.Addr = a.cfg.Metrics.Addr
	a.status = server.NewManager(mux, cfg, a.logger)
	return a.status.Start()
}

// gatewayCheck 所有 Provider 都熔断时视为不可用
func (a *app) gatewayCheck(context.Context) error {
	states := a.gateway.States()
	if len(states) == 0 {
		return errors.New("no providers configured")
	}
	for _, s := range states {
		if s.State != circuitbreaker.StateOpen {
			return nil
		}
	}
	return errors.New("all provider breakers are open")
}

// close 按依赖的反向顺序释放资源
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.status != nil {
		_ = a.status.Shutdown(ctx)
	}
	if a.throttler != nil {
		a.throttler.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", zap.Error(err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("shutdown telemetry", zap.Error(err))
		}
	}
}

// =============================================================================
// 🔧 配置转换
// =============================================================================

func needsRedis(cfg *config.Config) bool {
	return cfg.State.Backend == "redis" || (cfg.Usage.Enabled && cfg.Usage.Store == "redis")
}

func redisConfig(rc config.RedisConfig) cache.Config {
	out := cache.DefaultConfig()
	out.Addr = rc.Addr
	out.Password = rc.Password
	out.DB = rc.DB
	out.TLS = rc.TLS
	if rc.KeyPrefix != "" {
		out.KeyPrefix = rc.KeyPrefix
	}
	if rc.PoolSize > 0 {
		out.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		out.MinIdleConns = rc.MinIdleConns
	}
	return out
}

// buildProviders 按 openai、gemini 顺序创建 Provider；未配置凭证的也会注册，
// 网关只把已配置的放进回退链。
func buildProviders(ctx context.Context, lc config.LLMConfig, logger *zap.Logger) ([]llm.Provider, error) {
	oa := openai.NewOpenAIProvider(providers.OpenAIConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  lc.OpenAI.APIKey,
			BaseURL: lc.OpenAI.BaseURL,
			Model:   lc.OpenAI.Model,
			Timeout: lc.Timeout,
		},
	}, logger)

	gm, err := gemini.NewGeminiProvider(ctx, providers.GeminiConfig{
		BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  lc.Gemini.APIKey,
			BaseURL: lc.Gemini.BaseURL,
			Model:   lc.Gemini.Model,
			Timeout: lc.Timeout,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create gemini provider: %w", err)
	}
	return []llm.Provider{oa, gm}, nil
}

func gatewayConfig(cfg *config.Config) llm.GatewayConfig {
	primary := circuitbreaker.DefaultConfig()
	primary.Threshold = cfg.Breaker.PrimaryThreshold
	primary.ResetTimeout = cfg.Breaker.ResetTimeout
	primary.MonitoringPeriod = cfg.Breaker.MonitoringPeriod

	secondary := *primary
	secondary.Threshold = cfg.Breaker.SecondaryThreshold

	return llm.GatewayConfig{
		Priority:         cfg.LLM.Priority,
		PrimaryBreaker:   primary,
		SecondaryBreaker: &secondary,
		Retry: &retry.RetryPolicy{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.InitialDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   cfg.Retry.Multiplier,
			Jitter:       cfg.Retry.Jitter,
		},
		CallTimeout:        cfg.LLM.Timeout,
		DefaultMaxTokens:   cfg.LLM.MaxTokens,
		DefaultTemperature: float32(cfg.LLM.Temperature),
	}
}

func usageConfig(uc config.UsageConfig) usage.Config {
	return usage.Config{
		Limits: usage.Limits{
			DailyRequests: uc.DailyRequests,
			DailyCost:     uc.DailyCost,
		},
		Retention: uc.Retention,
	}
}

func stepConfig(cfg *config.Config) workflow.StepConfig {
	return workflow.StepConfig{
		MaxRetries:        cfg.Executor.MaxRetries,
		Timeout:           cfg.Executor.Timeout,
		ValidationEnabled: cfg.Executor.ValidationEnabled,
		MaxTokens:         cfg.LLM.MaxTokens,
		Temperature:       float32(cfg.LLM.Temperature),
	}
}
