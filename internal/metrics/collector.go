// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者是安全的空操作，
// 未开启指标时调用方可以直接传 nil。
type Collector struct {
	// Provider 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec
	llmCost            *prometheus.CounterVec
	providerFailures   *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	usageDenials       prometheus.Counter

	// 步骤指标
	stepExecutions *prometheus.CounterVec
	stepAttempts   *prometheus.HistogramVec
	stepDuration   *prometheus.HistogramVec
	artifactWrites *prometheus.CounterVec

	// 存储指标
	storeOps          *prometheus.CounterVec
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegistry 创建指标收集器并注册到指定 Registry
func NewCollectorWithRegistry(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// Provider 指标
	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of provider invocations through the gateway",
		},
		[]string{"provider", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Provider call duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "type"}, // type: prompt, completion
	)

	c.llmCost = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_total",
			Help:      "Estimated LLM cost in USD",
		},
		[]string{"provider"},
	)

	c.providerFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_failures_total",
			Help:      "Provider failures by classified category",
		},
		[]string{"provider", "category"},
	)

	c.breakerState = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per provider (0=closed, 1=open, 2=half-open)",
		},
		[]string{"provider"},
	)

	c.usageDenials = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_denials_total",
			Help:      "Calls rejected by the daily usage limits",
		},
	)

	// 步骤指标
	c.stepExecutions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Step executions by outcome",
		},
		[]string{"agent", "outcome"},
	)

	c.stepAttempts = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_attempts",
			Help:      "Attempts spent per step execution",
			Buckets:   []float64{0, 1, 2, 3, 4, 5},
		},
		[]string{"agent"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"agent"},
	)

	c.artifactWrites = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_writes_total",
			Help:      "Artifact sink writes by status",
		},
		[]string{"status"},
	)

	// 存储指标
	c.storeOps = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_store_operations_total",
			Help:      "Workflow state store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🤖 Provider 指标记录
// =============================================================================

// RecordLLMRequest 记录一次 Provider 调用
func (c *Collector) RecordLLMRequest(provider, status string, duration time.Duration, promptTokens, completionTokens int, cost float64) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, "completion").Add(float64(completionTokens))
	c.llmCost.WithLabelValues(provider).Add(cost)
}

// RecordProviderFailure 记录 Provider 失败及其分类
func (c *Collector) RecordProviderFailure(provider, category string, duration time.Duration) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, "failure").Inc()
	c.llmRequestDuration.WithLabelValues(provider).Observe(duration.Seconds())
	c.providerFailures.WithLabelValues(provider, category).Inc()
}

// RecordBreakerState 记录熔断器状态
func (c *Collector) RecordBreakerState(provider string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(provider).Set(float64(state))
}

// RecordUsageDenial 记录被用量上限拒绝的调用
func (c *Collector) RecordUsageDenial() {
	if c == nil {
		return
	}
	c.usageDenials.Inc()
}

// =============================================================================
// 🎭 步骤指标记录
// =============================================================================

// RecordStep 记录一次步骤执行结果
func (c *Collector) RecordStep(agentID, outcome string, attempts int, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepExecutions.WithLabelValues(agentID, outcome).Inc()
	c.stepAttempts.WithLabelValues(agentID).Observe(float64(attempts))
	c.stepDuration.WithLabelValues(agentID).Observe(duration.Seconds())
}

// RecordArtifactWrite 记录产物写入
func (c *Collector) RecordArtifactWrite(success bool) {
	if c == nil {
		return
	}
	c.artifactWrites.WithLabelValues(statusLabel(success)).Inc()
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOp 记录状态存储操作
func (c *Collector) RecordStoreOp(backend, operation string, success bool) {
	if c == nil {
		return
	}
	c.storeOps.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
