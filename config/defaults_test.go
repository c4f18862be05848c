package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.NotEqual(t, LLMConfig{}, cfg.LLM)
	assert.NotEqual(t, BreakerConfig{}, cfg.Breaker)
	assert.NotEqual(t, RetryConfig{}, cfg.Retry)
	assert.NotEqual(t, ThrottleConfig{}, cfg.Throttle)
	assert.NotEqual(t, UsageConfig{}, cfg.Usage)
	assert.NotEqual(t, ExecutorConfig{}, cfg.Executor)
	assert.NotEqual(t, ResourcesConfig{}, cfg.Resources)
	assert.NotEqual(t, StateConfig{}, cfg.State)
	assert.NotEqual(t, RedisConfig{}, cfg.Redis)
	assert.NotEqual(t, DatabaseConfig{}, cfg.Database)
	assert.NotEqual(t, LogConfig{}, cfg.Log)
	assert.NotEqual(t, TelemetryConfig{}, cfg.Telemetry)
	assert.NotEqual(t, MetricsConfig{}, cfg.Metrics)
}

// --- Individual Default*Config functions ---

func TestDefaultLLMConfig(t *testing.T) {
	cfg := DefaultLLMConfig()
	assert.Equal(t, []string{"openai", "gemini"}, cfg.Priority)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Empty(t, cfg.OpenAI.APIKey, "credentials never have defaults")
	assert.Empty(t, cfg.Gemini.APIKey)
	assert.NotEmpty(t, cfg.OpenAI.Model)
	assert.NotEmpty(t, cfg.Gemini.Model)
}

func TestDefaultBreakerConfig(t *testing.T) {
	cfg := DefaultBreakerConfig()
	assert.Equal(t, 5, cfg.PrimaryThreshold)
	assert.Equal(t, 3, cfg.SecondaryThreshold)
	assert.Equal(t, 60*time.Second, cfg.ResetTimeout)
	assert.Equal(t, 2*time.Minute, cfg.MonitoringPeriod)
}

func TestDefaultExecutorConfig(t *testing.T) {
	cfg := DefaultExecutorConfig()
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.True(t, cfg.ValidationEnabled)
}

func TestDefaultUsageConfig(t *testing.T) {
	cfg := DefaultUsageConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, int64(1000), cfg.DailyRequests)
	assert.InDelta(t, 10.0, cfg.DailyCost, 1e-9)
	assert.Equal(t, "memory", cfg.Store)
}

func TestDefaultThrottleConfig(t *testing.T) {
	cfg := DefaultThrottleConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 2*time.Second, cfg.MinInterval)
}

func TestDefaultStateAndDatabaseConfig(t *testing.T) {
	state := DefaultStateConfig()
	db := DefaultDatabaseConfig()
	assert.Equal(t, "database", state.Backend)
	assert.Equal(t, "sqlite", db.Driver)
	assert.Equal(t, "dreamteam.db", db.DSN())
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Equal(t, "dreamteam:", cfg.KeyPrefix)
	assert.False(t, cfg.TLS)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, []string{"stderr"}, cfg.OutputPaths)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "dreamteam", cfg.ServiceName)
	assert.InDelta(t, 0.1, cfg.SampleRate, 1e-9)
}
