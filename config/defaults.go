// =============================================================================
// 📦 DreamTeam 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Breaker:   DefaultBreakerConfig(),
		Retry:     DefaultRetryConfig(),
		Throttle:  DefaultThrottleConfig(),
		Usage:     DefaultUsageConfig(),
		Executor:  DefaultExecutorConfig(),
		Resources: DefaultResourcesConfig(),
		State:     DefaultStateConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultLLMConfig 返回默认服务商配置，凭证需由文件或环境变量提供
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Priority:    []string{"openai", "gemini"},
		Timeout:     90 * time.Second,
		MaxTokens:   4096,
		Temperature: 0.7,
		OpenAI: ProviderConfig{
			BaseURL: "https://api.openai.com",
			Model:   "gpt-4o-mini",
		},
		Gemini: ProviderConfig{
			Model: "gemini-2.0-flash",
		},
	}
}

// DefaultBreakerConfig 主 Provider 5 次、备用 3 次
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		PrimaryThreshold:   5,
		SecondaryThreshold: 3,
		ResetTimeout:       60 * time.Second,
		MonitoringPeriod:   2 * time.Minute,
	}
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// DefaultThrottleConfig 返回默认节流配置
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Enabled:     true,
		MinInterval: 2 * time.Second,
		Retention:   10 * time.Minute,
		QueueSize:   64,
	}
}

// DefaultUsageConfig 每天 1000 次请求、10 美元
func DefaultUsageConfig() UsageConfig {
	return UsageConfig{
		Enabled:       true,
		DailyRequests: 1000,
		DailyCost:     10.0,
		Store:         "memory",
		Retention:     48 * time.Hour,
	}
}

// DefaultExecutorConfig 返回默认步骤执行配置
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:        3,
		Timeout:           120 * time.Second,
		ValidationEnabled: true,
		RephraseQuestions: true,
	}
}

// DefaultResourcesConfig 返回默认资源目录
func DefaultResourcesConfig() ResourcesConfig {
	return ResourcesConfig{
		AgentsDir:    "resources/agents",
		TemplatesDir: "resources/templates",
		ArtifactsDir: "artifacts",
	}
}

// DefaultStateConfig 默认落到本地 sqlite，跨进程 resume 可用
func DefaultStateConfig() StateConfig {
	return StateConfig{
		Backend: "database",
		TTL:     7 * 24 * time.Hour,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		DB:           0,
		KeyPrefix:    "dreamteam:",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "dreamteam",
		Name:            "dreamteam.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "dreamteam",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "dreamteam",
	}
}
