// =============================================================================
// 📦 DreamTeam 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("dreamteam.yaml").
//	    WithEnvPrefix("DREAMTEAM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 DreamTeam 步骤引擎的完整配置结构
type Config struct {
	// LLM 服务商配置
	LLM LLMConfig `yaml:"llm" env:"LLM"`

	// Breaker 熔断配置
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`

	// Retry 同一 Provider 上的重试配置
	Retry RetryConfig `yaml:"retry" env:"RETRY"`

	// Throttle 按用户的请求节流
	Throttle ThrottleConfig `yaml:"throttle" env:"THROTTLE"`

	// Usage 每日用量上限
	Usage UsageConfig `yaml:"usage" env:"USAGE"`

	// Executor 步骤执行配置
	Executor ExecutorConfig `yaml:"executor" env:"EXECUTOR"`

	// Resources Agent / 模板 / 产物目录
	Resources ResourcesConfig `yaml:"resources" env:"RESOURCES"`

	// State 工作流状态存储
	State StateConfig `yaml:"state" env:"STATE"`

	// Redis 缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// LLMConfig 服务商配置
type LLMConfig struct {
	// Priority 回退顺序，为空时按 openai → gemini
	Priority []string `yaml:"priority" env:"PRIORITY"`
	// 单次 Provider 调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 默认最大输出 token
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
	// 默认温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`

	OpenAI ProviderConfig `yaml:"openai" env:"OPENAI"`
	Gemini ProviderConfig `yaml:"gemini" env:"GEMINI"`
}

// ProviderConfig 单个服务商的凭证与模型
type ProviderConfig struct {
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	Model   string `yaml:"model" env:"MODEL"`
}

// BreakerConfig 熔断配置
type BreakerConfig struct {
	// 主 Provider 连续失败阈值
	PrimaryThreshold int `yaml:"primary_threshold" env:"PRIMARY_THRESHOLD"`
	// 备用 Provider 连续失败阈值
	SecondaryThreshold int `yaml:"secondary_threshold" env:"SECONDARY_THRESHOLD"`
	// Open → HalfOpen 的等待时间
	ResetTimeout time.Duration `yaml:"reset_timeout" env:"RESET_TIMEOUT"`
	// 监控周期（仅上报）
	MonitoringPeriod time.Duration `yaml:"monitoring_period" env:"MONITORING_PERIOD"`
}

// RetryConfig 重试配置
type RetryConfig struct {
	MaxRetries   int           `yaml:"max_retries" env:"MAX_RETRIES"`
	InitialDelay time.Duration `yaml:"initial_delay" env:"INITIAL_DELAY"`
	MaxDelay     time.Duration `yaml:"max_delay" env:"MAX_DELAY"`
	Multiplier   float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter       bool          `yaml:"jitter" env:"JITTER"`
}

// ThrottleConfig 节流配置
type ThrottleConfig struct {
	Enabled     bool          `yaml:"enabled" env:"ENABLED"`
	MinInterval time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`
	Retention   time.Duration `yaml:"retention" env:"RETENTION"`
	QueueSize   int           `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// UsageConfig 用量配置
type UsageConfig struct {
	Enabled       bool    `yaml:"enabled" env:"ENABLED"`
	DailyRequests int64   `yaml:"daily_requests" env:"DAILY_REQUESTS"`
	DailyCost     float64 `yaml:"daily_cost" env:"DAILY_COST"`
	// 存储: memory, redis
	Store     string        `yaml:"store" env:"STORE"`
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// ExecutorConfig 步骤执行配置
type ExecutorConfig struct {
	MaxRetries        int           `yaml:"max_retries" env:"MAX_RETRIES"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	ValidationEnabled bool          `yaml:"validation_enabled" env:"VALIDATION_ENABLED"`
	// 是否在暂停前用模型改写追问
	RephraseQuestions bool `yaml:"rephrase_questions" env:"REPHRASE_QUESTIONS"`
}

// ResourcesConfig 资源目录
type ResourcesConfig struct {
	AgentsDir    string `yaml:"agents_dir" env:"AGENTS_DIR"`
	TemplatesDir string `yaml:"templates_dir" env:"TEMPLATES_DIR"`
	ArtifactsDir string `yaml:"artifacts_dir" env:"ARTIFACTS_DIR"`
}

// StateConfig 状态存储配置
type StateConfig struct {
	// 后端: memory, redis, database
	Backend string        `yaml:"backend" env:"BACKEND"`
	TTL     time.Duration `yaml:"ttl" env:"TTL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
	// Addr 运行期间暴露 /metrics 与 /healthz 的地址，为空时不监听
	Addr string `yaml:"addr" env:"ADDR"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "DREAMTEAM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置，文件不存在时保留默认值
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段，键为 PREFIX_SECTION_FIELD
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

var (
	validStateBackends = map[string]bool{"memory": true, "redis": true, "database": true}
	validUsageStores   = map[string]bool{"memory": true, "redis": true}
	validProviders     = map[string]bool{"openai": true, "gemini": true}
)

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	for _, p := range c.LLM.Priority {
		if !validProviders[p] {
			errs = append(errs, fmt.Sprintf("unknown provider %q in llm.priority", p))
		}
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errs = append(errs, "llm.temperature must be between 0 and 2")
	}

	if c.Breaker.PrimaryThreshold <= 0 || c.Breaker.SecondaryThreshold <= 0 {
		errs = append(errs, "breaker thresholds must be positive")
	}
	if c.Breaker.ResetTimeout <= 0 {
		errs = append(errs, "breaker.reset_timeout must be positive")
	}

	if c.Retry.MaxRetries < 0 {
		errs = append(errs, "retry.max_retries must not be negative")
	}

	if c.Executor.MaxRetries <= 0 {
		errs = append(errs, "executor.max_retries must be positive")
	}
	if c.Executor.Timeout <= 0 {
		errs = append(errs, "executor.timeout must be positive")
	}

	if !validStateBackends[c.State.Backend] {
		errs = append(errs, fmt.Sprintf("unknown state backend %q", c.State.Backend))
	}
	if c.Usage.Enabled && !validUsageStores[c.Usage.Store] {
		errs = append(errs, fmt.Sprintf("unknown usage store %q", c.Usage.Store))
	}

	if c.Database.Driver != "" && c.Database.DSN() == "" {
		errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
