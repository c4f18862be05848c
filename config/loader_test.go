// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dreamteam.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// --- Loader 测试 ---

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 3, cfg.Executor.MaxRetries)
	assert.Equal(t, 120*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, []string{"openai", "gemini"}, cfg.LLM.Priority)
	assert.NoError(t, cfg.Validate())
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
llm:
  priority: [gemini, openai]
  timeout: 45s
  openai:
    api_key: "sk-yaml"
    model: "gpt-4o"
  gemini:
    api_key: "g-yaml"

breaker:
  primary_threshold: 7
  reset_timeout: 30s

executor:
  max_retries: 5
  timeout: 2m
  validation_enabled: false

resources:
  agents_dir: "/srv/agents"
  templates_dir: "/srv/templates"

state:
  backend: redis

redis:
  addr: "redis.example.com:6379"
  password: "secret"
  db: 1

log:
  level: "debug"
  format: "json"
`)

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"gemini", "openai"}, cfg.LLM.Priority)
	assert.Equal(t, 45*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "sk-yaml", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.LLM.OpenAI.Model)
	// 未写出的字段保留默认值
	assert.Equal(t, "https://api.openai.com", cfg.LLM.OpenAI.BaseURL)
	assert.Equal(t, "g-yaml", cfg.LLM.Gemini.APIKey)

	assert.Equal(t, 7, cfg.Breaker.PrimaryThreshold)
	assert.Equal(t, 3, cfg.Breaker.SecondaryThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.ResetTimeout)

	assert.Equal(t, 5, cfg.Executor.MaxRetries)
	assert.Equal(t, 2*time.Minute, cfg.Executor.Timeout)
	assert.False(t, cfg.Executor.ValidationEnabled)

	assert.Equal(t, "/srv/agents", cfg.Resources.AgentsDir)
	assert.Equal(t, "/srv/templates", cfg.Resources.TemplatesDir)
	assert.Equal(t, "artifacts", cfg.Resources.ArtifactsDir)

	assert.Equal(t, "redis", cfg.State.Backend)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	envVars := map[string]string{
		"DREAMTEAM_LLM_OPENAI_API_KEY":          "sk-env",
		"DREAMTEAM_LLM_PRIORITY":                "gemini, openai",
		"DREAMTEAM_LLM_TEMPERATURE":             "0.2",
		"DREAMTEAM_BREAKER_RESET_TIMEOUT":       "15s",
		"DREAMTEAM_USAGE_DAILY_REQUESTS":        "50",
		"DREAMTEAM_USAGE_DAILY_COST":            "2.5",
		"DREAMTEAM_THROTTLE_ENABLED":            "false",
		"DREAMTEAM_EXECUTOR_MAX_RETRIES":        "4",
		"DREAMTEAM_REDIS_ADDR":                  "env-redis:6379",
		"DREAMTEAM_LOG_LEVEL":                   "warn",
		"DREAMTEAM_TELEMETRY_SAMPLE_RATE":       "0.5",
		"DREAMTEAM_RESOURCES_TEMPLATES_DIR":     "/tmp/templates",
		"DREAMTEAM_DATABASE_MAX_OPEN_CONNS":     "3",
		"DREAMTEAM_EXECUTOR_VALIDATION_ENABLED": "true",
	}
	for k, v := range envVars {
		t.Setenv(k, v)
	}

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, []string{"gemini", "openai"}, cfg.LLM.Priority)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 15*time.Second, cfg.Breaker.ResetTimeout)
	assert.Equal(t, int64(50), cfg.Usage.DailyRequests)
	assert.InDelta(t, 2.5, cfg.Usage.DailyCost, 1e-9)
	assert.False(t, cfg.Throttle.Enabled)
	assert.Equal(t, 4, cfg.Executor.MaxRetries)
	assert.True(t, cfg.Executor.ValidationEnabled)
	assert.Equal(t, "env-redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.InDelta(t, 0.5, cfg.Telemetry.SampleRate, 1e-9)
	assert.Equal(t, "/tmp/templates", cfg.Resources.TemplatesDir)
	assert.Equal(t, 3, cfg.Database.MaxOpenConns)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
llm:
  openai:
    api_key: "sk-yaml"
    model: "yaml-model"
`)
	t.Setenv("DREAMTEAM_LLM_OPENAI_API_KEY", "sk-env")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.LLM.OpenAI.APIKey)
	assert.Equal(t, "yaml-model", cfg.LLM.OpenAI.Model)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_STATE_BACKEND", "memory")
	t.Setenv("MYAPP_LOG_FORMAT", "json")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.State.Backend)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("DREAMTEAM_EXECUTOR_TIMEOUT", "soon")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DREAMTEAM_EXECUTOR_TIMEOUT")
}

func TestLoader_WithValidator(t *testing.T) {
	t.Setenv("DREAMTEAM_STATE_BACKEND", "mongo")

	_, err := NewLoader().
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown state backend")
}

func TestLoader_NonExistentFile(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath("/non/existent/path/dreamteam.yaml").
		Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultExecutorConfig(), cfg.Executor)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, `
executor:
  max_retries: [invalid
  this is not valid yaml
`)
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

// --- Config 方法测试 ---

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "valid default config", modify: func(c *Config) {}},
		{
			name:    "unknown provider",
			modify:  func(c *Config) { c.LLM.Priority = []string{"openai", "claude"} },
			wantErr: "unknown provider",
		},
		{
			name:    "temperature too high",
			modify:  func(c *Config) { c.LLM.Temperature = 3.0 },
			wantErr: "temperature",
		},
		{
			name:    "zero breaker threshold",
			modify:  func(c *Config) { c.Breaker.SecondaryThreshold = 0 },
			wantErr: "breaker thresholds",
		},
		{
			name:    "negative retries",
			modify:  func(c *Config) { c.Retry.MaxRetries = -1 },
			wantErr: "retry.max_retries",
		},
		{
			name:    "zero executor retries",
			modify:  func(c *Config) { c.Executor.MaxRetries = 0 },
			wantErr: "executor.max_retries",
		},
		{
			name:    "unknown usage store",
			modify:  func(c *Config) { c.Usage.Store = "s3" },
			wantErr: "unknown usage store",
		},
		{
			name: "usage store ignored when disabled",
			modify: func(c *Config) {
				c.Usage.Enabled = false
				c.Usage.Store = "s3"
			},
		},
		{
			name:    "unsupported database driver",
			modify:  func(c *Config) { c.Database.Driver = "oracle" },
			wantErr: "unsupported database driver",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		config   DatabaseConfig
		expected string
	}{
		{
			name: "postgres DSN",
			config: DatabaseConfig{
				Driver: "postgres", Host: "localhost", Port: 5432,
				User: "user", Password: "pass", Name: "dbname", SSLMode: "disable",
			},
			expected: "host=localhost port=5432 user=user password=pass dbname=dbname sslmode=disable",
		},
		{
			name: "mysql DSN",
			config: DatabaseConfig{
				Driver: "mysql", Host: "localhost", Port: 3306,
				User: "user", Password: "pass", Name: "dbname",
			},
			expected: "user:pass@tcp(localhost:3306)/dbname?parseTime=true",
		},
		{
			name:     "sqlite DSN",
			config:   DatabaseConfig{Driver: "sqlite", Name: "/path/to/db.sqlite"},
			expected: "/path/to/db.sqlite",
		},
		{
			name:     "unknown driver",
			config:   DatabaseConfig{Driver: "unknown"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.config.DSN())
		})
	}
}

// --- MustLoad 测试 ---

func TestMustLoad_Success(t *testing.T) {
	path := writeConfig(t, "executor:\n  max_retries: 2\n")

	assert.NotPanics(t, func() {
		cfg := MustLoad(path)
		assert.Equal(t, 2, cfg.Executor.MaxRetries)
	})
}

func TestMustLoad_InvalidFile(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml")

	assert.Panics(t, func() {
		MustLoad(path)
	})
}

func TestLoadFromEnv_Function(t *testing.T) {
	t.Setenv("DREAMTEAM_LLM_GEMINI_API_KEY", "g-env")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "g-env", cfg.LLM.Gemini.APIKey)
}
