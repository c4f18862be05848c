package usage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	fieldRequests = "requests"
	fieldTokens   = "tokens"
	fieldCost     = "cost"
	providerField = "provider:"
)

// Limits 每个用户每天的上限，0 表示不限制
type Limits struct {
	DailyRequests int64   `yaml:"daily_requests" env:"DAILY_REQUESTS"`
	DailyCost     float64 `yaml:"daily_cost" env:"DAILY_COST"`
}

// Config 用量追踪配置
type Config struct {
	Limits `yaml:",inline"`

	// Retention 每日计数桶的保留时长
	Retention time.Duration `yaml:"retention" env:"RETENTION"`
}

// DefaultConfig 默认：每天 1000 次请求、10 美元
func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			DailyRequests: 1000,
			DailyCost:     10.0,
		},
		Retention: 48 * time.Hour,
	}
}

// Usage 某个用户（或全局）当天的用量
type Usage struct {
	Date       string           `json:"date"`
	Requests   int64            `json:"requests"`
	Tokens     int64            `json:"tokens"`
	Cost       float64          `json:"cost"`
	ByProvider map[string]int64 `json:"by_provider,omitempty"`
}

// Decision CheckLimits 的结论
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Record 一次成功调用的用量
type Record struct {
	UserID   string
	Provider string
	Tokens   int
	Cost     float64
}

// Tracker 按用户/天统计请求数、token 与估算成本，并据此放行新调用。
// 计数的存储引擎由 Store 决定，Tracker 只负责增量与判定。
type Tracker struct {
	store  Store
	config Config
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker 创建用量追踪器
func NewTracker(store Store, config Config, logger *zap.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	if config.Retention <= 0 {
		config.Retention = 48 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:  store,
		config: config,
		logger: logger.With(zap.String("component", "usage_tracker")),
		now:    time.Now,
	}
}

// Limits 返回当前配置的上限
func (t *Tracker) Limits() Limits {
	return t.config.Limits
}

// CheckLimits 判断用户今天是否还能发起调用。没有任何记录时总是允许。
func (t *Tracker) CheckLimits(ctx context.Context, userID string) (Decision, error) {
	u, err := t.Usage(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	limits := t.config.Limits
	switch {
	case limits.DailyRequests > 0 && u.Requests >= limits.DailyRequests:
		return Decision{
			Reason: fmt.Sprintf("daily request limit reached (%d/%d)", u.Requests, limits.DailyRequests),
			Usage:  u,
		}, nil
	case limits.DailyCost > 0 && u.Cost >= limits.DailyCost:
		return Decision{
			Reason: fmt.Sprintf("daily cost limit reached ($%.2f/$%.2f)", u.Cost, limits.DailyCost),
			Usage:  u,
		}, nil
	}

	return Decision{Allowed: true, Usage: u}, nil
}

// Record 原子地累加用户当天的计数，并同时累加全局计数
func (t *Tracker) Record(ctx context.Context, r Record) error {
	if r.UserID == "" {
		return fmt.Errorf("usage record without user id")
	}

	delta := Delta{
		Ints: map[string]int64{
			fieldRequests: 1,
			fieldTokens:   int64(r.Tokens),
		},
		Floats: map[string]float64{fieldCost: r.Cost},
	}
	if r.Provider != "" {
		delta.Ints[providerField+r.Provider] = 1
	}

	day := t.day()
	if err := t.store.Increment(ctx, userKey(r.UserID, day), delta, t.config.Retention); err != nil {
		return fmt.Errorf("record user usage: %w", err)
	}
	if err := t.store.Increment(ctx, globalKey(day), delta, t.config.Retention); err != nil {
		return fmt.Errorf("record global usage: %w", err)
	}

	t.logger.Debug("usage recorded",
		zap.String("user_id", r.UserID),
		zap.String("provider", r.Provider),
		zap.Int("tokens", r.Tokens),
		zap.Float64("cost", r.Cost),
	)
	return nil
}

// Usage 返回用户当天的用量
func (t *Tracker) Usage(ctx context.Context, userID string) (*Usage, error) {
	day := t.day()
	return t.read(ctx, userKey(userID, day), day)
}

// Global 返回进程级（所有用户）当天的用量
func (t *Tracker) Global(ctx context.Context) (*Usage, error) {
	day := t.day()
	return t.read(ctx, globalKey(day), day)
}

func (t *Tracker) read(ctx context.Context, key, day string) (*Usage, error) {
	fields, err := t.store.GetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read usage %s: %w", key, err)
	}
	return parseUsage(day, fields), nil
}

// day 按 UTC 日期划分窗口
func (t *Tracker) day() string {
	return t.now().UTC().Format("2006-01-02")
}

func userKey(userID, day string) string {
	return "usage:user:" + userID + ":" + day
}

func globalKey(day string) string {
	return "usage:global:" + day
}

func parseUsage(day string, fields map[string]string) *Usage {
	u := &Usage{Date: day}
	for f, raw := range fields {
		switch {
		case f == fieldRequests:
			u.Requests, _ = strconv.ParseInt(raw, 10, 64)
		case f == fieldTokens:
			u.Tokens, _ = strconv.ParseInt(raw, 10, 64)
		case f == fieldCost:
			u.Cost, _ = strconv.ParseFloat(raw, 64)
		case strings.HasPrefix(f, providerField):
			n, _ := strconv.ParseInt(raw, 10, 64)
			if u.ByProvider == nil {
				u.ByProvider = make(map[string]int64)
			}
			u.ByProvider[strings.TrimPrefix(f, providerField)] = n
		}
	}
	return u
}
