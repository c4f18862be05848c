package throttle

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrClosed 节流器已关闭
var ErrClosed = errors.New("throttler closed")

// Config 节流配置
type Config struct {
	// MinInterval 同一 key 两次派发之间的最小间隔
	MinInterval time.Duration `yaml:"min_interval" env:"MIN_INTERVAL"`

	// Retention key 空闲超过该时长后被清理
	Retention time.Duration `yaml:"retention" env:"RETENTION"`

	// SweepInterval 清理周期
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`

	// QueueSize 每个 key 的排队缓冲
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		MinInterval:   2 * time.Second,
		Retention:     10 * time.Minute,
		SweepInterval: time.Minute,
		QueueSize:     64,
	}
}

type job struct {
	ctx  context.Context
	fn   func() error
	done chan error
}

// lane 单个 key 的 FIFO 队列，由一个 goroutine 串行服务
type lane struct {
	key          string
	limiter      *rate.Limiter
	jobs         chan *job
	stop         chan struct{}
	pending      int
	lastActive   time.Time
	lastDispatch time.Time
}

// Throttler 按调用方 key 串行化请求，并保证两次派发间隔不小于 MinInterval。
// 不同 key 之间互不阻塞。
type Throttler struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 创建节流器并启动后台清理
func New(cfg Config, logger *zap.Logger) *Throttler {
	def := DefaultConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Throttler{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "throttler")),
		lanes:  make(map[string]*lane),
		cancel: cancel,
	}

	t.wg.Add(1)
	go t.sweepLoop(ctx)

	return t
}

// Enqueue 将 fn 排入 key 对应的队列，阻塞直到 fn 执行完毕（返回其错误）或 ctx 取消。
// ctx 在 fn 开始前取消时，fn 不会被执行。
func (t *Throttler) Enqueue(ctx context.Context, key string, fn func() error) error {
	l, err := t.acquire(key)
	if err != nil {
		return err
	}

	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	select {
	case l.jobs <- j:
	case <-ctx.Done():
		t.release(l)
		return ctx.Err()
	case <-l.stop:
		t.release(l)
		return ErrClosed
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stop:
		return ErrClosed
	}
}

// LastDispatch 返回 key 最近一次派发时间
func (t *Throttler) LastDispatch(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.lanes[key]
	if !ok || l.lastDispatch.IsZero() {
		return time.Time{}, false
	}
	return l.lastDispatch, true
}

// Keys 当前活跃的 key 数量
func (t *Throttler) Keys() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.lanes)
}

// Close 停止清理与所有队列
func (t *Throttler) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for key, l := range t.lanes {
		close(l.stop)
		delete(t.lanes, key)
	}
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Throttler) acquire(key string) (*lane, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	l, ok := t.lanes[key]
	if !ok {
		l = &lane{
			key:     key,
			limiter: rate.NewLimiter(rate.Every(t.cfg.MinInterval), 1),
			jobs:    make(chan *job, t.cfg.QueueSize),
			stop:    make(chan struct{}),
		}
		t.lanes[key] = l

		t.wg.Add(1)
		go t.serve(l)
	}
	l.pending++
	l.lastActive = time.Now()
	return l, nil
}

func (t *Throttler) release(l *lane) {
	t.mu.Lock()
	l.pending--
	l.lastActive = time.Now()
	t.mu.Unlock()
}

// serve 按提交顺序执行 lane 中的任务
func (t *Throttler) serve(l *lane) {
	defer t.wg.Done()

	for {
		select {
		case <-l.stop:
			return
		case j := <-l.jobs:
			err := t.run(l, j)
			t.release(l)
			j.done <- err
		}
	}
}

func (t *Throttler) run(l *lane, j *job) error {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	if err := l.limiter.Wait(j.ctx); err != nil {
		return err
	}

	t.mu.Lock()
	l.lastDispatch = time.Now()
	t.mu.Unlock()

	return j.fn()
}

func (t *Throttler) sweepLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep(time.Now())
		}
	}
}

// sweep 清理空闲超过 Retention 的 key
func (t *Throttler) sweep(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for key, l := range t.lanes {
		if l.pending > 0 || now.Sub(l.lastActive) <= t.cfg.Retention {
			continue
		}
		close(l.stop)
		delete(t.lanes, key)
		removed++
	}
	if removed > 0 {
		t.logger.Debug("清理空闲节流队列", zap.Int("removed", removed), zap.Int("remaining", len(t.lanes)))
	}
	return removed
}
