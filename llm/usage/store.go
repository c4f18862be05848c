package usage

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/cache"
)

// Delta 一次用量记录对计数器的增量
type Delta struct {
	Ints   map[string]int64
	Floats map[string]float64
}

// Store 计数器存储契约：读取与原子递增。
// 同一个 key 的一次 Increment 内的所有字段必须原子生效。
type Store interface {
	Increment(ctx context.Context, key string, delta Delta, ttl time.Duration) error
	GetAll(ctx context.Context, key string) (map[string]string, error)
}

// =============================================================================
// MemoryStore
// =============================================================================

type memoryBucket struct {
	fields    map[string]float64
	isFloat   map[string]bool
	expiresAt time.Time
}

// MemoryStore 进程内存储，适用于单实例与测试
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
	now     func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*memoryBucket),
		now:     time.Now,
	}
}

// Increment 实现 Store
func (s *MemoryStore) Increment(_ context.Context, key string, delta Delta, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bucket(key)
	if b == nil {
		b = &memoryBucket{fields: make(map[string]float64), isFloat: make(map[string]bool)}
		s.buckets[key] = b
	}
	for f, n := range delta.Ints {
		b.fields[f] += float64(n)
	}
	for f, v := range delta.Floats {
		b.fields[f] += v
		b.isFloat[f] = true
	}
	if ttl > 0 {
		b.expiresAt = s.now().Add(ttl)
	}
	return nil
}

// GetAll 实现 Store
func (s *MemoryStore) GetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string)
	b := s.bucket(key)
	if b == nil {
		return out, nil
	}
	for f, v := range b.fields {
		if b.isFloat[f] {
			out[f] = strconv.FormatFloat(v, 'f', -1, 64)
		} else {
			out[f] = strconv.FormatInt(int64(v), 10)
		}
	}
	return out, nil
}

// bucket 返回未过期的桶，过期的顺便删除
func (s *MemoryStore) bucket(key string) *memoryBucket {
	b, ok := s.buckets[key]
	if !ok {
		return nil
	}
	if !b.expiresAt.IsZero() && !s.now().Before(b.expiresAt) {
		delete(s.buckets, key)
		return nil
	}
	return b
}

// =============================================================================
// RedisStore
// =============================================================================

// RedisStore 基于 Redis 哈希的存储，HINCRBY/HINCRBYFLOAT 在事务中执行
type RedisStore struct {
	manager *cache.Manager
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(manager *cache.Manager) *RedisStore {
	return &RedisStore{manager: manager}
}

// Increment 实现 Store
func (s *RedisStore) Increment(ctx context.Context, key string, delta Delta, ttl time.Duration) error {
	return s.manager.IncrementHash(ctx, s.manager.Key(key), cache.HashIncrement{
		Ints:   delta.Ints,
		Floats: delta.Floats,
		TTL:    ttl,
	})
}

// GetAll 实现 Store
func (s *RedisStore) GetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.manager.HGetAll(ctx, s.manager.Key(key))
}
