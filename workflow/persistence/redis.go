package persistence

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/cache"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
)

// RedisStore 以 JSON 形式把状态保存在 Redis 中，另用一个集合索引全部工作流 ID。
// 读改写在进程内按 ID 加锁；同一工作流只有一个写入方，不需要分布式锁。
type RedisStore struct {
	ops
}

// NewRedisStore 创建 Redis 存储，ttl 为 0 时使用 cache.Manager 的默认过期时间
func NewRedisStore(manager *cache.Manager, ttl time.Duration, collector *metrics.Collector, logger *zap.Logger) *RedisStore {
	return &RedisStore{ops: newOps(&redisBackend{manager: manager, ttl: ttl}, collector, logger)}
}

const lockStripes = 32

type redisBackend struct {
	manager *cache.Manager
	ttl     time.Duration
	locks   [lockStripes]sync.Mutex
}

func (r *redisBackend) name() string { return "redis" }

func (r *redisBackend) stateKey(id string) string { return r.manager.Key("workflow", id) }

func (r *redisBackend) indexKey() string { return r.manager.Key("workflows") }

func (r *redisBackend) lock(id string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return &r.locks[h.Sum32()%lockStripes]
}

func (r *redisBackend) load(ctx context.Context, id string) (*types.WorkflowState, error) {
	var st types.WorkflowState
	if err := r.manager.GetJSON(ctx, r.stateKey(id), &st); err != nil {
		if cache.IsCacheMiss(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (r *redisBackend) update(ctx context.Context, id string, create bool, fn func(*types.WorkflowState) error) error {
	mu := r.lock(id)
	mu.Lock()
	defer mu.Unlock()

	st, err := r.load(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound) && create:
		st = &types.WorkflowState{}
	case err != nil:
		return err
	}
	if err := fn(st); err != nil {
		return err
	}
	if err := r.manager.SetJSON(ctx, r.stateKey(id), st, r.ttl); err != nil {
		return err
	}
	return r.manager.SAdd(ctx, r.indexKey(), id)
}

// all 跳过索引中已过期的条目
func (r *redisBackend) all(ctx context.Context) ([]*types.WorkflowState, error) {
	ids, err := r.manager.SMembers(ctx, r.indexKey())
	if err != nil {
		return nil, err
	}
	out := make([]*types.WorkflowState, 0, len(ids))
	for _, id := range ids {
		st, err := r.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}
