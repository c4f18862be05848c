package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "test:",
		DefaultTTL: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestManager_Key(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.Equal(t, "test:usage:u1:2025-01-01", manager.Key("usage", "u1", "2025-01-01"))
	assert.Equal(t, "test:", manager.Key())
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}

func TestManager_GetMissing(t *testing.T) {
	_, manager := setupTestRedis(t)

	value, err := manager.Get(context.Background(), "missing")
	assert.True(t, IsCacheMiss(err))
	assert.Empty(t, value)
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, manager.Delete(ctx, "k"))

	n, err := manager.Exists(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type state struct {
		ID   string `json:"id"`
		Step int    `json:"step"`
	}

	require.NoError(t, manager.SetJSON(ctx, "wf", state{ID: "wf-1", Step: 2}, 0))

	var got state
	require.NoError(t, manager.GetJSON(ctx, "wf", &got))
	assert.Equal(t, state{ID: "wf-1", Step: 2}, got)

	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), 0))

	require.NoError(t, manager.Set(ctx, "not-json", "{", 0))
	assert.Error(t, manager.GetJSON(ctx, "not-json", &got))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	mr.FastForward(2 * time.Minute)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

// =============================================================================
// 🔢 哈希计数
// =============================================================================

func TestManager_IncrementHash(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	inc := HashIncrement{
		Ints:   map[string]int64{"requests": 1, "tokens": 120},
		Floats: map[string]float64{"cost": 0.25},
		TTL:    48 * time.Hour,
	}
	require.NoError(t, manager.IncrementHash(ctx, "bucket", inc))
	require.NoError(t, manager.IncrementHash(ctx, "bucket", inc))

	vals, err := manager.HGetAll(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, "2", vals["requests"])
	assert.Equal(t, "240", vals["tokens"])
	assert.Equal(t, "0.5", vals["cost"])
	assert.Equal(t, 48*time.Hour, mr.TTL("bucket"))
}

func TestManager_HGetAllMissing(t *testing.T) {
	_, manager := setupTestRedis(t)

	vals, err := manager.HGetAll(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, vals)
}

func TestManager_ConcurrentIncrements(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manager.IncrementHash(ctx, "bucket", HashIncrement{Ints: map[string]int64{"requests": 1}}))
		}()
	}
	wg.Wait()

	vals, err := manager.HGetAll(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, "20", vals["requests"])
}

// =============================================================================
// 📚 集合
// =============================================================================

func TestManager_Sets(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.SAdd(ctx, "ids", "a", "b"))
	require.NoError(t, manager.SAdd(ctx, "ids", "b"))
	require.NoError(t, manager.SAdd(ctx, "ids"))

	members, err := manager.SMembers(ctx, "ids")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)
}

// =============================================================================
// 🏥 连接管理
// =============================================================================

func TestManager_Ping(t *testing.T) {
	_, manager := setupTestRedis(t)
	assert.NoError(t, manager.Ping(context.Background()))
}

func TestManager_ConnectFailure(t *testing.T) {
	manager, err := NewManager(Config{Addr: "localhost:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	_, err := manager.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, manager.IncrementHash(context.Background(), "k", HashIncrement{}), ErrClosed)
}
