package persistence

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/config"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/cache"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/database"
	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storeFactory func(t *testing.T) Store

func newRedisTestStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "dt:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewRedisStore(m, time.Hour, nil, zap.NewNop())
}

func newGormTestStore(t *testing.T) Store {
	t.Helper()
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "state.db"), MaxOpenConns: 1}
	pool, err := database.Open(cfg, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	s, err := NewGormStore(pool, nil, zap.NewNop())
	require.NoError(t, err)
	return s
}

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) Store { return NewMemoryStore(nil, zap.NewNop()) },
		"redis":  newRedisTestStore,
		"gorm":   newGormTestStore,
	}
}

// forEachBackend 对每个后端运行同一组用例
func forEachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

// ---------------------------------------------------------------------------
// 契约
// ---------------------------------------------------------------------------

func TestStore_LoadMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		_, err := s.Load(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStore_SaveCreatesAndPatches(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		def := &types.WorkflowDefinition{ID: "greenfield", Steps: []types.WorkflowStep{{Agent: "pm", Command: "create-prd"}}}

		require.NoError(t, s.Save(ctx, "wf-1", Patch{
			DefinitionID: Ptr("greenfield"),
			Definition:   def,
			UserID:       Ptr("u1"),
			Project:      &types.ProjectInfo{Name: "Tasky"},
			UserPrompt:   Ptr("a todo app"),
		}))

		st, err := s.Load(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, "wf-1", st.ID)
		assert.Equal(t, types.WorkflowRunning, st.Status)
		assert.Equal(t, "Tasky", st.Project.Name)
		require.NotNil(t, st.Definition)
		assert.Equal(t, "create-prd", st.Definition.Steps[0].Command)
		assert.False(t, st.CreatedAt.IsZero())
		created := st.CreatedAt

		require.NoError(t, s.Save(ctx, "wf-1", Patch{
			CurrentStep:    Ptr(1),
			Status:         Ptr(types.WorkflowCompleted),
			AppendMessages: []types.Message{{Role: types.RoleUser, Content: "hi"}},
		}))
		st, err = s.Load(ctx, "wf-1")
		require.NoError(t, err)
		assert.Equal(t, 1, st.CurrentStep)
		assert.Equal(t, types.WorkflowCompleted, st.Status)
		assert.Equal(t, "u1", st.UserID, "untouched fields survive a patch")
		require.Len(t, st.Messages, 1)
		assert.True(t, created.Equal(st.CreatedAt))
	})
}

func TestStore_AppendStepOutput(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		require.NoError(t, s.AppendStepOutput(ctx, "wf-1", types.StepOutput{StepIndex: 1, Content: "b0"}))
		require.NoError(t, s.AppendStepOutput(ctx, "wf-1", types.StepOutput{StepIndex: 1, Content: "b"}))
		require.NoError(t, s.AppendStepOutput(ctx, "wf-1", types.StepOutput{StepIndex: 0, Content: "a"}))
		require.NoError(t, s.AppendStepOutput(ctx, "wf-1", types.StepOutput{StepIndex: 1, Content: "b2"}))

		st, err := s.Load(ctx, "wf-1")
		require.NoError(t, err)
		require.Len(t, st.Outputs, 2)
		assert.Equal(t, "a", st.Outputs[0].Content)
		assert.Equal(t, "b2", st.Outputs[1].Content)
	})
}

func TestStore_Checkpoint(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.Checkpoint(ctx, "missing", types.Checkpoint{ID: "cp-0"})
		assert.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.Save(ctx, "wf-1", Patch{}))
		require.NoError(t, s.Checkpoint(ctx, "wf-1", types.Checkpoint{ID: "cp-1", StepIndex: 0, Status: types.WorkflowRunning}))

		st, err := s.Load(ctx, "wf-1")
		require.NoError(t, err)
		require.Len(t, st.Checkpoints, 1)
		assert.Equal(t, "cp-1", st.Checkpoints[0].ID)
		assert.False(t, st.Checkpoints[0].CreatedAt.IsZero())
	})
}

func TestStore_PauseRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		req := &types.ElicitationRequest{ID: "el-1", WorkflowID: "wf-1", StepIndex: 2, Question: "Who are the users?"}
		sc := &types.StepContext{WorkflowID: "wf-1", StepIndex: 2, AgentID: "pm", Creates: "prd.md"}

		require.NoError(t, s.SetPause(ctx, "wf-1", req, sc))
		sc.Creates = "mutated-after-save.md"

		st, err := s.Load(ctx, "wf-1")
		require.NoError(t, err)
		assert.True(t, st.Paused)
		assert.Equal(t, types.WorkflowPaused, st.Status)
		assert.Equal(t, 2, st.CurrentStep)
		require.NotNil(t, st.Pending)
		assert.Equal(t, "Who are the users?", st.Pending.Question)
		require.NotNil(t, st.PendingStep)
		assert.Equal(t, "prd.md", st.PendingStep.Creates)

		require.NoError(t, s.ClearPause(ctx, "wf-1"))
		st, err = s.Load(ctx, "wf-1")
		require.NoError(t, err)
		assert.False(t, st.Paused)
		assert.Nil(t, st.Pending)
		assert.Nil(t, st.PendingStep)
		assert.Equal(t, types.WorkflowRunning, st.Status)
	})
}

func TestStore_ClearPauseIsCompareAndClear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, "wf-run", Patch{UserID: Ptr("u1")}))
		assert.ErrorIs(t, s.ClearPause(ctx, "wf-run"), ErrNotPaused)

		req := &types.ElicitationRequest{ID: "el-1", WorkflowID: "wf-1", StepIndex: 0, Question: "Who?"}
		require.NoError(t, s.SetPause(ctx, "wf-1", req, &types.StepContext{WorkflowID: "wf-1"}))
		before, err := s.Load(ctx, "wf-1")
		require.NoError(t, err)

		require.NoError(t, s.ClearPause(ctx, "wf-1"))
		assert.ErrorIs(t, s.ClearPause(ctx, "wf-1"), ErrNotPaused)

		after, err := s.Load(ctx, "wf-1")
		require.NoError(t, err)
		assert.False(t, after.Paused)
		assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))

		assert.ErrorIs(t, s.ClearPause(ctx, "missing"), ErrNotFound)
	})
}

func TestStore_List(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, user := range []string{"u1", "u2", "u1"} {
			require.NoError(t, s.Save(ctx, fmt.Sprintf("wf-%d", i), Patch{UserID: Ptr(user)}))
		}
		require.NoError(t, s.Save(ctx, "wf-2", Patch{Status: Ptr(types.WorkflowFailed)}))

		all, err := s.List(ctx, ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		mine, err := s.List(ctx, ListFilter{UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, mine, 2)

		failed, err := s.List(ctx, ListFilter{UserID: "u1", Status: types.WorkflowFailed})
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "wf-2", failed[0].ID)

		limited, err := s.List(ctx, ListFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

func TestStore_ConcurrentWorkflows(t *testing.T) {
	forEachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("wf-%d", i)
				assert.NoError(t, s.Save(ctx, id, Patch{}))
				for step := 0; step < 3; step++ {
					assert.NoError(t, s.AppendStepOutput(ctx, id, types.StepOutput{StepIndex: step}))
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < 8; i++ {
			st, err := s.Load(ctx, fmt.Sprintf("wf-%d", i))
			require.NoError(t, err)
			assert.Len(t, st.Outputs, 3)
		}
	})
}

func TestStore_EmptyID(t *testing.T) {
	s := NewMemoryStore(nil, zap.NewNop())
	assert.Error(t, s.Save(context.Background(), "", Patch{}))
}

// ---------------------------------------------------------------------------
// 后端细节
// ---------------------------------------------------------------------------

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore(nil, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "wf-1", Patch{UserID: Ptr("u1")}))

	st, err := s.Load(ctx, "wf-1")
	require.NoError(t, err)
	st.UserID = "changed"

	again, err := s.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", again.UserID)
}

func TestRedisStore_SkipsExpiredIndexEntries(t *testing.T) {
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), KeyPrefix: "dt:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	s := NewRedisStore(m, time.Minute, nil, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "wf-1", Patch{}))
	assert.True(t, mr.Exists("dt:workflow:wf-1"))
	assert.True(t, mr.Exists("dt:workflows"))

	mr.FastForward(2 * time.Minute)

	list, err := s.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = s.Load(ctx, "wf-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegistry("test", reg, zap.NewNop())
	s := NewMemoryStore(collector, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "wf-1", Patch{}))
	_, _ = s.Load(ctx, "missing")

	n, err := testutil.GatherAndCount(reg, "test_state_store_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
