package persistence

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
)

// MemoryStore 进程内状态存储，用于测试与单进程运行。进程退出后状态丢失。
type MemoryStore struct {
	ops
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(collector *metrics.Collector, logger *zap.Logger) *MemoryStore {
	return &MemoryStore{ops: newOps(&memoryBackend{states: make(map[string]*types.WorkflowState)}, collector, logger)}
}

type memoryBackend struct {
	mu     sync.Mutex
	states map[string]*types.WorkflowState
}

func (m *memoryBackend) name() string { return "memory" }

func (m *memoryBackend) load(_ context.Context, id string) (*types.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneState(st)
}

func (m *memoryBackend) update(_ context.Context, id string, create bool, fn func(*types.WorkflowState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var st *types.WorkflowState
	if cur, ok := m.states[id]; ok {
		cp, err := cloneState(cur)
		if err != nil {
			return err
		}
		st = cp
	} else if create {
		st = &types.WorkflowState{}
	} else {
		return ErrNotFound
	}
	if err := fn(st); err != nil {
		return err
	}
	m.states[id] = st
	return nil
}

func (m *memoryBackend) all(_ context.Context) ([]*types.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*types.WorkflowState, 0, len(m.states))
	for _, st := range m.states {
		cp, err := cloneState(st)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// cloneState 经 JSON 往返深拷贝，和 Redis/数据库后端读出的结果保持一致
func cloneState(st *types.WorkflowState) (*types.WorkflowState, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	var out types.WorkflowState
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
