package persistence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
)

// ErrNotFound 工作流状态不存在
var ErrNotFound = errors.New("workflow state not found")

// ErrNotPaused 工作流没有等待中的追问
var ErrNotPaused = errors.New("workflow is not waiting for input")

// Store 工作流状态存储。
// 所有写操作在返回 nil 之前必须已经持久化，执行器据此判断步骤是否可以报告完成。
type Store interface {
	// Save 按补丁更新状态，不存在时创建
	Save(ctx context.Context, id string, patch Patch) error
	Load(ctx context.Context, id string) (*types.WorkflowState, error)
	// AppendStepOutput 记录步骤产出，状态不存在时创建；同一步骤重复执行时覆盖之前的产出
	AppendStepOutput(ctx context.Context, id string, out types.StepOutput) error
	Checkpoint(ctx context.Context, id string, cp types.Checkpoint) error
	SetPause(ctx context.Context, id string, req *types.ElicitationRequest, step *types.StepContext) error
	// ClearPause 比较并清除暂停标记：状态未暂停时返回 ErrNotPaused 且不做任何修改，
	// 并发恢复同一个工作流时只有一个调用方成功
	ClearPause(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]*types.WorkflowState, error)
}

// ListFilter List 过滤条件，零值表示不过滤
type ListFilter struct {
	UserID string
	Status types.WorkflowStatus
	Limit  int
}

func (f ListFilter) match(st *types.WorkflowState) bool {
	if f.UserID != "" && st.UserID != f.UserID {
		return false
	}
	if f.Status != "" && st.Status != f.Status {
		return false
	}
	return true
}

// Patch 状态补丁，nil 字段保持不变
type Patch struct {
	DefinitionID *string
	Definition   *types.WorkflowDefinition
	UserID       *string
	Status       *types.WorkflowStatus
	CurrentStep  *int
	Project      *types.ProjectInfo
	Repository   *types.RepositoryInfo
	UserPrompt   *string
	Error        *string
	// AppendMessages 追加到消息历史
	AppendMessages []types.Message
}

// Apply 将补丁应用到状态
func (p Patch) Apply(st *types.WorkflowState) {
	if p.DefinitionID != nil {
		st.DefinitionID = *p.DefinitionID
	}
	if p.Definition != nil {
		st.Definition = p.Definition
	}
	if p.UserID != nil {
		st.UserID = *p.UserID
	}
	if p.Status != nil {
		st.Status = *p.Status
	}
	if p.CurrentStep != nil {
		st.CurrentStep = *p.CurrentStep
	}
	if p.Project != nil {
		st.Project = *p.Project
	}
	if p.Repository != nil {
		st.Repository = p.Repository
	}
	if p.UserPrompt != nil {
		st.UserPrompt = *p.UserPrompt
	}
	if p.Error != nil {
		st.Error = *p.Error
	}
	st.Messages = append(st.Messages, p.AppendMessages...)
}

// Ptr 返回值的指针，方便构造 Patch
func Ptr[T any](v T) *T { return &v }

// =============================================================================
// 公共实现
// =============================================================================

// backend 只负责读写完整状态；update 必须对同一 id 串行化
type backend interface {
	name() string
	load(ctx context.Context, id string) (*types.WorkflowState, error)
	update(ctx context.Context, id string, create bool, fn func(st *types.WorkflowState) error) error
	all(ctx context.Context) ([]*types.WorkflowState, error)
}

// ops 在 backend 之上实现 Store 的全部语义
type ops struct {
	b       backend
	now     func() time.Time
	metrics *metrics.Collector
	logger  *zap.Logger
}

func newOps(b backend, collector *metrics.Collector, logger *zap.Logger) ops {
	if logger == nil {
		logger = zap.NewNop()
	}
	return ops{
		b:       b,
		now:     time.Now,
		metrics: collector,
		logger:  logger.With(zap.String("component", "state_store"), zap.String("backend", b.name())),
	}
}

func (o *ops) record(op string, err error) error {
	o.metrics.RecordStoreOp(o.b.name(), op, err == nil)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrNotPaused) {
		o.logger.Warn("state store operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (o *ops) mutate(ctx context.Context, op, id string, create bool, fn func(st *types.WorkflowState) error) error {
	if id == "" {
		return o.record(op, errors.New("empty workflow id"))
	}
	err := o.b.update(ctx, id, create, func(st *types.WorkflowState) error {
		now := o.now().UTC()
		if st.CreatedAt.IsZero() {
			st.ID = id
			st.CreatedAt = now
			if st.Status == "" {
				st.Status = types.WorkflowRunning
			}
		}
		if err := fn(st); err != nil {
			return err
		}
		st.UpdatedAt = now
		return nil
	})
	if err != nil {
		err = fmt.Errorf("%s %s: %w", op, id, err)
	}
	return o.record(op, err)
}

// Save 实现 Store
func (o *ops) Save(ctx context.Context, id string, patch Patch) error {
	return o.mutate(ctx, "save", id, true, func(st *types.WorkflowState) error {
		patch.Apply(st)
		return nil
	})
}

// Load 实现 Store
func (o *ops) Load(ctx context.Context, id string) (*types.WorkflowState, error) {
	st, err := o.b.load(ctx, id)
	if err != nil {
		return nil, o.record("load", fmt.Errorf("load %s: %w", id, err))
	}
	o.record("load", nil)
	return st, nil
}

// AppendStepOutput 实现 Store
func (o *ops) AppendStepOutput(ctx context.Context, id string, out types.StepOutput) error {
	return o.mutate(ctx, "append_output", id, true, func(st *types.WorkflowState) error {
		for i := range st.Outputs {
			if st.Outputs[i].StepIndex == out.StepIndex {
				st.Outputs[i] = out
				return nil
			}
		}
		st.Outputs = append(st.Outputs, out)
		sort.SliceStable(st.Outputs, func(i, j int) bool { return st.Outputs[i].StepIndex < st.Outputs[j].StepIndex })
		return nil
	})
}

// Checkpoint 实现 Store
func (o *ops) Checkpoint(ctx context.Context, id string, cp types.Checkpoint) error {
	return o.mutate(ctx, "checkpoint", id, false, func(st *types.WorkflowState) error {
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = o.now().UTC()
		}
		st.Checkpoints = append(st.Checkpoints, cp)
		return nil
	})
}

// SetPause 实现 Store
func (o *ops) SetPause(ctx context.Context, id string, req *types.ElicitationRequest, step *types.StepContext) error {
	return o.mutate(ctx, "set_pause", id, true, func(st *types.WorkflowState) error {
		st.Paused = true
		st.Status = types.WorkflowPaused
		st.Pending = req
		st.PendingStep = step.Clone()
		if req != nil {
			st.CurrentStep = req.StepIndex
		}
		return nil
	})
}

// ClearPause 实现 Store
func (o *ops) ClearPause(ctx context.Context, id string) error {
	return o.mutate(ctx, "clear_pause", id, false, func(st *types.WorkflowState) error {
		if !st.Paused {
			return ErrNotPaused
		}
		st.Paused = false
		st.Pending = nil
		st.PendingStep = nil
		if st.Status == types.WorkflowPaused {
			st.Status = types.WorkflowRunning
		}
		return nil
	})
}

// List 实现 Store，按创建时间升序
func (o *ops) List(ctx context.Context, filter ListFilter) ([]*types.WorkflowState, error) {
	states, err := o.b.all(ctx)
	if err != nil {
		return nil, o.record("list", fmt.Errorf("list: %w", err))
	}
	out := make([]*types.WorkflowState, 0, len(states))
	for _, st := range states {
		if filter.match(st) {
			out = append(out, st)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	o.record("list", nil)
	return out, nil
}
