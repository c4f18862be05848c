package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/persistence"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AgentLoader 按 ID 加载 Agent，template.Catalog 实现了它
type AgentLoader interface {
	Agent(ctx context.Context, id string) (*types.Agent, error)
}

// StartInput 启动工作流的输入
type StartInput struct {
	UserID     string
	UserPrompt string
	Project    types.ProjectInfo
	Repository *types.RepositoryInfo
}

// RunResult 一次 Start / Continue / Resume 停下来时的状态
type RunResult struct {
	WorkflowID string               `json:"workflow_id"`
	Status     types.WorkflowStatus `json:"status"`
	// StepIndex 最后执行（或等待回答）的步骤
	StepIndex   int                       `json:"step_index"`
	Elicitation *types.ElicitationRequest `json:"elicitation,omitempty"`
	Last        *ExecutionResult          `json:"last,omitempty"`
	Error       string                    `json:"error,omitempty"`
}

// Engine 按顺序执行工作流定义中的步骤。
// 每个步骤完成后写检查点；遇到追问暂停，遇到失败终止。不同工作流可以并发执行。
type Engine struct {
	executor    *StepExecutor
	coordinator *ElicitationCoordinator
	store       persistence.Store
	agents      AgentLoader
	now         func() time.Time
	logger      *zap.Logger
}

// NewEngine 创建工作流引擎
func NewEngine(executor *StepExecutor, store persistence.Store, agents AgentLoader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		executor:    executor,
		coordinator: executor.coordinator,
		store:       store,
		agents:      agents,
		now:         time.Now,
		logger:      logger.With(zap.String("component", "workflow_engine")),
	}
}

// Start 创建工作流状态并从第一个步骤开始执行
func (e *Engine) Start(ctx context.Context, def *types.WorkflowDefinition, in StartInput) (*RunResult, error) {
	if def == nil || len(def.Steps) == 0 {
		return nil, fmt.Errorf("start: %w: no steps", template.ErrInvalidWorkflow)
	}
	id := uuid.NewString()
	if err := e.store.Save(ctx, id, persistence.Patch{
		DefinitionID: persistence.Ptr(def.ID),
		Definition:   def,
		UserID:       persistence.Ptr(in.UserID),
		Status:       persistence.Ptr(types.WorkflowRunning),
		CurrentStep:  persistence.Ptr(0),
		Project:      &in.Project,
		Repository:   in.Repository,
		UserPrompt:   persistence.Ptr(in.UserPrompt),
	}); err != nil {
		return nil, err
	}
	e.logger.Info("workflow started",
		zap.String("workflow_id", id),
		zap.String("definition", def.ID),
		zap.Int("steps", len(def.Steps)))
	return e.run(ctx, id)
}

// Continue 从当前步骤继续执行
func (e *Engine) Continue(ctx context.Context, workflowID string) (*RunResult, error) {
	return e.run(ctx, workflowID)
}

// Resume 提交用户回答，重新执行暂停的步骤，成功后继续后续步骤
func (e *Engine) Resume(ctx context.Context, workflowID, answer, agentID string) (*RunResult, error) {
	st, err := e.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !st.Paused || st.Pending == nil {
		return nil, fmt.Errorf("resume %s: %w", workflowID, ErrNotPaused)
	}
	idx := st.Pending.StepIndex
	if agentID == "" {
		agentID = st.Pending.AgentID
	}

	res, err := e.coordinator.Resume(ctx, workflowID, answer, agentID)
	if err != nil {
		return nil, err
	}
	if stop, rr, err := e.settle(ctx, workflowID, idx, agentID, res); stop || err != nil {
		return rr, err
	}
	return e.run(ctx, workflowID)
}

func (e *Engine) run(ctx context.Context, workflowID string) (*RunResult, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st, err := e.store.Load(ctx, workflowID)
		if err != nil {
			return nil, err
		}
		if st.Definition == nil {
			return nil, fmt.Errorf("run %s: %w: definition missing", workflowID, template.ErrInvalidWorkflow)
		}

		switch {
		case st.Paused:
			return &RunResult{WorkflowID: workflowID, Status: types.WorkflowPaused, StepIndex: st.CurrentStep, Elicitation: st.Pending}, nil
		case st.Status.IsTerminal():
			return &RunResult{WorkflowID: workflowID, Status: st.Status, StepIndex: st.CurrentStep, Error: st.Error}, nil
		case st.CurrentStep >= len(st.Definition.Steps):
			return e.finish(ctx, st)
		}

		idx := st.CurrentStep
		step := st.Definition.Steps[idx]
		agent, err := e.agents.Agent(ctx, step.Agent)
		if err != nil {
			if errors.Is(err, template.ErrAgentNotFound) {
				res := failureResult(types.ErrAgentNotFound, err, 0)
				_, rr, ferr := e.settle(ctx, workflowID, idx, step.Agent, res)
				return rr, ferr
			}
			return nil, err
		}

		emit(ctx, WorkflowStreamEvent{Type: WorkflowEventStepStart, WorkflowID: workflowID, StepIndex: idx, AgentID: agent.ID})
		cfg := e.executor.Defaults()
		cfg.Conversational = step.Conversational
		res, err := e.executor.ExecuteStep(ctx, agent, stepContext(st, idx), cfg)
		if err != nil {
			e.fail(ctx, workflowID, err.Error())
			emit(ctx, WorkflowStreamEvent{Type: WorkflowEventStepFailed, WorkflowID: workflowID, StepIndex: idx, AgentID: agent.ID, Error: err})
			return nil, err
		}
		if stop, rr, err := e.settle(ctx, workflowID, idx, agent.ID, res); stop || err != nil {
			return rr, err
		}
	}
}

// settle 根据步骤结果推进状态，stop 为 true 时工作流停在当前步骤
func (e *Engine) settle(ctx context.Context, workflowID string, idx int, agentID string, res *ExecutionResult) (bool, *RunResult, error) {
	rr := &RunResult{WorkflowID: workflowID, StepIndex: idx, Last: res}
	ev := WorkflowStreamEvent{WorkflowID: workflowID, StepIndex: idx, AgentID: agentID, Result: res}

	switch res.Outcome {
	case OutcomeElicitation:
		rr.Status = types.WorkflowPaused
		rr.Elicitation = res.Elicitation
		ev.Type = WorkflowEventStepPaused
		emit(ctx, ev)
		return true, rr, nil

	case OutcomeSuccess:
		if err := e.store.Checkpoint(ctx, workflowID, types.Checkpoint{
			ID:        uuid.NewString(),
			StepIndex: idx,
			Status:    types.WorkflowRunning,
		}); err != nil {
			return true, nil, err
		}
		if err := e.store.Save(ctx, workflowID, persistence.Patch{
			CurrentStep: persistence.Ptr(idx + 1),
			AppendMessages: []types.Message{{
				Role:      types.RoleAgent,
				AgentID:   agentID,
				Content:   res.Content,
				Timestamp: e.now().UTC(),
			}},
		}); err != nil {
			return true, nil, err
		}
		ev.Type = WorkflowEventStepComplete
		emit(ctx, ev)
		return false, rr, nil

	default:
		msg := res.Error
		if msg == "" {
			msg = string(res.Category)
		}
		e.fail(ctx, workflowID, msg)
		rr.Status = types.WorkflowFailed
		rr.Error = msg
		ev.Type = WorkflowEventStepFailed
		ev.Error = errors.New(msg)
		emit(ctx, ev)
		e.logger.Warn("workflow failed",
			zap.String("workflow_id", workflowID),
			zap.Int("step_index", idx),
			zap.String("category", string(res.Category)))
		return true, rr, nil
	}
}

func (e *Engine) finish(ctx context.Context, st *types.WorkflowState) (*RunResult, error) {
	if err := e.store.Save(ctx, st.ID, persistence.Patch{Status: persistence.Ptr(types.WorkflowCompleted)}); err != nil {
		return nil, err
	}
	emit(ctx, WorkflowStreamEvent{Type: WorkflowEventComplete, WorkflowID: st.ID, StepIndex: st.CurrentStep})
	e.logger.Info("workflow completed", zap.String("workflow_id", st.ID), zap.Int("outputs", len(st.Outputs)))
	return &RunResult{WorkflowID: st.ID, Status: types.WorkflowCompleted, StepIndex: st.CurrentStep}, nil
}

func (e *Engine) fail(ctx context.Context, workflowID, msg string) {
	if err := e.store.Save(ctx, workflowID, persistence.Patch{
		Status: persistence.Ptr(types.WorkflowFailed),
		Error:  persistence.Ptr(msg),
	}); err != nil {
		e.logger.Error("failed status not persisted", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

// stepContext 由工作流状态构造第 idx 个步骤的上下文
func stepContext(st *types.WorkflowState, idx int) *types.StepContext {
	step := st.Definition.Steps[idx]
	sc := &types.StepContext{
		WorkflowID: st.ID,
		UserID:     st.UserID,
		StepIndex:  idx,
		AgentID:    step.Agent,
		UserPrompt: st.UserPrompt,
		Action:     strings.TrimSpace(step.Action),
		Command:    step.Command,
		Uses:       step.Uses,
		Creates:    step.Creates,
		TemplateID: step.Template,
		Notes:      step.Notes,
		Project:    st.Project,
		Repository: st.Repository,
	}
	for _, out := range st.Outputs {
		if out.StepIndex < idx {
			sc.PriorOutputs = append(sc.PriorOutputs, out)
		}
	}
	return sc
}
