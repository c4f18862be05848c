package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/persistence"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/prompt"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotPaused 工作流没有等待中的追问
var ErrNotPaused = persistence.ErrNotPaused

// ErrEmptyAnswer 回答为空
var ErrEmptyAnswer = errors.New("empty answer")

// ElicitationCoordinator 负责向用户追问，以及拿到回答后恢复步骤。
// 追问本身永远不会失败：改写问题失败时直接使用章节说明原文。
type ElicitationCoordinator struct {
	gateway  Gateway
	store    persistence.Store
	catalog  template.Catalog
	executor *StepExecutor

	rephrase bool
	now      func() time.Time
	logger   *zap.Logger
}

// CoordinatorOption 追问协调器选项
type CoordinatorOption func(*ElicitationCoordinator)

// WithRephrase 是否调用模型把章节说明改写成面向用户的问题。
// 默认关闭：不开启时追问不产生任何模型调用。
func WithRephrase(enabled bool) CoordinatorOption {
	return func(c *ElicitationCoordinator) { c.rephrase = enabled }
}

// NewElicitationCoordinator 创建追问协调器。gateway 为 nil 时不改写问题。
func NewElicitationCoordinator(gateway Gateway, store persistence.Store, catalog template.Catalog, logger *zap.Logger, opts ...CoordinatorOption) *ElicitationCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ElicitationCoordinator{
		gateway: gateway,
		store:   store,
		catalog: catalog,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "elicitation")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ElicitationCoordinator) bind(e *StepExecutor) {
	c.executor = e
	if c.store == nil {
		c.store = e.store
	}
}

// Prepare 为章节生成追问并暂停工作流
func (c *ElicitationCoordinator) Prepare(ctx context.Context, agent *types.Agent, section types.Section, sc *types.StepContext) *types.ElicitationRequest {
	return c.Ask(ctx, agent, section, sc, "")
}

// Ask 与 Prepare 相同，但使用模型已经给出的问题
func (c *ElicitationCoordinator) Ask(ctx context.Context, agent *types.Agent, section types.Section, sc *types.StepContext, question string) *types.ElicitationRequest {
	question = strings.TrimSpace(question)
	if question == "" {
		question = c.question(ctx, section, sc)
	}

	req := &types.ElicitationRequest{
		ID:           uuid.NewString(),
		WorkflowID:   sc.WorkflowID,
		StepIndex:    sc.StepIndex,
		AgentID:      agentID(agent, sc),
		SectionID:    section.ID,
		SectionTitle: section.Title,
		Instruction:  section.Instruction,
		Question:     question,
		CreatedAt:    c.now().UTC(),
	}

	if c.store != nil && sc.WorkflowID != "" {
		if err := c.store.SetPause(ctx, sc.WorkflowID, req, sc); err != nil {
			// 暂停状态没有落盘时仍然把问题交给调用方，回答时会重新执行该步骤
			c.logger.Error("pause not persisted", zap.String("workflow_id", sc.WorkflowID), zap.Error(err))
		}
	}
	c.logger.Info("elicitation requested",
		zap.String("workflow_id", sc.WorkflowID),
		zap.Int("step_index", sc.StepIndex),
		zap.String("section", section.ID))
	return req
}

// question 用模型把章节说明改写成一句提问，只尝试一次
func (c *ElicitationCoordinator) question(ctx context.Context, section types.Section, sc *types.StepContext) string {
	instruction := strings.TrimSpace(section.Instruction)
	if instruction == "" {
		instruction = strings.TrimSpace(section.Title)
	}
	if instruction == "" {
		instruction = "Please describe what you need for this step."
	}
	if !c.rephrase || c.gateway == nil {
		return instruction
	}

	res, err := c.gateway.Call(ctx, prompt.RephrasePrompt(instruction, sc.Project), llm.CallOptions{
		MaxTokens: 200,
		UserID:    sc.UserID,
	})
	if err != nil || res == nil || strings.TrimSpace(res.Content) == "" {
		c.logger.Debug("rephrase failed, using instruction", zap.Error(err))
		return instruction
	}
	return strings.TrimSpace(res.Content)
}

// Resume 记录用户回答并重新执行暂停的步骤。
// agentID 为空时使用暂停时的 Agent。
func (c *ElicitationCoordinator) Resume(ctx context.Context, workflowID, answer, agentID string) (*ExecutionResult, error) {
	if c.executor == nil {
		return nil, errors.New("elicitation coordinator is not bound to an executor")
	}
	if c.store == nil {
		return nil, errors.New("resume requires a state store")
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, ErrEmptyAnswer
	}

	st, err := c.store.Load(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !st.Paused || st.Pending == nil || st.PendingStep == nil {
		return nil, fmt.Errorf("resume %s: %w", workflowID, ErrNotPaused)
	}

	if agentID == "" {
		agentID = st.Pending.AgentID
	}
	agent, err := c.lookupAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	// 先原子地清除暂停标记，并发恢复时只有赢家继续
	if err := c.store.ClearPause(ctx, workflowID); err != nil {
		if errors.Is(err, persistence.ErrNotPaused) {
			return nil, fmt.Errorf("resume %s: %w", workflowID, ErrNotPaused)
		}
		return nil, err
	}
	if err := c.store.Save(ctx, workflowID, persistence.Patch{
		AppendMessages: []types.Message{{
			Role:      types.RoleUser,
			AgentID:   agent.ID,
			Content:   answer,
			Timestamp: c.now().UTC(),
		}},
	}); err != nil {
		return nil, err
	}

	sc := st.PendingStep.Clone()
	sc.WorkflowID = workflowID
	sc.AgentID = agent.ID
	sc.ElicitationAnswers = append(sc.ElicitationAnswers, answer)
	sc.UserPrompt = strings.TrimSpace(sc.UserPrompt + "\n\nUser answer: " + answer)
	sc.ValidationFeedback = nil
	sc.TimeoutFeedback = ""

	cfg := c.executor.Defaults()
	if st.Definition != nil && sc.StepIndex >= 0 && sc.StepIndex < len(st.Definition.Steps) {
		cfg.Conversational = st.Definition.Steps[sc.StepIndex].Conversational
	}

	c.logger.Info("resuming step",
		zap.String("workflow_id", workflowID),
		zap.Int("step_index", sc.StepIndex),
		zap.String("agent_id", agent.ID))
	return c.executor.ExecuteStep(ctx, agent, sc, cfg)
}

func (c *ElicitationCoordinator) lookupAgent(ctx context.Context, id string) (*types.Agent, error) {
	if id == "" {
		return nil, fmt.Errorf("resume: %w", template.ErrAgentNotFound)
	}
	if c.catalog == nil {
		return &types.Agent{ID: id}, nil
	}
	return c.catalog.Agent(ctx, id)
}

func agentID(agent *types.Agent, sc *types.StepContext) string {
	if agent != nil && agent.ID != "" {
		return agent.ID
	}
	return sc.AgentID
}
