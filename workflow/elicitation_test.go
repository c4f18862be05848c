package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/testutil/fixtures"
	"github.com/EreZAzariyA/dream-team-builder-sub007/testutil/mocks"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/persistence"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/prompt"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCoordinator_PrepareUsesInstructionVerbatim(t *testing.T) {
	store := persistence.NewMemoryStore(nil, zap.NewNop())
	c := NewElicitationCoordinator(mocks.NewScriptedGateway(), store, nil, zap.NewNop())
	section := types.Section{ID: "problem", Title: "Problem Statement", Instruction: "Describe the problem the users have."}
	sc := &types.StepContext{WorkflowID: "wf-1", StepIndex: 2, AgentID: "analyst"}

	req := c.Prepare(context.Background(), nil, section, sc)
	require.NotNil(t, req)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, "Describe the problem the users have.", req.Question)
	assert.Equal(t, "analyst", req.AgentID)
	assert.Equal(t, 2, req.StepIndex)

	st, err := store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, 2, st.PendingStep.StepIndex)
}

func TestCoordinator_Rephrase(t *testing.T) {
	gw := mocks.NewScriptedGateway(mocks.Reply{Content: "  What problem are your users facing?  "})
	c := NewElicitationCoordinator(gw, nil, nil, zap.NewNop(), WithRephrase(true))
	section := types.Section{ID: "problem", Instruction: "Describe the problem the users have."}
	sc := &types.StepContext{Project: types.ProjectInfo{Name: "Invoicer"}}

	req := c.Prepare(context.Background(), fixtures.AnalystAgent(), section, sc)
	assert.Equal(t, "What problem are your users facing?", req.Question)
	require.Equal(t, 1, gw.CallCount())
	assert.Equal(t, prompt.RephrasePrompt(section.Instruction, sc.Project), gw.Prompts()[0])
}

func TestCoordinator_RephraseFailureFallsBack(t *testing.T) {
	for name, reply := range map[string]mocks.Reply{
		"error": {Err: errors.New("503 service unavailable")},
		"empty": {Content: " "},
	} {
		t.Run(name, func(t *testing.T) {
			gw := mocks.NewScriptedGateway(reply)
			c := NewElicitationCoordinator(gw, nil, nil, zap.NewNop(), WithRephrase(true))
			section := types.Section{ID: "s", Title: "Scope"}

			req := c.Prepare(context.Background(), nil, section, &types.StepContext{})
			assert.Equal(t, "Scope", req.Question)
			assert.Equal(t, 1, gw.CallCount(), "rephrase is attempted once")
		})
	}
}

func TestCoordinator_AskKeepsModelQuestion(t *testing.T) {
	gw := mocks.NewScriptedGateway()
	c := NewElicitationCoordinator(gw, nil, nil, zap.NewNop(), WithRephrase(true))

	req := c.Ask(context.Background(), nil, types.Section{ID: "s", Instruction: "x"}, &types.StepContext{}, "Which platforms?")
	assert.Equal(t, "Which platforms?", req.Question)
	assert.Zero(t, gw.CallCount())
}

// ---------------------------------------------------------------------------
// Resume
// ---------------------------------------------------------------------------

func pauseForAudience(t *testing.T, h *executorHarness) *ExecutionResult {
	t.Helper()
	sc := &types.StepContext{
		WorkflowID: "wf-1",
		UserID:     "u1",
		StepIndex:  0,
		AgentID:    "pm",
		UserPrompt: "A todo app",
		Notes:      "Ask user who the target audience is",
	}
	res, err := h.executor.ExecuteStep(context.Background(), fixtures.PMAgent(), sc, fastConfig())
	require.NoError(t, err)
	require.True(t, res.NeedsInput())
	return res
}

func TestCoordinator_ResumeReentersStepWithAnswer(t *testing.T) {
	gw := mocks.NewScriptedGateway(mocks.Reply{Content: "Got it, freelancers."})
	h := newHarness(t, gw, nil)
	pauseForAudience(t, h)

	res, err := h.executor.coordinator.Resume(context.Background(), "wf-1", "Freelance designers", "")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Attempts)

	p := gw.Prompts()[0]
	assert.Contains(t, p, "Freelance designers")
	assert.Contains(t, p, "Answers from the user:")

	st, err := h.store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.False(t, st.Paused)
	assert.Nil(t, st.Pending)
	require.Len(t, st.Messages, 1)
	assert.Equal(t, types.RoleUser, st.Messages[0].Role)
	assert.Equal(t, "Freelance designers", st.Messages[0].Content)
	require.Len(t, st.Outputs, 1)
}

// staleLoadStore 总是返回第一次读取到的状态，模拟两个恢复请求在任一方清除暂停标记之前都已读到状态
type staleLoadStore struct {
	persistence.Store
	snapshot *types.WorkflowState
}

func (s *staleLoadStore) Load(ctx context.Context, id string) (*types.WorkflowState, error) {
	if s.snapshot == nil {
		st, err := s.Store.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		s.snapshot = st
	}
	return s.snapshot, nil
}

func TestCoordinator_ConcurrentResumeOnlyOneWins(t *testing.T) {
	gw := mocks.NewScriptedGateway(mocks.Reply{Content: "Got it, freelancers."})
	base := persistence.NewMemoryStore(nil, zap.NewNop())
	store := &staleLoadStore{Store: base}
	h := newHarness(t, gw, store)
	pauseForAudience(t, h)

	ctx := context.Background()
	st, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.True(t, st.Paused)

	res, err := h.executor.coordinator.Resume(ctx, "wf-1", "Freelance designers", "")
	require.NoError(t, err)
	assert.True(t, res.Success, res.Error)

	_, err = h.executor.coordinator.Resume(ctx, "wf-1", "Small agencies", "")
	assert.ErrorIs(t, err, ErrNotPaused)
	assert.Equal(t, 1, gw.CallCount())

	cur, err := base.Load(ctx, "wf-1")
	require.NoError(t, err)
	require.Len(t, cur.Messages, 1)
	assert.Equal(t, "Freelance designers", cur.Messages[0].Content)
}

func TestCoordinator_ResumeErrors(t *testing.T) {
	h := newHarness(t, mocks.NewScriptedGateway(), nil)
	ctx := context.Background()

	_, err := h.executor.coordinator.Resume(ctx, "missing", "answer", "")
	assert.ErrorIs(t, err, persistence.ErrNotFound)

	require.NoError(t, h.store.Save(ctx, "wf-running", persistence.Patch{}))
	_, err = h.executor.coordinator.Resume(ctx, "wf-running", "answer", "")
	assert.ErrorIs(t, err, ErrNotPaused)

	pauseForAudience(t, h)
	_, err = h.executor.coordinator.Resume(ctx, "wf-1", "   ", "")
	assert.ErrorIs(t, err, ErrEmptyAnswer)

	_, err = h.executor.coordinator.Resume(ctx, "wf-1", "answer", "ghost")
	assert.ErrorIs(t, err, template.ErrAgentNotFound)

	st, err := h.store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, st.Paused, "a rejected resume leaves the pause in place")
}

func TestCoordinator_ResumeCanPauseAgain(t *testing.T) {
	gw := mocks.NewScriptedGateway(mocks.Reply{Content: "[[ELICIT: And their budget?]]"})
	h := newHarness(t, gw, nil)
	first := pauseForAudience(t, h)

	res, err := h.executor.coordinator.Resume(context.Background(), "wf-1", "Freelancers", "pm")
	require.NoError(t, err)
	require.True(t, res.NeedsInput())
	assert.NotEqual(t, first.Elicitation.ID, res.Elicitation.ID)
	assert.Equal(t, "And their budget?", res.Elicitation.Question)

	st, err := h.store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.True(t, st.Paused)
	assert.Equal(t, []string{"Freelancers"}, st.PendingStep.ElicitationAnswers)
	assert.WithinDuration(t, time.Now(), st.Pending.CreatedAt, time.Minute)
}
