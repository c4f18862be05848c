package workflow

import (
	"context"
	"time"
)

// =============================================================================
// Workflow Streaming
// =============================================================================

// WorkflowStreamEventType defines the type of workflow stream event.
type WorkflowStreamEventType string

const (
	// WorkflowEventStepStart is emitted before a step begins execution.
	WorkflowEventStepStart WorkflowStreamEventType = "step_start"
	// WorkflowEventStepComplete is emitted after a step finishes successfully and its output is persisted.
	WorkflowEventStepComplete WorkflowStreamEventType = "step_complete"
	// WorkflowEventStepPaused is emitted when a step waits for a user answer.
	WorkflowEventStepPaused WorkflowStreamEventType = "step_paused"
	// WorkflowEventStepFailed is emitted when a step ends without output.
	WorkflowEventStepFailed WorkflowStreamEventType = "step_failed"
	// WorkflowEventComplete is emitted once every step of the definition has completed.
	WorkflowEventComplete WorkflowStreamEventType = "workflow_complete"
)

// WorkflowStreamEvent carries information about a workflow execution event.
type WorkflowStreamEvent struct {
	Type       WorkflowStreamEventType `json:"type"`
	WorkflowID string                  `json:"workflow_id"`
	StepIndex  int                     `json:"step_index"`
	AgentID    string                  `json:"agent_id,omitempty"`
	Result     *ExecutionResult        `json:"result,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
	Error      error                   `json:"-"`
}

// WorkflowStreamEmitter is a callback that receives workflow stream events.
type WorkflowStreamEmitter func(WorkflowStreamEvent)

// workflowStreamEmitterKey is the context key for WorkflowStreamEmitter.
type workflowStreamEmitterKey struct{}

// WithWorkflowStreamEmitter stores a WorkflowStreamEmitter in the context.
func WithWorkflowStreamEmitter(ctx context.Context, emitter WorkflowStreamEmitter) context.Context {
	if emitter == nil {
		return ctx
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, workflowStreamEmitterKey{}, emitter)
}

// workflowStreamEmitterFromContext retrieves the WorkflowStreamEmitter from context.
func workflowStreamEmitterFromContext(ctx context.Context) (WorkflowStreamEmitter, bool) {
	if ctx == nil {
		return nil, false
	}
	v := ctx.Value(workflowStreamEmitterKey{})
	if v == nil {
		return nil, false
	}
	emit, ok := v.(WorkflowStreamEmitter)
	return emit, ok && emit != nil
}

func emit(ctx context.Context, ev WorkflowStreamEvent) {
	if fn, ok := workflowStreamEmitterFromContext(ctx); ok {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now().UTC()
		}
		fn(ev)
	}
}
