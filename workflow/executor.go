package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/internal/metrics"
	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/persistence"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/prompt"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/EreZAzariyA/dream-team-builder-sub007/workflow"

// Gateway 步骤执行器依赖的模型网关，*llm.Gateway 实现了它
type Gateway interface {
	Call(ctx context.Context, prompt string, opts llm.CallOptions) (*llm.GatewayResult, error)
}

// Validator 输出校验函数，默认是 validation.Validate
type Validator func(content string, tmpl *types.Template, opts validation.Options) validation.Result

// StepConfig 单个步骤的执行参数
type StepConfig struct {
	MaxRetries        int           `json:"max_retries"`
	Timeout           time.Duration `json:"timeout"`
	ValidationEnabled bool          `json:"validation_enabled"`
	// Conversational 对话式步骤跳过输出校验
	Conversational bool    `json:"conversational"`
	MaxTokens      int     `json:"max_tokens,omitempty"`
	Temperature    float32 `json:"temperature,omitempty"`
}

// DefaultStepConfig 返回默认步骤配置
func DefaultStepConfig() StepConfig {
	return StepConfig{
		MaxRetries:        3,
		Timeout:           120 * time.Second,
		ValidationEnabled: true,
	}
}

func (c StepConfig) normalized() StepConfig {
	d := DefaultStepConfig()
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

// =============================================================================
// 🎬 步骤执行器
// =============================================================================

// StepExecutor 执行单个工作流步骤：解析模板、组装提示词、带超时与反馈的重试、校验、持久化。
// 同一工作流同时只允许一个步骤在执行。
type StepExecutor struct {
	gateway     Gateway
	resolver    *template.Resolver
	assembler   *prompt.Assembler
	validate    Validator
	coordinator *ElicitationCoordinator
	store       persistence.Store
	sink        ArtifactSink

	defaults StepConfig
	metrics  *metrics.Collector
	tracer   trace.Tracer
	now      func() time.Time
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// ExecutorOption 执行器选项
type ExecutorOption func(*StepExecutor)

// WithStepDefaults 设置恢复执行等场景使用的默认步骤配置
func WithStepDefaults(cfg StepConfig) ExecutorOption {
	return func(e *StepExecutor) { e.defaults = cfg.normalized() }
}

// WithExecutorMetrics 设置指标收集器
func WithExecutorMetrics(c *metrics.Collector) ExecutorOption {
	return func(e *StepExecutor) { e.metrics = c }
}

// WithExecutorTracer 设置 tracer
func WithExecutorTracer(t trace.Tracer) ExecutorOption {
	return func(e *StepExecutor) { e.tracer = t }
}

// NewStepExecutor 创建步骤执行器。
// coordinator 会绑定到该执行器，Resume 由它重新进入 ExecuteStep。store、sink 可为 nil。
func NewStepExecutor(
	gateway Gateway,
	resolver *template.Resolver,
	assembler *prompt.Assembler,
	validator Validator,
	coordinator *ElicitationCoordinator,
	store persistence.Store,
	sink ArtifactSink,
	logger *zap.Logger,
	opts ...ExecutorOption,
) *StepExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if assembler == nil {
		assembler = prompt.NewAssembler()
	}
	if validator == nil {
		validator = validation.Validate
	}
	e := &StepExecutor{
		gateway:     gateway,
		resolver:    resolver,
		assembler:   assembler,
		validate:    validator,
		coordinator: coordinator,
		store:       store,
		sink:        sink,
		defaults:    DefaultStepConfig(),
		now:         time.Now,
		logger:      logger.With(zap.String("component", "step_executor")),
		inFlight:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	if coordinator == nil {
		e.coordinator = NewElicitationCoordinator(nil, store, nil, logger)
	}
	e.coordinator.bind(e)
	return e
}

// Defaults 默认步骤配置
func (e *StepExecutor) Defaults() StepConfig { return e.defaults }

func (e *StepExecutor) acquire(workflowID string) bool {
	if workflowID == "" {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[workflowID]; busy {
		return false
	}
	e.inFlight[workflowID] = struct{}{}
	return true
}

func (e *StepExecutor) release(workflowID string) {
	if workflowID == "" {
		return
	}
	e.mu.Lock()
	delete(e.inFlight, workflowID)
	e.mu.Unlock()
}

// ExecuteStep 执行一个步骤。
// 只有编程错误（agent 或上下文为 nil、模板结构损坏、模板无法解析）返回 error；
// 所有预期内的失败都体现在 ExecutionResult 中，调用方必须检查 Success / Outcome。
func (e *StepExecutor) ExecuteStep(ctx context.Context, agent *types.Agent, sc *types.StepContext, cfg StepConfig) (*ExecutionResult, error) {
	if agent == nil {
		return nil, errors.New("execute step: nil agent")
	}
	if sc == nil {
		return nil, errors.New("execute step: nil step context")
	}
	cfg = cfg.normalized()

	if !e.acquire(sc.WorkflowID) {
		e.logger.Warn("step already in flight", zap.String("workflow_id", sc.WorkflowID))
		return failureResult(types.ErrStepInFlight, nil, 0), nil
	}
	defer e.release(sc.WorkflowID)

	if sc.UserID != "" || sc.WorkflowID != "" {
		scope, _ := types.ScopeFrom(ctx)
		ctx = types.WithScope(ctx, scope.WithUser(sc.UserID).WithWorkflow(sc.WorkflowID))
	}
	ctx, span := e.tracer.Start(ctx, "executor.step", trace.WithAttributes(
		attribute.String("workflow_id", sc.WorkflowID),
		attribute.Int("step_index", sc.StepIndex),
		attribute.String("agent_id", agent.ID),
	))
	defer span.End()

	start := e.now()
	result, err := e.execute(ctx, agent, sc.Clone(), cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("outcome", string(result.Outcome)),
		attribute.Int("attempts", result.Attempts),
	)
	if !result.Success && result.Outcome != OutcomeElicitation {
		span.SetStatus(codes.Error, string(result.Category))
	}
	e.metrics.RecordStep(agent.ID, string(result.Outcome), result.Attempts, e.now().Sub(start))
	e.logger.Info("step finished",
		zap.String("workflow_id", sc.WorkflowID),
		zap.Int("step_index", sc.StepIndex),
		zap.String("agent_id", agent.ID),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("attempts", result.Attempts),
		zap.String("category", string(result.Category)),
	)
	return result, nil
}

func (e *StepExecutor) execute(ctx context.Context, agent *types.Agent, sc *types.StepContext, cfg StepConfig) (*ExecutionResult, error) {
	// Resolving
	res, err := e.resolver.Resolve(ctx, agent, sc)
	switch {
	case errors.Is(err, template.ErrTemplateNotFound), errors.Is(err, template.ErrNoTemplate):
		e.logger.Warn("no usable template", zap.String("agent_id", agent.ID), zap.Error(err))
		return failureResult(types.ErrTemplateNotFound, err, 0), nil
	case err != nil:
		return nil, err
	}

	tmpl := res.Template
	if res.Interactive {
		if len(sc.ElicitationAnswers) == 0 {
			req := e.coordinator.Prepare(ctx, agent, stepSection(sc), sc)
			return elicitationResult(req, 0), nil
		}
		// 已拿到用户回答的交互式步骤按对话式执行
		cfg.Conversational = true
	}
	if tmpl != nil {
		if err := tmpl.Validate(); err != nil {
			return nil, err
		}
	}

	var (
		lastErr      error
		lastCode     types.ErrorCode
		lastTimedOut bool
	)
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		// Attempting
		text := e.assembler.Assemble(prompt.PromptInput{Agent: agent, Template: tmpl, Step: sc})
		out, timedOut, err := e.attempt(ctx, text, cfg, sc.UserID)
		lastTimedOut = timedOut

		switch {
		case ctx.Err() != nil:
			code := types.ErrUnknown
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				code = types.ErrStepTimeout
			}
			r := failureResult(code, ctx.Err(), attempt)
			r.TimedOut = code == types.ErrStepTimeout
			return r, nil

		case timedOut:
			lastErr, lastCode = nil, types.ErrStepTimeout
			e.logger.Warn("step attempt timed out",
				zap.String("workflow_id", sc.WorkflowID),
				zap.Int("attempt", attempt),
				zap.Duration("timeout", cfg.Timeout))
			sc.TimeoutFeedback = fmt.Sprintf("previous attempt timed out after %s", cfg.Timeout)
			continue

		case err != nil:
			lastErr, lastCode = err, llm.FailureCategory(err)
			e.logger.Warn("step attempt failed",
				zap.String("workflow_id", sc.WorkflowID),
				zap.Int("attempt", attempt),
				zap.String("category", string(lastCode)),
				zap.Error(err))
			if lastCode == types.ErrUsageLimit {
				// 当天额度不会因为重试而恢复
				return failureResult(lastCode, err, attempt), nil
			}
			sc.TimeoutFeedback = fmt.Sprintf("previous attempt failed: %s", lastCode)
			continue
		}

		// 追问优先于校验
		if question, ok := DetectElicitation(out.Content); ok {
			req := e.coordinator.Ask(ctx, agent, elicitSection(tmpl, sc), sc, question)
			return elicitationResult(req, attempt), nil
		}

		// Validating
		if cfg.ValidationEnabled {
			v := e.validate(out.Content, tmpl, validation.Options{Conversational: cfg.Conversational})
			if !v.IsValid {
				e.logger.Info("step output rejected",
					zap.String("workflow_id", sc.WorkflowID),
					zap.Int("attempt", attempt),
					zap.Strings("errors", v.Errors))
				if attempt < cfg.MaxRetries {
					// RetryingWithFeedback
					sc.ValidationFeedback = v.Errors
					sc.TimeoutFeedback = ""
					continue
				}
				return validationFailureResult(v.Errors, attempt), nil
			}
		}

		return e.complete(ctx, agent, sc, tmpl, out, attempt, cfg), nil
	}

	// Exhausted
	r := failureResult(lastCode, lastErr, cfg.MaxRetries)
	r.TimedOut = lastTimedOut
	return r, nil
}

type attemptResult struct {
	res *llm.GatewayResult
	err error
}

// attempt 让一次网关调用与超时赛跑。超时后取消本次尝试：还在排队的调用不再发出，
// 已经发出的 Provider 请求跑完并计费，迟到的结果直接丢弃。
func (e *StepExecutor) attempt(ctx context.Context, text string, cfg StepConfig, userID string) (*llm.GatewayResult, bool, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan attemptResult, 1)
	go func() {
		res, err := e.gateway.Call(attemptCtx, text, llm.CallOptions{
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
			UserID:      userID,
			Detached:    true,
		})
		ch <- attemptResult{res: res, err: err}
	}()

	timer := time.NewTimer(cfg.Timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err == nil && (r.res == nil || strings.TrimSpace(r.res.Content) == "") {
			r.err = types.NewError(types.ErrContentRejected, "empty content from gateway")
		}
		return r.res, false, r.err
	case <-timer.C:
		return nil, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// complete 写产物并持久化步骤产出。持久化成功之后才报告成功。
func (e *StepExecutor) complete(ctx context.Context, agent *types.Agent, sc *types.StepContext, tmpl *types.Template, out *llm.GatewayResult, attempt int, cfg StepConfig) *ExecutionResult {
	templateID := ""
	if tmpl != nil {
		templateID = tmpl.ID
	}
	result := successResult(out.Content, out.Provider, templateID, out.Usage, attempt)

	output := types.StepOutput{
		StepIndex:   sc.StepIndex,
		AgentID:     agent.ID,
		TemplateID:  templateID,
		Content:     out.Content,
		Provider:    out.Provider,
		Attempts:    attempt,
		CompletedAt: e.now().UTC(),
	}

	if filename := artifactName(sc, tmpl); filename != "" && e.sink != nil && sc.WorkflowID != "" && !cfg.Conversational {
		path, err := e.sink.Write(ctx, sc.WorkflowID, filename, out.Content)
		e.metrics.RecordArtifactWrite(err == nil)
		if err != nil {
			e.logger.Error("artifact write failed",
				zap.String("workflow_id", sc.WorkflowID),
				zap.String("filename", filename),
				zap.Error(err))
		} else {
			output.Artifact = path
			result.Artifacts = append(result.Artifacts, path)
		}
	}

	if e.store != nil && sc.WorkflowID != "" {
		if err := e.store.AppendStepOutput(ctx, sc.WorkflowID, output); err != nil {
			e.logger.Error("step output not persisted",
				zap.String("workflow_id", sc.WorkflowID),
				zap.Int("step_index", sc.StepIndex),
				zap.Error(err))
			r := failureResult(types.ErrStatePersist, err, attempt)
			r.Content = out.Content
			return r
		}
	}
	return result
}

func artifactName(sc *types.StepContext, tmpl *types.Template) string {
	if sc.Creates != "" {
		return sc.Creates
	}
	if tmpl != nil {
		return tmpl.Filename
	}
	return ""
}

// =============================================================================
// 🙋 追问信号
// =============================================================================

var elicitMarker = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(prompt.ElicitOpen) + `\s*(.*?)\s*` + regexp.QuoteMeta(prompt.ElicitClose))

const needsInputPrefix = "NEEDS_USER_INPUT:"

// DetectElicitation 判断模型输出是否在请求用户输入，返回提问（可能为空）。
// 识别三种形式：[[ELICIT: 问题]] 标记、以 NEEDS_USER_INPUT: 开头的行、{"needs_elicitation": true} JSON。
func DetectElicitation(content string) (string, bool) {
	if m := elicitMarker.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, needsInputPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, needsInputPrefix)), true
		}
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		var sig struct {
			NeedsElicitation bool   `json:"needs_elicitation"`
			Question         string `json:"question"`
		}
		if json.Unmarshal([]byte(trimmed), &sig) == nil && sig.NeedsElicitation {
			return strings.TrimSpace(sig.Question), true
		}
	}
	return "", false
}

// stepSection 没有模板的交互式步骤，用步骤本身构造一个章节
func stepSection(sc *types.StepContext) types.Section {
	title := sc.Action
	if title == "" {
		title = sc.Creates
	}
	instruction := strings.TrimSpace(sc.Notes)
	if instruction == "" {
		instruction = strings.TrimSpace(sc.Action)
	}
	if instruction == "" {
		instruction = strings.TrimSpace(sc.UserPrompt)
	}
	return types.Section{ID: "step", Title: title, Instruction: instruction, ElicitationRequired: true}
}

// elicitSection 模板中第一个需要用户输入的章节，没有则退回到步骤本身
func elicitSection(tmpl *types.Template, sc *types.StepContext) types.Section {
	if tmpl != nil {
		if s, ok := tmpl.FirstElicitSection(); ok {
			return s
		}
		if len(tmpl.Sections) > 0 {
			return tmpl.Sections[0]
		}
	}
	return stepSection(sc)
}
