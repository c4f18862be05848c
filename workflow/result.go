package workflow

import (
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
)

// Outcome 步骤执行结果的类别。调用方按结果分支，而不是按错误类型。
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeValidationFailure Outcome = "validation_failure"
	OutcomeElicitation       Outcome = "elicitation_required"
	OutcomeFailure           Outcome = "failure"
)

// ExecutionResult 一次 ExecuteStep 的结果。预期内的失败都以值的形式返回。
type ExecutionResult struct {
	Outcome  Outcome `json:"outcome"`
	Success  bool    `json:"success"`
	Content  string  `json:"content,omitempty"`
	Provider string  `json:"provider,omitempty"`
	// TemplateID 实际使用的模板
	TemplateID string    `json:"template_id,omitempty"`
	Usage      llm.Usage `json:"usage"`
	// Artifacts 成功写出的产物路径
	Artifacts []string `json:"artifacts,omitempty"`
	Attempts  int      `json:"attempts"`

	Elicitation *types.ElicitationRequest `json:"elicitation,omitempty"`

	// Error 面向用户的说明，Category 为对应的错误类别
	Error            string          `json:"error,omitempty"`
	Category         types.ErrorCode `json:"category,omitempty"`
	ValidationErrors []string        `json:"validation_errors,omitempty"`
	TimedOut         bool            `json:"timed_out,omitempty"`
}

// NeedsInput 是否在等待用户回答
func (r *ExecutionResult) NeedsInput() bool {
	return r != nil && r.Outcome == OutcomeElicitation
}

func successResult(content, provider, templateID string, usage llm.Usage, attempts int) *ExecutionResult {
	return &ExecutionResult{
		Outcome:    OutcomeSuccess,
		Success:    true,
		Content:    content,
		Provider:   provider,
		TemplateID: templateID,
		Usage:      usage,
		Attempts:   attempts,
	}
}

func elicitationResult(req *types.ElicitationRequest, attempts int) *ExecutionResult {
	return &ExecutionResult{
		Outcome:     OutcomeElicitation,
		Elicitation: req,
		Attempts:    attempts,
		Category:    types.ErrElicitationRequired,
	}
}

// failureResult 用户可见信息来自 types.UserMessage，不暴露内部错误细节
func failureResult(code types.ErrorCode, err error, attempts int) *ExecutionResult {
	msg, _ := types.UserMessage(types.NewError(code, "").WithCause(err))
	return &ExecutionResult{
		Outcome:  OutcomeFailure,
		Error:    msg,
		Category: code,
		Attempts: attempts,
	}
}

func validationFailureResult(errs []string, attempts int) *ExecutionResult {
	r := failureResult(types.ErrValidationFailure, nil, attempts)
	r.Outcome = OutcomeValidationFailure
	r.ValidationErrors = append([]string(nil), errs...)
	if len(errs) > 0 {
		r.Error += " " + strings.Join(errs, "; ")
	}
	return r
}
