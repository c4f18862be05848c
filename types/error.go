package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the engine.
type ErrorCode string

// Provider failure categories produced by the error classifier.
const (
	ErrRateLimit     ErrorCode = "RATE_LIMIT"
	ErrQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
	ErrAuth          ErrorCode = "AUTH_ERROR"
	ErrNetwork       ErrorCode = "NETWORK_ERROR"
	ErrServer        ErrorCode = "SERVER_ERROR"
	ErrClient        ErrorCode = "CLIENT_ERROR"
	ErrUnknown       ErrorCode = "UNKNOWN_ERROR"
)

// Gateway error codes
const (
	ErrCircuitOpen        ErrorCode = "CIRCUIT_OPEN"
	ErrContentRejected    ErrorCode = "CONTENT_REJECTED"
	ErrUsageLimit         ErrorCode = "USAGE_LIMIT"
	ErrAllProvidersFailed ErrorCode = "ALL_PROVIDERS_FAILED"
)

// Step outcome codes. VALIDATION_FAILURE and ELICITATION_REQUIRED are
// recoverable control-flow outcomes, not faults.
const (
	ErrValidationFailure   ErrorCode = "VALIDATION_FAILURE"
	ErrElicitationRequired ErrorCode = "ELICITATION_REQUIRED"
	ErrStepTimeout         ErrorCode = "STEP_TIMEOUT"
	ErrStepInFlight        ErrorCode = "STEP_IN_FLIGHT"
	ErrTemplateNotFound    ErrorCode = "TEMPLATE_NOT_FOUND"
	ErrAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	ErrStatePersist        ErrorCode = "STATE_PERSIST_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// userMessages 面向用户的错误提示，不暴露内部细节
var userMessages = map[ErrorCode]string{
	ErrRateLimit:           "The AI provider is rate limiting requests. Please wait a minute and try again.",
	ErrQuotaExceeded:       "The AI provider quota has been exhausted. Check the account billing settings.",
	ErrAuth:                "The AI provider rejected the configured credentials.",
	ErrNetwork:             "The AI provider could not be reached. Please try again shortly.",
	ErrServer:              "The AI provider is experiencing problems. Please try again later.",
	ErrClient:              "The request was rejected by the AI provider.",
	ErrUnknown:             "An unexpected error occurred while contacting the AI provider.",
	ErrCircuitOpen:         "The AI provider is temporarily disabled after repeated failures.",
	ErrContentRejected:     "The AI provider returned no usable content for this request.",
	ErrUsageLimit:          "Your daily AI usage limit has been reached.",
	ErrAllProvidersFailed:  "None of the configured AI providers could complete the request.",
	ErrValidationFailure:   "The generated document did not meet the template requirements.",
	ErrElicitationRequired: "This step needs more information from you before it can continue.",
	ErrStepTimeout:         "The step took too long to complete.",
	ErrStepInFlight:        "Another step of this workflow is already running.",
	ErrTemplateNotFound:    "No template could be found for this step.",
	ErrAgentNotFound:       "The requested agent does not exist.",
	ErrStatePersist:        "The step result could not be saved.",
}

// UserMessage 返回纯文本错误提示和错误分类，永远不包含堆栈信息
func UserMessage(err error) (string, ErrorCode) {
	if err == nil {
		return "", ""
	}
	code := GetErrorCode(err)
	if code == "" {
		code = ErrUnknown
	}
	if msg, ok := userMessages[code]; ok {
		return msg, code
	}
	return userMessages[ErrUnknown], code
}
