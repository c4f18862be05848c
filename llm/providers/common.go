package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/llm"
	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
)

// MapHTTPError 将 HTTP 错误响应转换为带分类的 types.Error。
// 分类与网关的 llm.Classify 使用同一套有序规则，HTTPStatus 始终保留。
func MapHTTPError(status int, msg string, provider string) *types.Error {
	c := llm.ClassifyResponse(status, msg)
	return types.NewError(c.Category, msg).
		WithHTTPStatus(status).
		WithRetryable(c.Retryable).
		WithProvider(provider)
}

// NetworkError 请求未到达服务商（连接失败、超时等）
func NetworkError(err error, provider string) *types.Error {
	return types.NewError(types.ErrNetwork, err.Error()).
		WithCause(err).
		WithRetryable(true).
		WithProvider(provider)
}

// DecodeError 响应体无法解析，按服务端错误处理
func DecodeError(err error, provider string) *types.Error {
	return types.NewError(types.ErrServer, fmt.Sprintf("decode response: %v", err)).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return strings.TrimSpace(string(data))
}

// ChooseModel 按优先级选择模型：请求 > 默认 > 兜底
func ChooseModel(requested, defaultModel, fallbackModel string) string {
	if requested != "" {
		return requested
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallbackModel
}

// SafeCloseBody 安全关闭 HTTP 响应体并忽略错误
func SafeCloseBody(body io.ReadCloser) {
	if body != nil {
		_ = body.Close()
	}
}
