package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
)

// Classification 错误归类结果。
// SuggestedDelay 是供调用方参考的等待时间：本地重试的间隔仍由 RetryPolicy 决定，
// 网关把它记录在 ProviderFailure.RetryAfter 中。
type Classification struct {
	Category       types.ErrorCode `json:"category"`
	Retryable      bool            `json:"retryable"`
	SuggestedDelay time.Duration   `json:"suggested_delay"`
}

// 各分类的默认结论
var categoryDefaults = map[types.ErrorCode]Classification{
	types.ErrRateLimit:     {Category: types.ErrRateLimit, Retryable: true, SuggestedDelay: 60 * time.Second},
	types.ErrQuotaExceeded: {Category: types.ErrQuotaExceeded},
	types.ErrAuth:          {Category: types.ErrAuth},
	types.ErrNetwork:       {Category: types.ErrNetwork, Retryable: true, SuggestedDelay: 5 * time.Second},
	types.ErrServer:        {Category: types.ErrServer, Retryable: true, SuggestedDelay: 10 * time.Second},
	types.ErrClient:        {Category: types.ErrClient},
	types.ErrUnknown:       {Category: types.ErrUnknown, Retryable: true, SuggestedDelay: 5 * time.Second},
}

// 网关自身产生的错误，只用于换下一个 Provider，从不在本地重试，也不再按规则重新归类
var gatewayCodes = map[types.ErrorCode]Classification{
	types.ErrCircuitOpen:     {Category: types.ErrCircuitOpen},
	types.ErrContentRejected: {Category: types.ErrContentRejected},
	types.ErrUsageLimit:      {Category: types.ErrUsageLimit},
}

var (
	rateLimitPhrases = []string{"rate limit", "rate_limit", "ratelimit", "too many requests", "resource_exhausted"}
	quotaPhrases     = []string{"quota", "billing", "insufficient_quota", "credit balance", "exceeded your current", "payment required"}
	authPhrases      = []string{"unauthorized", "invalid api key", "invalid_api_key", "incorrect api key", "authentication", "permission denied"}
	networkPhrases   = []string{
		"timeout", "timed out", "deadline exceeded", "connection refused", "connection reset",
		"econnreset", "econnrefused", "etimedout", "network", "no such host", "socket hang up",
		"unexpected eof", "broken pipe",
	}

	statusPattern = regexp.MustCompile(`(?i)(?:^|status(?: code)?[:= ]+|http )([1-5]\d\d)\b`)
)

// Classify 将 Provider 返回的原始错误归类，纯函数。
// 规则按优先级依次匹配：限流、配额、鉴权、网络、5xx、4xx，其余为 UNKNOWN。
// 带 types.Error 的错误同样按规则匹配其消息与 HTTPStatus，
// 只有规则无法判断时才沿用错误上已有的分类。
func Classify(err error) Classification {
	if err == nil {
		return Classification{}
	}

	// 调用方已放弃，重试没有意义
	if errors.Is(err, context.Canceled) {
		return Classification{Category: types.ErrUnknown}
	}

	msg := strings.ToLower(err.Error())
	status := 0
	var hint types.ErrorCode
	if e, ok := types.AsError(err); ok {
		if c, internal := gatewayCodes[e.Code]; internal {
			return c
		}
		status = e.HTTPStatus
		hint = e.Code
		// 分类标签本身不参与短语匹配
		msg = strings.ReplaceAll(msg, "["+strings.ToLower(string(e.Code))+"]", "")
	}
	if status == 0 {
		status = statusFromMessage(strings.TrimSpace(msg))
	}

	c := classifyRules(msg, status, isNetworkError(err))
	if c.Category == types.ErrUnknown {
		if d, known := categoryDefaults[hint]; known {
			return d
		}
	}
	return c
}

// ClassifyResponse 按同一套规则归类一个 HTTP 错误响应
func ClassifyResponse(status int, msg string) Classification {
	return classifyRules(strings.ToLower(msg), status, false)
}

func classifyRules(msg string, status int, netErr bool) Classification {
	switch {
	case status == 429 || containsAny(msg, rateLimitPhrases):
		return categoryDefaults[types.ErrRateLimit]
	case containsAny(msg, quotaPhrases):
		return categoryDefaults[types.ErrQuotaExceeded]
	case status == 401 || containsAny(msg, authPhrases):
		return categoryDefaults[types.ErrAuth]
	case netErr || containsAny(msg, networkPhrases):
		return categoryDefaults[types.ErrNetwork]
	case status >= 500:
		return categoryDefaults[types.ErrServer]
	case status >= 400:
		return categoryDefaults[types.ErrClient]
	default:
		return categoryDefaults[types.ErrUnknown]
	}
}

// Categorize 仅返回分类
func Categorize(err error) types.ErrorCode {
	return Classify(err).Category
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusFromMessage(msg string) int {
	m := statusPattern.FindStringSubmatch(msg)
	if len(m) < 2 {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
