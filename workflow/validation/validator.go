package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
)

// MinContentLength 有效输出的最小长度（去除首尾空白后）
const MinContentLength = 100

// Options 校验选项
type Options struct {
	// Conversational 对话式步骤不做任何校验
	Conversational bool
}

// Result 校验结果
type Result struct {
	IsValid bool     `json:"is_valid"`
	Errors  []string `json:"errors,omitempty"`
}

// DenyPhrases 出现即视为占位或拒答的短语（忽略大小写）
var DenyPhrases = []string{
	"lorem ipsum",
	"i cannot",
	"i can't",
	"i'm unable to",
	"as an ai",
	"todo: fill",
	"[insert",
	"placeholder text",
	"quota exceeded",
	"you exceeded your current quota",
	"rate limit reached",
}

var (
	unresolvedVar = regexp.MustCompile(`\{\{[^{}]*\}\}`)
	codeFence     = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")
)

// Validate 检查模型输出是否满足模板的结构要求。纯函数，同样的输入总是得到同样的结果。
func Validate(content string, tmpl *types.Template, opts Options) Result {
	if opts.Conversational {
		return Result{IsValid: true}
	}

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return Result{Errors: []string{"content is empty"}}
	}

	var errs []string
	if tmpl != nil {
		switch tmpl.Format() {
		case types.FormatJSON:
			errs = append(errs, checkJSON(trimmed, tmpl)...)
		default:
			for _, title := range tmpl.RequiredTitles() {
				if !HasSection(trimmed, title) {
					errs = append(errs, fmt.Sprintf("missing required section: %s", title))
				}
			}
		}
	}

	if n := len([]rune(trimmed)); n < MinContentLength {
		errs = append(errs, fmt.Sprintf("content too short: %d characters, need at least %d", n, MinContentLength))
	}

	lower := strings.ToLower(trimmed)
	for _, p := range DenyPhrases {
		if strings.Contains(lower, p) {
			errs = append(errs, fmt.Sprintf("content contains placeholder or refusal text: %q", p))
		}
	}
	if m := unresolvedVar.FindString(trimmed); m != "" {
		errs = append(errs, fmt.Sprintf("content contains unresolved template variable %s", m))
	}

	return Result{IsValid: len(errs) == 0, Errors: errs}
}

// HasSection 依次尝试 Markdown 标题、编号标题、单词边界匹配，任一命中即视为存在
func HasSection(content, title string) bool {
	title = strings.TrimSpace(title)
	if title == "" {
		return true
	}
	q := regexp.QuoteMeta(title)
	patterns := []string{
		`(?im)^\s*#{1,6}\s*` + q,
		`(?im)^\s*\d+(\.\d+)*[.)]?\s*` + q,
		`(?i)(^|\W)` + q + `(\W|$)`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(content) {
			return true
		}
	}
	return false
}

func checkJSON(content string, tmpl *types.Template) []string {
	if m := codeFence.FindStringSubmatch(content); m != nil {
		content = strings.TrimSpace(m[1])
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return []string{fmt.Sprintf("content is not a JSON object: %v", err)}
	}
	var errs []string
	for _, f := range tmpl.FieldNames() {
		if _, ok := obj[f]; !ok {
			errs = append(errs, fmt.Sprintf("missing required field: %s", f))
		}
	}
	return errs
}
