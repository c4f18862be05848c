package template

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
)

// ErrNoTemplate 没有任何检测器命中，且步骤不是交互式
var ErrNoTemplate = errors.New("no template matches step")

// Detector 从 Agent 和步骤上下文中推断模板 ID。纯函数，不读取任何资源。
type Detector func(agent *types.Agent, sc *types.StepContext) (string, bool)

// NamedDetector 带名称的检测器，名称出现在 Resolution 与日志中
type NamedDetector struct {
	Name   string
	Detect Detector
}

// Resolution 模板解析结果
type Resolution struct {
	TemplateID string
	Template   *types.Template
	// Detector 命中的检测器名称
	Detector string
	// Interactive 没有匹配的模板，但步骤属于交互式，应直接进入追问
	Interactive bool
}

// =============================================================================
// 🔎 默认映射表
// =============================================================================

// PatternRule 正则到模板的映射
type PatternRule struct {
	Pattern  *regexp.Regexp
	Template string
}

// DefaultActionTemplates 动作名到模板（精确匹配，忽略大小写）
var DefaultActionTemplates = map[string]string{
	"create-project-brief":           "project-brief-tmpl",
	"create-prd":                     "prd-tmpl",
	"create-brownfield-prd":          "brownfield-prd-tmpl",
	"create-front-end-spec":          "front-end-spec-tmpl",
	"create-architecture":            "architecture-tmpl",
	"create-fullstack-architecture":  "fullstack-architecture-tmpl",
	"create-brownfield-architecture": "brownfield-architecture-tmpl",
	"create-story":                   "story-tmpl",
	"create-next-story":              "story-tmpl",
	"create-market-research":         "market-research-tmpl",
	"create-competitor-analysis":     "competitor-analysis-tmpl",
}

// DefaultPatternRules 按顺序匹配 notes 与 action，先命中者胜出
var DefaultPatternRules = []PatternRule{
	{regexp.MustCompile(`(?i)\bproject[\s-]+brief\b`), "project-brief-tmpl"},
	{regexp.MustCompile(`(?i)\bbrownfield\b.*\b(prd|product requirements?)\b`), "brownfield-prd-tmpl"},
	{regexp.MustCompile(`(?i)\b(prd|product[\s-]+requirements?(\s+document)?)\b`), "prd-tmpl"},
	{regexp.MustCompile(`(?i)\b(front[\s-]?end|ui/?ux)[\s-]+spec(ification)?\b`), "front-end-spec-tmpl"},
	{regexp.MustCompile(`(?i)\bfull[\s-]?stack[\s-]+architecture\b`), "fullstack-architecture-tmpl"},
	{regexp.MustCompile(`(?i)\bbrownfield[\s-]+architecture\b`), "brownfield-architecture-tmpl"},
	{regexp.MustCompile(`(?i)\barchitecture\s+(document|doc)\b`), "architecture-tmpl"},
	{regexp.MustCompile(`(?i)\buser\s+stor(y|ies)\b`), "story-tmpl"},
	{regexp.MustCompile(`(?i)\bmarket\s+research\b`), "market-research-tmpl"},
	{regexp.MustCompile(`(?i)\bcompetit(or|ive)\s+analysis\b`), "competitor-analysis-tmpl"},
}

// DefaultCreatesTemplates 产物文件名到模板
var DefaultCreatesTemplates = map[string]string{
	"project-brief.md":          "project-brief-tmpl",
	"prd.md":                    "prd-tmpl",
	"front-end-spec.md":         "front-end-spec-tmpl",
	"architecture.md":           "architecture-tmpl",
	"fullstack-architecture.md": "fullstack-architecture-tmpl",
	"story.md":                  "story-tmpl",
	"market-research.md":        "market-research-tmpl",
	"competitor-analysis.md":    "competitor-analysis-tmpl",
}

// InteractiveActions 视为交互式的动作
var InteractiveActions = []string{
	"elicit", "brainstorm", "discuss", "interview", "gather-requirements",
	"clarify", "chat", "advanced-elicitation",
}

// ElicitationKeywords 出现在 notes 中即视为需要用户输入
var ElicitationKeywords = []string{
	"ask user", "ask the user", "please describe", "please provide",
	"elicit", "gather input", "user input",
}

// =============================================================================
// 🧩 检测器
// =============================================================================

// looksLikeTemplateRef 是否是模板引用（*-tmpl 或 .yaml/.yml）
func looksLikeTemplateRef(ref string) bool {
	ref = strings.ToLower(strings.TrimSpace(ref))
	return strings.HasSuffix(ref, "-tmpl") ||
		strings.HasSuffix(ref, "-tmpl.yaml") ||
		strings.HasSuffix(ref, ".yaml") ||
		strings.HasSuffix(ref, ".yml")
}

// ExplicitTemplate 上下文已直接给出模板：TemplateID，或命令本身/命令表中的模板引用，或 uses 字段
func ExplicitTemplate(agent *types.Agent, sc *types.StepContext) (string, bool) {
	if sc.TemplateID != "" {
		return NormalizeID(sc.TemplateID), true
	}
	if sc.Command != "" {
		if looksLikeTemplateRef(sc.Command) {
			return NormalizeID(sc.Command), true
		}
		if agent != nil {
			if cmd, ok := agent.Command(sc.Command); ok && looksLikeTemplateRef(cmd.Template) {
				return NormalizeID(cmd.Template), true
			}
		}
	}
	if sc.Uses != "" && looksLikeTemplateRef(sc.Uses) {
		return NormalizeID(sc.Uses), true
	}
	return "", false
}

// ActionMapping 按动作名精确查表
func ActionMapping(table map[string]string) Detector {
	return func(_ *types.Agent, sc *types.StepContext) (string, bool) {
		action := normalizeAction(sc.Action)
		if action == "" {
			return "", false
		}
		id, ok := table[action]
		return id, ok
	}
}

// PatternMatch 按顺序用正则匹配 notes 与 action
func PatternMatch(rules []PatternRule) Detector {
	return func(_ *types.Agent, sc *types.StepContext) (string, bool) {
		text := strings.TrimSpace(sc.Notes + "\n" + sc.Action)
		if text == "" {
			return "", false
		}
		for _, r := range rules {
			if r.Pattern.MatchString(text) {
				return r.Template, true
			}
		}
		return "", false
	}
}

// CreatesMapping 按产物文件名查表，文件名带不带扩展名都可以
func CreatesMapping(table map[string]string) Detector {
	byStem := make(map[string]string, len(table))
	for name, id := range table {
		lower := strings.ToLower(name)
		byStem[strings.TrimSuffix(lower, path.Ext(lower))] = id
	}
	return func(_ *types.Agent, sc *types.StepContext) (string, bool) {
		if sc.Creates == "" {
			return "", false
		}
		base := strings.ToLower(path.Base(strings.ReplaceAll(strings.TrimSpace(sc.Creates), "\\", "/")))
		if id, ok := table[base]; ok {
			return id, true
		}
		for name, id := range table {
			if strings.EqualFold(name, base) {
				return id, true
			}
		}
		id, ok := byStem[strings.TrimSuffix(base, path.Ext(base))]
		return id, ok
	}
}

var usingPhrase = regexp.MustCompile(`(?i)\b(?:using|with)\s+(?:the\s+)?([a-z0-9][a-z0-9_.-]*)(\s+template\b)?`)

// UsingPhrase 从 notes 中提取 "using <name>" / "with <name>"。
// 只接受本身是模板引用，或后面紧跟 "template" 一词的名称。
func UsingPhrase(_ *types.Agent, sc *types.StepContext) (string, bool) {
	for _, m := range usingPhrase.FindAllStringSubmatch(sc.Notes, -1) {
		name := strings.TrimRight(m[1], ".")
		switch {
		case looksLikeTemplateRef(name):
			return NormalizeID(name), true
		case m[2] != "":
			id := NormalizeID(name)
			if !strings.HasSuffix(id, "-tmpl") {
				id += "-tmpl"
			}
			return id, true
		}
	}
	return "", false
}

// DefaultDetectors 固定顺序的检测器链
func DefaultDetectors() []NamedDetector {
	return []NamedDetector{
		{Name: "explicit", Detect: ExplicitTemplate},
		{Name: "action", Detect: ActionMapping(DefaultActionTemplates)},
		{Name: "pattern", Detect: PatternMatch(DefaultPatternRules)},
		{Name: "creates", Detect: CreatesMapping(DefaultCreatesTemplates)},
		{Name: "using", Detect: UsingPhrase},
	}
}

// IsInteractive 步骤是否应该直接向用户追问
func IsInteractive(agent *types.Agent, sc *types.StepContext) bool {
	if !sc.HasStructuredTarget() && strings.TrimSpace(sc.Action) != "" {
		return true
	}
	action := normalizeAction(sc.Action)
	for _, a := range InteractiveActions {
		if action == a {
			return true
		}
	}
	if agent != nil && (agent.HasCapability("interactive") || agent.HasCapability("elicitation")) {
		return true
	}
	notes := strings.ToLower(sc.Notes)
	for _, kw := range ElicitationKeywords {
		if strings.Contains(notes, kw) {
			return true
		}
	}
	return false
}

func normalizeAction(action string) string {
	a := strings.ToLower(strings.TrimSpace(action))
	a = strings.TrimPrefix(a, "*")
	return strings.Join(strings.Fields(a), "-")
}

// =============================================================================
// 🎯 解析器
// =============================================================================

// Resolver 按固定顺序尝试检测器，并到资源表中确认模板存在
type Resolver struct {
	catalog   Catalog
	detectors []NamedDetector
	logger    *zap.Logger
}

// ResolverOption 解析器选项
type ResolverOption func(*Resolver)

// WithDetectors 替换检测器链
func WithDetectors(d ...NamedDetector) ResolverOption {
	return func(r *Resolver) { r.detectors = d }
}

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver 创建解析器
func NewResolver(catalog Catalog, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		detectors: DefaultDetectors(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "template_resolver"))
	return r
}

// Resolve 解析步骤对应的模板。
// 第一个命中的检测器决定模板，模板不存在时直接返回 ErrTemplateNotFound，不再尝试后续检测器。
func (r *Resolver) Resolve(ctx context.Context, agent *types.Agent, sc *types.StepContext) (Resolution, error) {
	if sc == nil {
		return Resolution{}, errors.New("nil step context")
	}
	for _, d := range r.detectors {
		id, ok := d.Detect(agent, sc)
		if !ok || id == "" {
			continue
		}
		res := Resolution{TemplateID: id, Detector: d.Name}
		tmpl, err := r.catalog.Template(ctx, id)
		if err != nil {
			r.logger.Warn("resolved template unavailable",
				zap.String("detector", d.Name),
				zap.String("template_id", id),
				zap.Error(err))
			return res, fmt.Errorf("resolve template %q via %s: %w", id, d.Name, err)
		}
		res.Template = tmpl
		r.logger.Debug("template resolved", zap.String("detector", d.Name), zap.String("template_id", id))
		return res, nil
	}

	if IsInteractive(agent, sc) {
		return Resolution{Interactive: true}, nil
	}
	return Resolution{}, ErrNoTemplate
}
