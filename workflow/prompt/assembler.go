package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
)

// 追问标记。模型需要用户补充信息时按此格式回复，由执行器识别。
const (
	ElicitOpen  = "[[ELICIT:"
	ElicitClose = "]]"
)

// DefaultQualityStandards 模板未声明质量标准时使用
var DefaultQualityStandards = []string{
	"Be specific to this project; avoid generic filler",
	"Use complete sentences and concrete, verifiable statements",
	"Do not leave placeholders or unresolved {{variables}}",
	"Keep every required section, in the order given",
}

// PromptInput 组装提示词所需的全部输入。Project / Repository 为空时取 Step 中的值。
type PromptInput struct {
	Agent      *types.Agent
	Template   *types.Template
	Step       *types.StepContext
	Project    types.ProjectInfo
	Repository *types.RepositoryInfo
}

// Assembler 将 Agent 设定、模板与上下文组装成单个提示词
type Assembler struct {
	maxPriorChars    int
	qualityStandards []string
}

// Option 组装器选项
type Option func(*Assembler)

// WithPriorOutputLimit 每个前序产出在上下文中保留的最大字符数
func WithPriorOutputLimit(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.maxPriorChars = n
		}
	}
}

// WithDefaultQualityStandards 替换默认质量标准
func WithDefaultQualityStandards(standards ...string) Option {
	return func(a *Assembler) {
		if len(standards) > 0 {
			a.qualityStandards = standards
		}
	}
}

// NewAssembler 创建组装器
func NewAssembler(opts ...Option) *Assembler {
	a := &Assembler{
		maxPriorChars:    800,
		qualityStandards: DefaultQualityStandards,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble 依次输出 System、Task、Context、Output Format、Quality Standards 五段，段间空行分隔。
// 相同输入总是得到相同输出。
func (a *Assembler) Assemble(in PromptInput) string {
	step := in.Step
	if step == nil {
		step = &types.StepContext{}
	}
	project := in.Project
	if project == (types.ProjectInfo{}) {
		project = step.Project
	}
	repo := in.Repository
	if repo == nil {
		repo = step.Repository
	}
	vars := variables(in.Agent, project, step)

	blocks := []string{
		a.systemBlock(in.Agent),
		a.taskBlock(in.Template, step, vars),
		a.contextBlock(project, repo, step),
		a.outputBlock(in.Template, step.ElicitationAnswers),
		a.qualityBlock(in.Template, vars),
	}
	return strings.Join(blocks, "\n\n")
}

// RephrasePrompt 把章节说明改写成一句面向用户的提问
func RephrasePrompt(instruction string, project types.ProjectInfo) string {
	var b strings.Builder
	b.WriteString("Rewrite the following document-section instruction as one short, friendly question ")
	b.WriteString("addressed to a non-technical user. Reply with the question only.\n\n")
	if project.Name != "" {
		fmt.Fprintf(&b, "Project: %s\n", project.Name)
	}
	fmt.Fprintf(&b, "Instruction: %s", strings.TrimSpace(instruction))
	return b.String()
}

func (a *Assembler) systemBlock(agent *types.Agent) string {
	var b strings.Builder
	b.WriteString("## System\n")
	if agent == nil {
		b.WriteString("You are a helpful assistant working on a software project.")
		return b.String()
	}
	name := agent.DisplayName()
	if agent.Title != "" {
		name += ", " + agent.Title
	}
	fmt.Fprintf(&b, "You are %s.", name)
	p := agent.Persona
	if v := strings.TrimSpace(p.Role); v != "" {
		fmt.Fprintf(&b, "\nRole: %s", v)
	}
	if v := strings.TrimSpace(p.Identity); v != "" {
		fmt.Fprintf(&b, "\nIdentity: %s", v)
	}
	if v := strings.TrimSpace(p.Style); v != "" {
		fmt.Fprintf(&b, "\nStyle: %s", v)
	}
	if v := strings.TrimSpace(p.Focus); v != "" {
		fmt.Fprintf(&b, "\nFocus: %s", v)
	}
	if s := bulletList("Core principles:", p.CorePrinciples); s != "" {
		b.WriteString("\n")
		b.WriteString(s)
	}
	return b.String()
}

func (a *Assembler) taskBlock(tmpl *types.Template, step *types.StepContext, vars map[string]string) string {
	var b strings.Builder
	b.WriteString("## Task\n")

	if tmpl == nil {
		if v := strings.TrimSpace(step.Action); v != "" {
			fmt.Fprintf(&b, "Action: %s\n", replaceVars(v, vars))
		}
		if v := strings.TrimSpace(step.Notes); v != "" {
			fmt.Fprintf(&b, "Notes: %s\n", replaceVars(v, vars))
		}
		if v := strings.TrimSpace(step.UserPrompt); v != "" {
			fmt.Fprintf(&b, "User request: %s\n", v)
		}
	} else {
		name := tmpl.Name
		if name == "" {
			name = tmpl.ID
		}
		switch {
		case tmpl.Interactive && len(step.ElicitationAnswers) == 0:
			fmt.Fprintf(&b, "You are starting a conversation to build the %q document together with the user.\n", name)
			b.WriteString("Do not write the document yet. Ask the user ONE focused question about the first topic below ")
			fmt.Fprintf(&b, "and reply only with that question in the form %s your question%s.\n", ElicitOpen, ElicitClose)
		case tmpl.Interactive:
			fmt.Fprintf(&b, "Using the user's answers below, produce the %q document.\n", name)
		default:
			fmt.Fprintf(&b, "Produce the %q document.\n", name)
		}
		if v := strings.TrimSpace(step.Notes); v != "" {
			fmt.Fprintf(&b, "Notes: %s\n", replaceVars(v, vars))
		}
		if len(tmpl.Sections) > 0 {
			b.WriteString("\nSections:\n")
			for i, s := range tmpl.Sections {
				title := s.Title
				if title == "" {
					title = s.ID
				}
				fmt.Fprintf(&b, "%d. %s", i+1, title)
				if instr := strings.TrimSpace(s.Instruction); instr != "" {
					fmt.Fprintf(&b, ": %s", replaceVars(instr, vars))
				}
				b.WriteString("\n")
				for _, hint := range s.FormatHints {
					fmt.Fprintf(&b, "   - %s\n", replaceVars(hint, vars))
				}
			}
		}
	}

	b.WriteString("\nIf information you need is missing and cannot be reasonably inferred, reply only with ")
	fmt.Fprintf(&b, "%s your question%s instead of guessing.", ElicitOpen, ElicitClose)
	return b.String()
}

func (a *Assembler) contextBlock(project types.ProjectInfo, repo *types.RepositoryInfo, step *types.StepContext) string {
	var b strings.Builder
	b.WriteString("## Context\n")

	name := project.Name
	if name == "" {
		name = "(unnamed)"
	}
	fmt.Fprintf(&b, "Project: %s", name)
	if project.Type != "" {
		fmt.Fprintf(&b, "\nProject type: %s", project.Type)
	}
	if project.Description != "" {
		fmt.Fprintf(&b, "\nProject description: %s", project.Description)
	}
	if v := strings.TrimSpace(step.UserPrompt); v != "" {
		fmt.Fprintf(&b, "\nOriginal request: %s", v)
	}

	if repo != nil {
		fmt.Fprintf(&b, "\n\nRepository: %s", repo.FullName())
		if repo.Branch != "" {
			fmt.Fprintf(&b, "\nBranch: %s", repo.Branch)
		}
		if repo.Language != "" {
			fmt.Fprintf(&b, "\nPrimary language: %s", repo.Language)
		}
		if repo.Description != "" {
			fmt.Fprintf(&b, "\nRepository description: %s", repo.Description)
		}
		if len(repo.ExistingFiles) > 0 {
			fmt.Fprintf(&b, "\nExisting files: %s", strings.Join(repo.ExistingFiles, ", "))
		}
	}

	if len(step.PriorOutputs) > 0 {
		b.WriteString("\n\nPrevious steps:")
		for _, out := range step.PriorOutputs {
			label := out.AgentID
			if out.TemplateID != "" {
				label += " / " + out.TemplateID
			}
			fmt.Fprintf(&b, "\n### Step %d (%s)\n%s", out.StepIndex+1, label, truncate(strings.TrimSpace(out.Content), a.maxPriorChars))
		}
	}

	if len(step.ElicitationAnswers) > 0 {
		b.WriteString("\n\n")
		b.WriteString(bulletList("Answers from the user:", step.ElicitationAnswers))
	}
	if len(step.ValidationFeedback) > 0 {
		b.WriteString("\n\n")
		b.WriteString(bulletList("The previous attempt was rejected. Fix these problems:", step.ValidationFeedback))
	}
	if v := strings.TrimSpace(step.TimeoutFeedback); v != "" {
		fmt.Fprintf(&b, "\n\nNote: %s. Be concise.", v)
	}
	return b.String()
}

func (a *Assembler) outputBlock(tmpl *types.Template, answers []string) string {
	var b strings.Builder
	b.WriteString("## Output Format\n")

	if tmpl == nil {
		b.WriteString("Reply in Markdown.")
		return b.String()
	}
	if tmpl.Interactive && len(answers) == 0 {
		fmt.Fprintf(&b, "A single question in the form %s your question%s.", ElicitOpen, ElicitClose)
		return b.String()
	}

	switch tmpl.Format() {
	case types.FormatJSON:
		b.WriteString("Reply with a single JSON object and nothing else, no code fences.\n")
		b.WriteString("Required fields:")
		for _, f := range tmpl.FieldNames() {
			fmt.Fprintf(&b, "\n- %q", f)
		}
	default:
		b.WriteString("Reply in Markdown. Use these section headings, in this order:")
		for _, s := range tmpl.Sections {
			title := s.Title
			if title == "" {
				title = s.ID
			}
			fmt.Fprintf(&b, "\n## %s", title)
		}
		for _, t := range tmpl.RequiredTitles() {
			if _, ok := sectionByTitle(tmpl, t); !ok {
				fmt.Fprintf(&b, "\n## %s", t)
			}
		}
	}
	return b.String()
}

func (a *Assembler) qualityBlock(tmpl *types.Template, vars map[string]string) string {
	standards := a.qualityStandards
	if tmpl != nil && len(tmpl.QualityStandards) > 0 {
		standards = tmpl.QualityStandards
	}
	items := make([]string, 0, len(standards))
	for _, s := range standards {
		items = append(items, replaceVars(s, vars))
	}
	return "## Quality Standards\n" + strings.TrimPrefix(bulletList("", items), "\n")
}

func sectionByTitle(tmpl *types.Template, title string) (types.Section, bool) {
	for _, s := range tmpl.Sections {
		if strings.EqualFold(s.Title, title) || s.ID == title {
			return s, true
		}
	}
	return types.Section{}, false
}

// =============================================================================
// 变量替换
// =============================================================================

// varPattern 匹配 {{variable}} 或 {{ variable }}
var varPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.-]*)\s*\}\}`)

func variables(agent *types.Agent, project types.ProjectInfo, step *types.StepContext) map[string]string {
	vars := map[string]string{
		"user_prompt":     step.UserPrompt,
		"original_prompt": step.UserPrompt,
	}
	if project.Name != "" {
		vars["project_name"] = project.Name
	}
	if project.Type != "" {
		vars["project_type"] = project.Type
	}
	if project.Description != "" {
		vars["project_description"] = project.Description
	}
	if agent != nil {
		vars["agent_name"] = agent.DisplayName()
	}
	return vars
}

// replaceVars 替换已知变量，未知变量原样保留
func replaceVars(text string, vars map[string]string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return varPattern.ReplaceAllStringFunc(text, func(match string) string {
		sub := varPattern.FindStringSubmatch(match)
		if val, ok := vars[sub[1]]; ok {
			return val
		}
		return match
	})
}

func bulletList(title string, items []string) string {
	var lines []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			lines = append(lines, "- "+it)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return title + "\n" + strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
