// =============================================================================
// 📦 测试数据工厂 - Agent、模板与工作流
// =============================================================================
// 提供预定义的资源，用于测试
// =============================================================================
package fixtures

import (
	"strings"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"github.com/EreZAzariyA/dream-team-builder-sub007/workflow/template"
)

// =============================================================================
// 🤖 Agent
// =============================================================================

// PMAgent 产品经理，create-prd 命令指向 prd-tmpl
func PMAgent() *types.Agent {
	return &types.Agent{
		ID:    "pm",
		Name:  "John",
		Title: "Product Manager",
		Persona: types.Persona{
			Role:           "Investigative Product Strategist",
			Identity:       "Product manager specialized in document creation",
			Style:          "Analytical, inquisitive, data-driven",
			CorePrinciples: []string{"Understand the why", "Champion the user"},
		},
		Commands: []types.Command{
			{Name: "create-prd", Template: "prd-tmpl.yaml"},
			{Name: "create-story", Template: "story-json-tmpl"},
		},
	}
}

// ArchitectAgent 架构师
func ArchitectAgent() *types.Agent {
	return &types.Agent{
		ID:    "architect",
		Name:  "Winston",
		Title: "Architect",
		Persona: types.Persona{
			Role:  "Holistic System Architect",
			Style: "Comprehensive, pragmatic",
		},
	}
}

// AnalystAgent 业务分析师，声明了交互能力
func AnalystAgent() *types.Agent {
	return &types.Agent{
		ID:           "analyst",
		Name:         "Mary",
		Title:        "Business Analyst",
		Persona:      types.Persona{Role: "Insightful Analyst"},
		Capabilities: []string{"interactive"},
	}
}

// =============================================================================
// 📄 模板
// =============================================================================

// PRDTemplate Markdown 模板，两个必需章节
func PRDTemplate() *types.Template {
	return &types.Template{
		ID:       "prd-tmpl",
		Name:     "Product Requirements Document",
		Output:   types.FormatMarkdown,
		Filename: "prd.md",
		Sections: []types.Section{
			{ID: "goals", Title: "Goals", Instruction: "List the goals of {{project_name}}."},
			{ID: "requirements", Title: "Functional Requirements", Instruction: "List functional requirements as FR1, FR2."},
		},
		RequiredSections: []string{"goals", "requirements"},
	}
}

// StoryJSONTemplate JSON 模板
func StoryJSONTemplate() *types.Template {
	return &types.Template{
		ID:     "story-json-tmpl",
		Name:   "User Story",
		Output: types.FormatJSON,
		Sections: []types.Section{
			{ID: "story", Title: "Story", Instruction: "Write one user story.", Fields: []string{"title", "acceptance_criteria"}},
		},
	}
}

// BriefTemplate 第一个章节需要用户输入的模板
func BriefTemplate() *types.Template {
	return &types.Template{
		ID:       "project-brief-tmpl",
		Name:     "Project Brief",
		Filename: "project-brief.md",
		Sections: []types.Section{
			{ID: "problem", Title: "Problem Statement", Instruction: "Describe the problem the users have.", ElicitationRequired: true},
			{ID: "solution", Title: "Proposed Solution", Instruction: "Summarize the solution."},
		},
		RequiredSections: []string{"problem", "solution"},
	}
}

// ValidPRD 能通过 PRDTemplate 校验的文档
func ValidPRD() string {
	filler := strings.Repeat("The product helps small teams plan their week and share progress. ", 2)
	return "# Goals\n" + filler + "\n\n## Functional Requirements\n- FR1: Users can create tasks.\n- FR2: Users can assign tasks.\n"
}

// ValidBrief 能通过 BriefTemplate 校验的文档
func ValidBrief() string {
	filler := strings.Repeat("Freelancers lose track of invoices and need a simple way to follow up. ", 2)
	return "# Problem Statement\n" + filler + "\n\n# Proposed Solution\nA lightweight invoice tracker with reminders.\n"
}

// Catalog 预置以上 Agent 与模板的内存资源表
func Catalog() *template.MemoryCatalog {
	c := template.NewMemoryCatalog()
	for _, a := range []*types.Agent{PMAgent(), ArchitectAgent(), AnalystAgent()} {
		if err := c.AddAgent(a); err != nil {
			panic(err)
		}
	}
	for _, t := range []*types.Template{PRDTemplate(), StoryJSONTemplate(), BriefTemplate()} {
		if err := c.AddTemplate(t); err != nil {
			panic(err)
		}
	}
	return c
}

// =============================================================================
// 🔀 工作流
// =============================================================================

// GreenfieldDefinition 两步工作流：PM 写 PRD，架构师对话式评审
func GreenfieldDefinition() *types.WorkflowDefinition {
	return &types.WorkflowDefinition{
		ID:   "greenfield-lite",
		Name: "Greenfield Lite",
		Steps: []types.WorkflowStep{
			{Agent: "pm", Command: "create-prd", Creates: "prd.md"},
			{Agent: "architect", Action: "review", Notes: "Review the PRD and list open risks.", Conversational: true},
		},
	}
}
