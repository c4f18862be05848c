package types

import "time"

// ProjectInfo 工作流所属项目的基本信息
type ProjectInfo struct {
	Name        string `yaml:"name" json:"name"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// RepositoryInfo 工作流关联的代码仓库信息
type RepositoryInfo struct {
	Owner         string   `yaml:"owner" json:"owner"`
	Name          string   `yaml:"name" json:"name"`
	Branch        string   `yaml:"branch,omitempty" json:"branch,omitempty"`
	Language      string   `yaml:"language,omitempty" json:"language,omitempty"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	ExistingFiles []string `yaml:"existing_files,omitempty" json:"existing_files,omitempty"`
}

// FullName 返回 owner/name 形式的仓库名
func (r *RepositoryInfo) FullName() string {
	if r.Owner == "" {
		return r.Name
	}
	return r.Owner + "/" + r.Name
}

// StepContext 单个步骤执行过程中的可变上下文。
// 只属于一次进行中的步骤执行，不会在工作流之间共享。
type StepContext struct {
	WorkflowID string `json:"workflow_id"`
	UserID     string `json:"user_id"`
	StepIndex  int    `json:"step_index"`
	AgentID    string `json:"agent_id"`

	UserPrompt string `json:"user_prompt"`
	Action     string `json:"action,omitempty"`
	Command    string `json:"command,omitempty"`
	Uses       string `json:"uses,omitempty"`
	Creates    string `json:"creates,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Notes      string `json:"notes,omitempty"`

	Project    ProjectInfo     `json:"project"`
	Repository *RepositoryInfo `json:"repository,omitempty"`

	// PriorOutputs 前序步骤产出的摘要，按步骤顺序
	PriorOutputs []StepOutput `json:"prior_outputs,omitempty"`

	ValidationFeedback []string `json:"validation_feedback,omitempty"`
	TimeoutFeedback    string   `json:"timeout_feedback,omitempty"`
	ElicitationAnswers []string `json:"elicitation_answers,omitempty"`
}

// Clone 深拷贝，供每次尝试独立修改
func (sc *StepContext) Clone() *StepContext {
	if sc == nil {
		return nil
	}
	cp := *sc
	if sc.Repository != nil {
		repo := *sc.Repository
		repo.ExistingFiles = append([]string(nil), sc.Repository.ExistingFiles...)
		cp.Repository = &repo
	}
	cp.PriorOutputs = append([]StepOutput(nil), sc.PriorOutputs...)
	cp.ValidationFeedback = append([]string(nil), sc.ValidationFeedback...)
	cp.ElicitationAnswers = append([]string(nil), sc.ElicitationAnswers...)
	return &cp
}

// HasStructuredTarget 步骤是否声明了 command/uses/creates 任一字段
func (sc *StepContext) HasStructuredTarget() bool {
	return sc.Command != "" || sc.Uses != "" || sc.Creates != "" || sc.TemplateID != ""
}

// ElicitationRequest 步骤无法在没有人工输入的情况下继续时产生
type ElicitationRequest struct {
	ID           string    `json:"id"`
	WorkflowID   string    `json:"workflow_id"`
	StepIndex    int       `json:"step_index"`
	AgentID      string    `json:"agent_id"`
	SectionID    string    `json:"section_id,omitempty"`
	SectionTitle string    `json:"section_title,omitempty"`
	Instruction  string    `json:"instruction"`
	Question     string    `json:"question"`
	CreatedAt    time.Time `json:"created_at"`
}
