package types

import "time"

// WorkflowStatus 工作流状态
type WorkflowStatus string

const (
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
)

// IsTerminal 工作流是否已结束
func (s WorkflowStatus) IsTerminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed
}

// WorkflowStep 工作流定义中的一个步骤
type WorkflowStep struct {
	Agent          string `yaml:"agent" json:"agent"`
	Action         string `yaml:"action,omitempty" json:"action,omitempty"`
	Command        string `yaml:"command,omitempty" json:"command,omitempty"`
	Uses           string `yaml:"uses,omitempty" json:"uses,omitempty"`
	Creates        string `yaml:"creates,omitempty" json:"creates,omitempty"`
	Template       string `yaml:"template,omitempty" json:"template,omitempty"`
	Notes          string `yaml:"notes,omitempty" json:"notes,omitempty"`
	Conversational bool   `yaml:"conversational,omitempty" json:"conversational,omitempty"`
}

// WorkflowDefinition 有序的步骤列表
type WorkflowDefinition struct {
	ID          string         `yaml:"id" json:"id"`
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []WorkflowStep `yaml:"sequence" json:"sequence"`
}

// StepOutput 已完成步骤的产出
type StepOutput struct {
	StepIndex   int       `json:"step_index"`
	AgentID     string    `json:"agent_id"`
	TemplateID  string    `json:"template_id,omitempty"`
	Content     string    `json:"content"`
	Provider    string    `json:"provider,omitempty"`
	Attempts    int       `json:"attempts"`
	Artifact    string    `json:"artifact,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Checkpoint 每个步骤完成后记录的检查点
type Checkpoint struct {
	ID        string         `json:"id"`
	StepIndex int            `json:"step_index"`
	Status    WorkflowStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}

// Message 工作流消息历史中的一条记录
type Message struct {
	Role      string    `json:"role"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Message roles
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// WorkflowState 工作流运行状态。
// 同一个工作流 ID 只有一个写入方：步骤执行器或恢复路径，二者不会并发。
type WorkflowState struct {
	ID           string              `json:"id"`
	DefinitionID string              `json:"definition_id"`
	Definition   *WorkflowDefinition `json:"definition,omitempty"`
	UserID       string              `json:"user_id"`
	Status       WorkflowStatus      `json:"status"`
	CurrentStep  int                 `json:"current_step"`
	Outputs      []StepOutput        `json:"outputs"`
	Checkpoints  []Checkpoint        `json:"checkpoints"`
	Messages     []Message           `json:"messages"`
	Paused       bool                `json:"paused"`
	Pending      *ElicitationRequest `json:"pending_elicitation,omitempty"`
	PendingStep  *StepContext        `json:"pending_step,omitempty"`
	Project      ProjectInfo         `json:"project"`
	Repository   *RepositoryInfo     `json:"repository,omitempty"`
	UserPrompt   string              `json:"user_prompt"`
	Error        string              `json:"error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}
