package types

import "strings"

// Persona 描述 Agent 的角色设定
type Persona struct {
	Role           string   `yaml:"role" json:"role"`
	Identity       string   `yaml:"identity" json:"identity"`
	Style          string   `yaml:"style" json:"style"`
	Focus          string   `yaml:"focus,omitempty" json:"focus,omitempty"`
	CorePrinciples []string `yaml:"core_principles" json:"core_principles"`
}

// Command 将命令名映射到模板或任务引用
type Command struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Template    string `yaml:"template,omitempty" json:"template,omitempty"`
	Task        string `yaml:"task,omitempty" json:"task,omitempty"`
}

// Agent 配置好的 AI 角色。加载后只读，可在多个执行之间共享。
type Agent struct {
	ID           string    `yaml:"id" json:"id"`
	Name         string    `yaml:"name" json:"name"`
	Title        string    `yaml:"title,omitempty" json:"title,omitempty"`
	Persona      Persona   `yaml:"persona" json:"persona"`
	Capabilities []string  `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Commands     []Command `yaml:"commands,omitempty" json:"commands,omitempty"`
}

// Command 按名称查找命令，忽略前导 "*" 与大小写
func (a *Agent) Command(name string) (Command, bool) {
	key := normalizeCommand(name)
	if key == "" {
		return Command{}, false
	}
	for _, c := range a.Commands {
		if normalizeCommand(c.Name) == key {
			return c, true
		}
	}
	return Command{}, false
}

// HasCapability 判断 Agent 是否声明了某项能力
func (a *Agent) HasCapability(capability string) bool {
	for _, c := range a.Capabilities {
		if strings.EqualFold(c, capability) {
			return true
		}
	}
	return false
}

// DisplayName 返回用于日志和提示词的名称
func (a *Agent) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

func normalizeCommand(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "*"))
}
