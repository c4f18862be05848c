package types

import (
	"errors"
	"fmt"
	"strings"
)

// OutputFormat 模板要求的输出格式
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
)

// Section 模板中的一个章节
type Section struct {
	ID                  string   `yaml:"id" json:"id"`
	Title               string   `yaml:"title" json:"title"`
	Instruction         string   `yaml:"instruction" json:"instruction"`
	ElicitationRequired bool     `yaml:"elicit,omitempty" json:"elicit,omitempty"`
	FormatHints         []string `yaml:"format_hints,omitempty" json:"format_hints,omitempty"`
	Fields              []string `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Template 一组有序章节，Agent 的输出必须满足其结构要求。加载后只读。
type Template struct {
	ID               string       `yaml:"id" json:"id"`
	Name             string       `yaml:"name" json:"name"`
	Version          string       `yaml:"version,omitempty" json:"version,omitempty"`
	Output           OutputFormat `yaml:"output_format" json:"output_format"`
	Filename         string       `yaml:"filename,omitempty" json:"filename,omitempty"`
	Interactive      bool         `yaml:"interactive,omitempty" json:"interactive,omitempty"`
	Sections         []Section    `yaml:"sections" json:"sections"`
	RequiredSections []string     `yaml:"required_sections,omitempty" json:"required_sections,omitempty"`
	QualityStandards []string     `yaml:"quality_standards,omitempty" json:"quality_standards,omitempty"`
}

// ErrInvalidTemplate 模板结构不合法（属于编程错误，而非可恢复的失败）
var ErrInvalidTemplate = errors.New("invalid template")

// Format 返回输出格式，未设置时默认 markdown
func (t *Template) Format() OutputFormat {
	if t.Output == "" {
		return FormatMarkdown
	}
	return t.Output
}

// Section 按 ID 查找章节
func (t *Template) Section(id string) (Section, bool) {
	for _, s := range t.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// RequiredTitles 返回必须出现在输出中的章节标题。
// RequiredSections 中的条目既可以是章节 ID 也可以是标题。
func (t *Template) RequiredTitles() []string {
	titles := make([]string, 0, len(t.RequiredSections))
	for _, ref := range t.RequiredSections {
		if s, ok := t.Section(ref); ok && s.Title != "" {
			titles = append(titles, s.Title)
			continue
		}
		titles = append(titles, ref)
	}
	return titles
}

// FirstElicitSection 返回第一个需要用户输入的章节
func (t *Template) FirstElicitSection() (Section, bool) {
	for _, s := range t.Sections {
		if s.ElicitationRequired {
			return s, true
		}
	}
	return Section{}, false
}

// Validate 检查模板结构
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTemplate)
	}
	switch t.Format() {
	case FormatMarkdown, FormatJSON:
	default:
		return fmt.Errorf("%w: %s: unsupported output format %q", ErrInvalidTemplate, t.ID, t.Output)
	}
	seen := make(map[string]bool, len(t.Sections))
	for i, s := range t.Sections {
		if s.ID == "" {
			return fmt.Errorf("%w: %s: section %d has no id", ErrInvalidTemplate, t.ID, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: %s: duplicate section id %q", ErrInvalidTemplate, t.ID, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// FieldNames JSON 输出要求的字段名：章节声明的 Fields，未声明时用章节 ID。
// RequiredSections 中不对应任何章节的条目也视为字段名。
func (t *Template) FieldNames() []string {
	var fields []string
	seen := make(map[string]bool)
	add := func(f string) {
		f = strings.TrimSpace(f)
		if f != "" && !seen[f] {
			seen[f] = true
			fields = append(fields, f)
		}
	}
	for _, s := range t.Sections {
		if len(s.Fields) == 0 {
			add(s.ID)
			continue
		}
		for _, f := range s.Fields {
			add(f)
		}
	}
	for _, r := range t.RequiredSections {
		if _, ok := t.Section(r); !ok {
			add(r)
		}
	}
	return fields
}
