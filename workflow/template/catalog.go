package template

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
)

var (
	// ErrTemplateNotFound 模板资源不存在
	ErrTemplateNotFound = errors.New("template not found")
	// ErrAgentNotFound Agent 资源不存在
	ErrAgentNotFound = errors.New("agent not found")
)

// Catalog 只读资源加载器。
// 资源不存在时返回包装了 ErrTemplateNotFound / ErrAgentNotFound 的错误，
// 与解析错误区分开。
type Catalog interface {
	Template(ctx context.Context, id string) (*types.Template, error)
	Agent(ctx context.Context, id string) (*types.Agent, error)
}

// NormalizeID 把模板引用规整为模板 ID：去掉目录与扩展名、转小写、空白换成 "-"
func NormalizeID(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	ref = path.Base(strings.ReplaceAll(ref, "\\", "/"))
	lower := strings.ToLower(ref)
	for _, ext := range []string{".yaml", ".yml", ".md"} {
		if strings.HasSuffix(lower, ext) {
			lower = strings.TrimSuffix(lower, ext)
			break
		}
	}
	return strings.Join(strings.Fields(lower), "-")
}

// validID 拒绝空 ID 和路径穿越
func validID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// =============================================================================
// 内存实现
// =============================================================================

// MemoryCatalog 内存资源表，用于测试和嵌入式使用
type MemoryCatalog struct {
	mu        sync.RWMutex
	templates map[string]*types.Template
	agents    map[string]*types.Agent
}

// NewMemoryCatalog 创建内存资源表
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{
		templates: make(map[string]*types.Template),
		agents:    make(map[string]*types.Agent),
	}
}

// AddTemplate 注册模板，结构不合法时返回错误
func (c *MemoryCatalog) AddTemplate(t *types.Template) error {
	if t == nil {
		return fmt.Errorf("%w: nil template", types.ErrInvalidTemplate)
	}
	if err := t.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	c.templates[NormalizeID(t.ID)] = t
	c.mu.Unlock()
	return nil
}

// AddAgent 注册 Agent
func (c *MemoryCatalog) AddAgent(a *types.Agent) error {
	if a == nil || a.ID == "" {
		return errors.New("agent id is required")
	}
	c.mu.Lock()
	c.agents[a.ID] = a
	c.mu.Unlock()
	return nil
}

// Template 实现 Catalog
func (c *MemoryCatalog) Template(_ context.Context, id string) (*types.Template, error) {
	c.mu.RLock()
	t, ok := c.templates[NormalizeID(id)]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return t, nil
}

// Agent 实现 Catalog
func (c *MemoryCatalog) Agent(_ context.Context, id string) (*types.Agent, error) {
	c.mu.RLock()
	a, ok := c.agents[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}
