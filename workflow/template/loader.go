package template

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/EreZAzariyA/dream-team-builder-sub007/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 📂 文件资源表
// =============================================================================

// FileCatalog 从目录加载 Agent（<agentsDir>/<id>.yaml）与模板（<templatesDir>/<id>.yaml）。
// 解析后的资源按 ID 缓存，并发的首次加载只读一次文件。
type FileCatalog struct {
	agentsDir    string
	templatesDir string
	logger       *zap.Logger

	mu        sync.RWMutex
	templates map[string]*types.Template
	agents    map[string]*types.Agent
	group     singleflight.Group
}

// NewFileCatalog 创建文件资源表
func NewFileCatalog(agentsDir, templatesDir string, logger *zap.Logger) *FileCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileCatalog{
		agentsDir:    agentsDir,
		templatesDir: templatesDir,
		logger:       logger.With(zap.String("component", "catalog")),
		templates:    make(map[string]*types.Template),
		agents:       make(map[string]*types.Agent),
	}
}

// Template 实现 Catalog
func (c *FileCatalog) Template(ctx context.Context, id string) (*types.Template, error) {
	id = NormalizeID(id)

	c.mu.RLock()
	t, ok := c.templates[id]
	c.mu.RUnlock()
	if ok {
		return t, nil
	}

	v, err, _ := c.group.Do("template:"+id, func() (any, error) {
		var tmpl types.Template
		if err := c.readYAML(c.templatesDir, id, &tmpl, ErrTemplateNotFound); err != nil {
			return nil, err
		}
		if tmpl.ID == "" {
			tmpl.ID = id
		}
		if err := tmpl.Validate(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.templates[id] = &tmpl
		c.mu.Unlock()
		c.logger.Debug("template loaded", zap.String("template_id", id), zap.Int("sections", len(tmpl.Sections)))
		return &tmpl, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Template), nil
}

// Agent 实现 Catalog
func (c *FileCatalog) Agent(ctx context.Context, id string) (*types.Agent, error) {
	id = strings.TrimSpace(id)

	c.mu.RLock()
	a, ok := c.agents[id]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}

	v, err, _ := c.group.Do("agent:"+id, func() (any, error) {
		var agent types.Agent
		if err := c.readYAML(c.agentsDir, id, &agent, ErrAgentNotFound); err != nil {
			return nil, err
		}
		if agent.ID == "" {
			agent.ID = id
		}
		c.mu.Lock()
		c.agents[id] = &agent
		c.mu.Unlock()
		c.logger.Debug("agent loaded", zap.String("agent_id", id))
		return &agent, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.Agent), nil
}

// Invalidate 丢弃缓存，下次访问重新读取文件
func (c *FileCatalog) Invalidate() {
	c.mu.Lock()
	c.templates = make(map[string]*types.Template)
	c.agents = make(map[string]*types.Agent)
	c.mu.Unlock()
}

// readYAML 依次尝试 .yaml 与 .yml；文件不存在返回 notFound，解析失败返回解析错误
func (c *FileCatalog) readYAML(dir, id string, out any, notFound error) error {
	if !validID(id) {
		return fmt.Errorf("%w: %q", notFound, id)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(dir, id+ext)
		data, err := os.ReadFile(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", notFound, id)
}

// =============================================================================
// 📜 工作流定义
// =============================================================================

// ErrInvalidWorkflow 工作流定义不合法
var ErrInvalidWorkflow = errors.New("invalid workflow definition")

// LoadWorkflowFile 从 YAML 文件加载工作流定义
func LoadWorkflowFile(filename string) (*types.WorkflowDefinition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	def, err := ParseWorkflow(data)
	if err != nil {
		return nil, err
	}
	if def.ID == "" {
		def.ID = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return def, nil
}

// ParseWorkflow 从 YAML 字节解析并校验工作流定义
func ParseWorkflow(data []byte) (*types.WorkflowDefinition, error) {
	var def types.WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateWorkflow(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

func validateWorkflow(def *types.WorkflowDefinition) error {
	var errs []string
	if len(def.Steps) == 0 {
		errs = append(errs, "sequence is empty")
	}
	for i, s := range def.Steps {
		if strings.TrimSpace(s.Agent) == "" {
			errs = append(errs, fmt.Sprintf("step %d: agent is required", i))
		}
		if s.Action == "" && s.Command == "" && s.Uses == "" && s.Creates == "" && s.Template == "" && s.Notes == "" {
			errs = append(errs, fmt.Sprintf("step %d: nothing to do", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidWorkflow, strings.Join(errs, "; "))
	}
	return nil
}
