package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sashabaranov/go-openai"
)

// ToolRegistry 工具注册表，List/Names 按注册顺序返回
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]ToolHandler     // name -> handler
	schemas map[string]*ToolDefinition // name -> definition
	order   []string
}

// ToolHandler 工具执行器接口
type ToolHandler interface {
	// Execute 执行工具
	Execute(ctx context.Context, input map[string]any) (any, error)

	// Validate 验证输入参数
	Validate(input map[string]any) error
}

// NewToolRegistry 创建工具注册表
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]ToolHandler),
		schemas: make(map[string]*ToolDefinition),
	}
}

// Register 注册工具
func (r *ToolRegistry) Register(name string, handler ToolHandler, definition *ToolDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("工具 %s 已注册", name)
	}
	if definition.Status == "" {
		definition.Status = "active"
	}

	r.tools[name] = handler
	r.schemas[name] = definition
	r.order = append(r.order, name)
	return nil
}

// Unregister 取消注册工具
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tools, name)
	delete(r.schemas, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get 获取工具处理器
func (r *ToolRegistry) Get(name string) (ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.tools[name]
	return handler, exists
}

// GetDefinition 获取工具定义
func (r *ToolRegistry) GetDefinition(name string) (*ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, exists := r.schemas[name]
	return def, exists
}

// List 列出所有工具
func (r *ToolRegistry) List() []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.schemas[name])
	}
	return tools
}

// Names 工具名称列表
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// ToOpenAITools 转换为 OpenAI Tools 格式，跳过停用的工具
func (r *ToolRegistry) ToOpenAITools() []openai.Tool {
	defs := r.List()
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		if def.Status != "active" {
			continue
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return tools
}

// Count 统计工具数量
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ValidateRequired 检查必填参数为非空字符串
func ValidateRequired(input map[string]any, fields ...string) error {
	for _, f := range fields {
		v, ok := input[f]
		if !ok || v == nil {
			return fmt.Errorf("missing required argument: %s", f)
		}
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("argument %s must be a string", f)
		}
		if s == "" {
			return fmt.Errorf("argument %s must not be empty", f)
		}
	}
	return nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
