package tools

import "context"

// DefinitionProvider 工具定义提供方，HTTP、MCP 与聊天层只依赖该接口
type DefinitionProvider interface {
	GetDefinition(name string) (*ToolDefinition, bool)
	List() []*ToolDefinition
	Names() []string
}

// ExecutionProvider 统一的工具调用入口
type ExecutionProvider interface {
	Execute(ctx context.Context, req *ExecutionRequest) Result
}
