package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"careassist/internal/tools"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer 把注册表中的工具挂到 MCP 服务上，调用统一走分发器
func NewServer(defs tools.DefinitionProvider, exec tools.ExecutionProvider, info ServerInfo) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    info.Name,
		Version: info.Version,
	}, nil)

	for _, def := range defs.List() {
		if def.Status != "active" {
			continue
		}
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: inputSchema(def),
		}, toolHandler(def.Name, exec))
	}
	return server
}

// NewHTTPHandler streamable HTTP 传输
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return server
	}, nil)
}

func toolHandler(name string, exec tools.ExecutionProvider) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := map[string]any{}
		if req.Params != nil && len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return errorResult(fmt.Sprintf("Invalid arguments for %s: %v", name, err)), nil
			}
		}

		result := exec.Execute(ctx, &tools.ExecutionRequest{
			ToolName: name,
			Input:    args,
			Source:   "mcp",
		})
		if !result.Success {
			return errorResult(result.Error), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result.Text()}},
		}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// inputSchema MCP 要求 schema 为 object 类型
func inputSchema(def *tools.ToolDefinition) map[string]any {
	schema := make(map[string]any, len(def.Parameters)+1)
	for k, v := range def.Parameters {
		schema[k] = v
	}
	if _, ok := schema["type"]; !ok {
		schema["type"] = "object"
	}
	return schema
}
