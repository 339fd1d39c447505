package mcpserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"careassist/internal/logger"
	"careassist/internal/tools"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JSON-RPC 错误码
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInternalError  = -32603
)

const protocolVersion = "2024-11-05"

// Transports 对外暴露的传输名
var Transports = []string{"http", "sse"}

// Capabilities 服务能力描述
var Capabilities = []string{
	"Healthcare Document Management",
	"Insurance Policy Analysis",
	"Medical Cost Intelligence",
}

// ServerInfo 服务元信息
type ServerInfo struct {
	Name    string
	Version string
}

// Label 形如 "Healthcare AI Assistant MCP Server v1.0.0"
func (s ServerInfo) Label() string {
	return fmt.Sprintf("%s v%s", s.Name, s.Version)
}

// MetadataResponse GET /:transport 响应
type MetadataResponse struct {
	Server         string        `json:"server"`
	Version        string        `json:"version"`
	Transport      string        `json:"transport"`
	Status         string        `json:"status"`
	AvailableTools []string      `json:"availableTools"`
	ToolsCount     int           `json:"toolsCount"`
	Capabilities   []string      `json:"capabilities"`
	Usage          MetadataUsage `json:"usage"`
}

// MetadataUsage 调用示例
type MetadataUsage struct {
	Endpoint string         `json:"endpoint"`
	Method   string         `json:"method"`
	Example  map[string]any `json:"example"`
}

// ToolCallRequest 自定义调用格式
type ToolCallRequest struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCallResponse 自定义调用响应
type ToolCallResponse struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
	Result    tools.Result   `json:"result"`
	Timestamp string         `json:"timestamp"`
	Server    string         `json:"server"`
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TransportHandler 工具调用的 HTTP 垫片，兼容自定义 JSON 与 JSON-RPC/SSE 两种格式
type TransportHandler struct {
	defs tools.DefinitionProvider
	exec tools.ExecutionProvider
	info ServerInfo
}

// NewTransportHandler 创建传输处理器
func NewTransportHandler(defs tools.DefinitionProvider, exec tools.ExecutionProvider, info ServerInfo) *TransportHandler {
	return &TransportHandler{defs: defs, exec: exec, info: info}
}

// Metadata 返回服务元信息
func (h *TransportHandler) Metadata(c *gin.Context) {
	names := h.defs.Names()
	c.JSON(http.StatusOK, MetadataResponse{
		Server:         h.info.Name,
		Version:        h.info.Version,
		Transport:      transportOf(c),
		Status:         "running",
		AvailableTools: names,
		ToolsCount:     len(names),
		Capabilities:   Capabilities,
		Usage: MetadataUsage{
			Endpoint: "/[transport]",
			Method:   http.MethodPost,
			Example: map[string]any{
				"tool":      "searchDocuments",
				"arguments": map[string]any{"query": "What is my deductible?"},
			},
		},
	})
}

// Call 按请求体选择自定义格式或 JSON-RPC
func (h *TransportHandler) Call(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Failed to read request body"})
		return
	}

	var probe struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		if looksLikeRPC(c) {
			h.writeRPC(c, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &rpcError{Code: codeParseError, Message: "Parse error"}})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success":   false,
			"error":     "Invalid JSON body",
			"timestamp": timestamp(),
		})
		return
	}

	if probe.JSONRPC != "" {
		h.handleRPC(c, body)
		return
	}
	h.handleCustom(c, body)
}

func (h *TransportHandler) handleCustom(c *gin.Context, body []byte) {
	var req ToolCallRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error(), "timestamp": timestamp()})
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	if _, ok := h.defs.GetDefinition(req.Tool); !ok || req.Tool == "" {
		c.JSON(http.StatusBadRequest, tools.Result{
			Success:        false,
			Error:          fmt.Sprintf("Unknown tool: %s", req.Tool),
			AvailableTools: h.defs.Names(),
		})
		return
	}

	result := h.exec.Execute(c.Request.Context(), &tools.ExecutionRequest{
		ToolName: req.Tool,
		Input:    req.Arguments,
		Source:   transportOf(c),
	})

	c.JSON(http.StatusOK, ToolCallResponse{
		Tool:      req.Tool,
		Arguments: req.Arguments,
		Result:    result,
		Timestamp: timestamp(),
		Server:    h.info.Label(),
	})
}

func (h *TransportHandler) handleRPC(c *gin.Context, body []byte) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeRPC(c, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &rpcError{Code: codeInvalidRequest, Message: err.Error()}})
		return
	}

	// 通知没有 id，不需要响应体
	if len(req.ID) == 0 {
		c.Status(http.StatusAccepted)
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": h.info.Name, "version": h.info.Version},
		}
	case "tools/list":
		resp.Result = map[string]any{"tools": h.listTools()}
	case "tools/call":
		resp.Result, resp.Error = h.callRPC(c, req.Params)
	default:
		resp.Error = &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)}
	}
	h.writeRPC(c, resp)
}

func (h *TransportHandler) callRPC(c *gin.Context, raw json.RawMessage) (any, *rpcError) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, &rpcError{Code: codeInvalidRequest, Message: fmt.Sprintf("Invalid params: %v", err)}
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	result := h.exec.Execute(c.Request.Context(), &tools.ExecutionRequest{
		ToolName: params.Name,
		Input:    params.Arguments,
		Source:   "jsonrpc",
	})
	if !result.Success {
		return nil, &rpcError{Code: codeInternalError, Message: result.Error}
	}
	return map[string]any{"content": []textContent{{Type: "text", Text: result.Text()}}}, nil
}

func (h *TransportHandler) listTools() []map[string]any {
	defs := h.defs.List()
	out := make([]map[string]any, 0, len(defs))
	for _, def := range defs {
		if def.Status != "active" {
			continue
		}
		out = append(out, map[string]any{
			"name":        def.Name,
			"description": def.Description,
			"inputSchema": def.Parameters,
		})
	}
	return out
}

// writeRPC 以单行 SSE data 帧返回
func (h *TransportHandler) writeRPC(c *gin.Context, resp rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("序列化 JSON-RPC 响应失败", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	buf.WriteString("data: ")
	buf.Write(data)
	buf.WriteString("\n\n")

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "text/event-stream", buf.Bytes())
}

func transportOf(c *gin.Context) string {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}
	return strings.Trim(path, "/")
}

func looksLikeRPC(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
