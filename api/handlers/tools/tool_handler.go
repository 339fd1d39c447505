package tools

import (
	"context"
	"net/http"
	"strconv"

	response "careassist/api/handlers/common"
	"careassist/internal/logger"
	"careassist/internal/tools"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dispatcher 工具执行与审计查询
type Dispatcher interface {
	tools.ExecutionProvider
	History(ctx context.Context, limit int) ([]tools.ToolExecution, error)
}

// toolExecuteRequest 执行工具请求
type toolExecuteRequest struct {
	Input     map[string]any `json:"input"`
	SessionID string         `json:"sessionId"`
}

// ToolHandler 工具管理 Handler
type ToolHandler struct {
	defs       tools.DefinitionProvider
	dispatcher Dispatcher
}

// NewToolHandler 创建 ToolHandler
func NewToolHandler(defs tools.DefinitionProvider, dispatcher Dispatcher) *ToolHandler {
	return &ToolHandler{defs: defs, dispatcher: dispatcher}
}

// ListTools 查询工具列表
// @Summary 查询工具列表
// @Tags Tools
// @Produce json
// @Success 200 {object} response.APIResponse{data=[]tools.ToolDefinition}
// @Router /api/tools [get]
func (h *ToolHandler) ListTools(c *gin.Context) {
	list := h.defs.List()
	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: gin.H{
			"tools": list,
			"count": len(list),
		},
	})
}

// GetTool 查询工具详情
// @Summary 获取工具详情
// @Tags Tools
// @Produce json
// @Param name path string true "工具名称"
// @Success 200 {object} tools.ToolDefinition
// @Failure 404 {object} response.ErrorResponse
// @Router /api/tools/{name} [get]
func (h *ToolHandler) GetTool(c *gin.Context) {
	definition, exists := h.defs.GetDefinition(c.Param("name"))
	if !exists {
		response.Fail(c, http.StatusNotFound, "tool_not_found", "Tool not found")
		return
	}
	c.JSON(http.StatusOK, definition)
}

// ExecuteTool 执行工具，工具失败也返回 200 与结构化结果
// @Summary 执行工具
// @Tags Tools
// @Accept json
// @Produce json
// @Param name path string true "工具名称"
// @Param request body toolExecuteRequest true "执行输入"
// @Success 200 {object} tools.Result
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} tools.Result
// @Router /api/tools/{name}/execute [post]
func (h *ToolHandler) ExecuteTool(c *gin.Context) {
	name := c.Param("name")

	var req toolExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.Input == nil {
		req.Input = map[string]any{}
	}

	result := h.dispatcher.Execute(c.Request.Context(), &tools.ExecutionRequest{
		ToolName:  name,
		Input:     req.Input,
		Source:    "http",
		SessionID: req.SessionID,
	})

	status := http.StatusOK
	if _, exists := h.defs.GetDefinition(name); !exists {
		status = http.StatusNotFound
	}
	c.JSON(status, result)
}

// ListExecutions 最近的工具执行记录
// @Summary 工具执行记录
// @Tags Tools
// @Produce json
// @Param limit query int false "条数（默认 50，最大 200）"
// @Success 200 {object} response.APIResponse{data=response.ListResponse}
// @Router /api/tools/executions [get]
func (h *ToolHandler) ListExecutions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Fail(c, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	rows, err := h.dispatcher.History(c.Request.Context(), limit)
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("查询工具执行记录失败", zap.Error(err))
		response.Fail(c, http.StatusInternalServerError, "history_failed", "Failed to load tool executions")
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{
		Success: true,
		Data: response.ListResponse{
			Items:      rows,
			Pagination: response.NewPagination(1, limit, int64(len(rows))),
		},
	})
}
