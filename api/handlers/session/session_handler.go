package session

import (
	"context"
	"errors"
	"net/http"

	response "careassist/api/handlers/common"
	"careassist/internal/logger"
	"careassist/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Manager 会话管理能力
type Manager interface {
	Initialize(ctx context.Context, cfg *session.Config) error
	Info(ctx context.Context) (*session.Info, error)
	ClearCurrent(ctx context.Context) error
}

// ActionRequest POST /api/session 请求
type ActionRequest struct {
	Action string          `json:"action"`
	Config *session.Config `json:"config,omitempty"`
}

// Handler 会话处理器
type Handler struct {
	manager Manager
}

// NewHandler 创建会话处理器
func NewHandler(manager Manager) *Handler {
	return &Handler{manager: manager}
}

// GetInfo 获取当前会话信息
// @Summary 会话信息
// @Tags Session
// @Produce json
// @Success 200 {object} response.APIResponse{data=session.Info}
// @Router /api/session [get]
func (h *Handler) GetInfo(c *gin.Context) {
	h.info(c)
}

// Action 初始化、清理或查询会话
// @Summary 会话操作
// @Tags Session
// @Accept json
// @Produce json
// @Param request body ActionRequest true "操作"
// @Success 200 {object} response.APIResponse
// @Failure 400 {object} response.APIResponse
// @Router /api/session [post]
func (h *Handler) Action(c *gin.Context) {
	var req ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.APIResponse{Success: false, Error: "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case "initialize":
		if err := h.manager.Initialize(ctx, req.Config); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "Session initialized successfully"})
	case "clear":
		if err := h.manager.ClearCurrent(ctx); err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "Session documents cleared successfully"})
	case "info":
		h.info(c)
	default:
		c.JSON(http.StatusBadRequest, response.APIResponse{
			Success: false,
			Error:   "Invalid action. Use: initialize, clear, or info",
		})
	}
}

// Clear 清空当前会话的全部文档
// @Summary 清空会话文档
// @Tags Session
// @Produce json
// @Success 200 {object} response.APIResponse
// @Router /api/session [delete]
func (h *Handler) Clear(c *gin.Context) {
	if err := h.manager.ClearCurrent(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Message: "All session documents cleared successfully"})
}

func (h *Handler) info(c *gin.Context) {
	info, err := h.manager.Info(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: info})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var ve *session.ValidationError
	if errors.As(err, &ve) {
		status = http.StatusBadRequest
	}
	logger.WithContext(c.Request.Context()).Error("会话操作失败", zap.Int("status", status), zap.Error(err))
	c.JSON(status, response.APIResponse{Success: false, Error: err.Error()})
}
