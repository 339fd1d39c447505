package agents

import (
	"context"
	"errors"
	"net/http"

	response "careassist/api/handlers/common"
	"careassist/internal/assistant"
	"careassist/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Chatter 对话能力
type Chatter interface {
	Chat(ctx context.Context, req assistant.ChatRequest) (*assistant.ChatResponse, error)
}

// SessionIDFunc 当前会话 ID
type SessionIDFunc func() string

// AgentHandler 对话助手处理器
type AgentHandler struct {
	agent     Chatter
	sessionID SessionIDFunc
}

// NewAgentHandler 创建对话处理器，agent 为 nil 时接口返回 503
func NewAgentHandler(agent Chatter, sessionID SessionIDFunc) *AgentHandler {
	return &AgentHandler{agent: agent, sessionID: sessionID}
}

// Chat 多轮对话，模型可调用已注册工具
// @Summary 对话助手
// @Tags Agent
// @Accept json
// @Produce json
// @Param request body assistant.ChatRequest true "对话消息"
// @Success 200 {object} response.APIResponse{data=assistant.ChatResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /api/agent [post]
func (h *AgentHandler) Chat(c *gin.Context) {
	if h.agent == nil {
		response.Fail(c, http.StatusServiceUnavailable, "agent_disabled", "Chat model is not configured")
		return
	}

	var req assistant.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" && h.sessionID != nil {
		req.SessionID = h.sessionID()
	}

	resp, err := h.agent.Chat(c.Request.Context(), req)
	if errors.Is(err, assistant.ErrEmptyConversation) {
		response.Fail(c, http.StatusBadRequest, "empty_conversation", err.Error())
		return
	}
	if err != nil {
		logger.WithContext(c.Request.Context()).Error("对话失败", zap.Error(err))
		response.Fail(c, http.StatusBadGateway, "chat_failed", "The chat model request failed. Please try again.")
		return
	}

	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: resp})
}
