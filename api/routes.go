package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	api := router.Group("/api")

	registerUploadRoutes(api, handlers)
	registerSessionRoutes(api, handlers)
	registerToolRoutes(api, handlers)

	// 对话助手
	api.POST("/agent", handlers.Agent.Chat)
}

// registerUploadRoutes 文档上传
func registerUploadRoutes(api *gin.RouterGroup, h *Handlers) {
	api.POST("/upload", h.Upload.Upload)
	api.POST("/upload-vectorize", h.Upload.UploadVectorize)
	api.GET("/upload/tasks/:id", h.Upload.TaskStatus)
}

// registerSessionRoutes 会话管理
func registerSessionRoutes(api *gin.RouterGroup, h *Handlers) {
	sessions := api.Group("/session")
	{
		sessions.GET("", h.Session.GetInfo)
		sessions.POST("", h.Session.Action)
		sessions.DELETE("", h.Session.Clear)
	}
}

// registerToolRoutes 工具管理
func registerToolRoutes(api *gin.RouterGroup, h *Handlers) {
	toolsGroup := api.Group("/tools")
	{
		toolsGroup.GET("", h.Tools.ListTools)
		toolsGroup.GET("/executions", h.Tools.ListExecutions)
		toolsGroup.GET("/:name", h.Tools.GetTool)
		toolsGroup.POST("/:name/execute", h.Tools.ExecuteTool)
	}
}
