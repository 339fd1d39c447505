package api

import (
	"careassist/api/handlers/mcpserver"
	"careassist/internal/logger"
	"careassist/internal/metrics"
	middlewarepkg "careassist/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRouter 设置 Gin 路由
func SetupRouter(container *AppContainer, handlers *Handlers) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS())

	// Prometheus 指标收集中间件
	router.Use(metrics.PrometheusMiddleware())

	// 公开端点
	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(container))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 限流只作用于业务接口
	if limiter := newLimiter(container); limiter != nil {
		router.Use(middlewarepkg.RateLimitMiddleware(limiter, logger.Named("ratelimit")))
	}

	// 工具传输端点：GET 返回元数据，POST 调用工具
	for _, transport := range mcpserver.Transports {
		router.GET("/"+transport, handlers.Transport.Metadata)
		router.POST("/"+transport, handlers.Transport.Call)
	}

	// 标准 MCP Streamable HTTP 端点
	mcpHandler := gin.WrapH(mcpserver.NewHTTPHandler(
		mcpserver.NewServer(container.Registry, container.Dispatcher, container.ServerInfo),
	))
	router.Any("/mcp", mcpHandler)

	RegisterRoutes(router, handlers)
	return router
}

func newLimiter(container *AppContainer) middlewarepkg.Limiter {
	cfg := container.Config.RateLimit
	if !cfg.Enabled {
		return nil
	}
	if container.Redis != nil {
		return middlewarepkg.NewRedisLimiter(container.Redis, cfg.PerMinute)
	}
	return middlewarepkg.NewLocalLimiter(cfg.PerMinute)
}
