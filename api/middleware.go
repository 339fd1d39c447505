package api

import (
	"net/http"
	"strings"
	"time"

	"careassist/internal/logger"
	middlewarepkg "careassist/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// surfaceOf 按路由前缀归类请求入口
func surfaceOf(path string) string {
	switch {
	case path == "/http" || path == "/sse" || strings.HasPrefix(path, "/mcp"):
		return "transport"
	case strings.HasPrefix(path, "/api/upload"):
		return "upload"
	case strings.HasPrefix(path, "/api/session"):
		return "session"
	case strings.HasPrefix(path, "/api/tools"):
		return "tools"
	case strings.HasPrefix(path, "/api/agent"):
		return "agent"
	case path == "/health" || path == "/ready" || path == "/metrics":
		return "probe"
	}
	return "other"
}

// RequestLogger 请求日志中间件
// 探活请求只记 debug，4xx 记 warn，5xx 记 error
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.Request.URL.Path
		surface := surfaceOf(path)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("request_id", middlewarepkg.GetRequestIDFromGin(c)),
			zap.String("surface", surface),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if sid := c.GetHeader("Mcp-Session-Id"); sid != "" {
			fields = append(fields, zap.String("mcp_session", sid))
		}
		if tool := c.Param("name"); tool != "" && surface == "tools" {
			fields = append(fields, zap.String("tool", tool))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		level := zapcore.InfoLevel
		switch {
		case status >= http.StatusInternalServerError:
			level = zapcore.ErrorLevel
		case status >= http.StatusBadRequest:
			level = zapcore.WarnLevel
		case surface == "probe":
			level = zapcore.DebugLevel
		}
		if ce := logger.Get().Check(level, "HTTP 请求"); ce != nil {
			ce.Write(fields...)
		}
	}
}

// CORS 跨域中间件，允许列表在创建时从环境变量读取一次
// MCP 客户端需要读写 Mcp-Session-Id 与 Mcp-Protocol-Version
func CORS() gin.HandlerFunc {
	allowedOrigins := getEnvList("CORS_ALLOW_ORIGINS")
	allowedHeaders := strings.Join(defaultIfEmpty(
		getEnvList("CORS_ALLOW_HEADERS"),
		[]string{
			"Content-Type", "Content-Length", "Accept", "Origin", "Cache-Control",
			"X-Requested-With", "X-Request-ID", "Mcp-Session-Id", "Mcp-Protocol-Version",
		},
	), ", ")
	allowedMethods := strings.Join(defaultIfEmpty(
		getEnvList("CORS_ALLOW_METHODS"),
		[]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	), ", ")

	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case len(allowedOrigins) == 0:
			h.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && stringInSlice(origin, allowedOrigins):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Headers", allowedHeaders)
		h.Set("Access-Control-Allow-Methods", allowedMethods)
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, Mcp-Session-Id")
		h.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
