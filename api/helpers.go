package api

import (
	"net/http"
	"os"
	"strings"

	"careassist/internal/infra"

	"github.com/gin-gonic/gin"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string   `json:"status"`
	Reason   string   `json:"reason,omitempty"`
	Database string   `json:"database,omitempty"`
	Redis    string   `json:"redis,omitempty"`
	Backends []string `json:"backends,omitempty"`
	Tools    int      `json:"tools"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:  "healthy",
			Service: "careassist",
		})
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Description 包含数据库与 Redis 连通性结果，用于判断可接收请求
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(container *AppContainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := ReadinessResponse{
			Status:   "ready",
			Database: "disabled",
			Redis:    "disabled",
			Backends: container.Retrieval.Backends(),
			Tools:    container.Registry.Count(),
		}

		if container.DB != nil {
			if err := infra.HealthCheck(); err != nil {
				resp.Status = "not_ready"
				resp.Reason = "database ping failed"
				c.JSON(http.StatusServiceUnavailable, resp)
				return
			}
			resp.Database = "connected"
		}

		if container.Redis != nil {
			if err := infra.HealthCheckRedis(c.Request.Context()); err != nil {
				resp.Status = "not_ready"
				resp.Reason = "redis ping failed"
				c.JSON(http.StatusServiceUnavailable, resp)
				return
			}
			resp.Redis = "connected"
		}

		c.JSON(http.StatusOK, resp)
	}
}

// --- 环境变量辅助函数 ---

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	var res []string
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			res = append(res, v)
		}
	}
	return res
}

// stringInSlice 判断字符串是否存在于切片中
func stringInSlice(target string, list []string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}
