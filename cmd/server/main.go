package main

// @title Healthcare AI Assistant API
// @version 1.0
// @description 医疗文档入库、检索与工具调用服务
// @BasePath /
// @schemes http https

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"careassist/api"
	"careassist/internal/bootstrap"
	"careassist/internal/logger"
	"careassist/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	bootstrap.LoadEnvFile(false)

	// 1. 配置、日志、数据库、Redis 与组件
	app, err := bootstrap.Open(context.Background(), bootstrap.Options{})
	if err != nil {
		fmt.Printf("启动失败: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	cfg := app.Config
	logger.Info("应用启动中...",
		zap.String("env", app.Env),
		zap.String("mode", cfg.Server.Mode),
	)

	// 2. 启动时按会话配置清理向量库
	if err := app.Container.Session.Startup(context.Background()); err != nil {
		logger.Warn("启动清理失败，继续使用已有文档", zap.Error(err))
	}

	// 3. 设置 Gin 模式并创建路由
	gin.SetMode(cfg.Server.Mode)
	router := api.SetupRouter(app.Container, api.NewHandlers(app.Container))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// 4. 启动服务器（goroutine）
	go func() {
		logger.Info("HTTP 服务器启动",
			zap.Int("port", cfg.Server.Port),
			zap.String("session_id", app.Container.Session.ID()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 5. 异步入库 Worker（需要 Redis）
	workerServer := app.Container.Worker
	if workerServer != nil {
		if err := workerServer.Start(); err != nil {
			logger.Fatal("Worker 服务器启动失败", zap.Error(err))
		}
	}

	gracefulShutdown(server, workerServer)
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *http.Server, workerServer *worker.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if workerServer != nil {
		workerServer.Shutdown()
	}

	logger.Info("服务器已安全关闭")
}
