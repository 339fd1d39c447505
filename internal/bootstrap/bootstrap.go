package bootstrap

import (
	"context"
	"fmt"
	"os"

	"careassist/api"
	"careassist/internal/config"
	"careassist/internal/infra"
	"careassist/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Options 启动参数
type Options struct {
	Env        string // 为空时读取 APP_ENV，默认 dev
	ConfigPath string
	LogLevel   string // 覆盖配置中的日志级别
}

// App 已初始化的基础设施与组件容器
type App struct {
	Env       string
	Config    *config.Config
	DB        *gorm.DB
	Redis     *redis.Client
	Container *api.AppContainer
}

// Open 加载配置并初始化日志、数据库、Redis 与组件容器
func Open(ctx context.Context, opts Options) (*App, error) {
	env := opts.Env
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	if env == "" {
		env = "dev"
	}

	cfg, err := config.Load(env, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}

	level := cfg.Log.Level
	if opts.LogLevel != "" {
		level = opts.LogLevel
	}
	if err := logger.Init(level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	app := &App{Env: env, Config: cfg}

	// 数据库可选，只用于工具执行记录与 pgvector
	if cfg.Database.Driver != "" {
		app.DB, err = infra.InitDatabase(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("初始化数据库失败: %w", err)
		}
	} else {
		logger.Info("未配置数据库，工具执行记录已关闭")
	}

	app.Redis, err = infra.InitRedis(&cfg.Redis)
	if err != nil {
		// Redis 不可用时降级为本地缓存与本地限流
		logger.Warn("Redis 不可用，已降级为本地实现", zap.Error(err))
		app.Redis = nil
		cfg.Worker.Enabled = false
	}

	app.Container, err = api.BuildContainer(ctx, cfg, app.DB, app.Redis)
	if err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

// Close 释放连接
func (a *App) Close() {
	if a.Container != nil {
		if err := a.Container.Close(); err != nil {
			logger.Error("关闭队列客户端失败", zap.Error(err))
		}
	}
	if err := infra.CloseRedis(); err != nil {
		logger.Error("Redis 关闭异常", zap.Error(err))
	}
	if err := infra.CloseDatabase(); err != nil {
		logger.Error("数据库关闭异常", zap.Error(err))
	}
	_ = logger.Sync()
}
