package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"careassist/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClearMethod 启动时的清理策略
type ClearMethod string

const (
	ClearAll       ClearMethod = "all"
	ClearNone      ClearMethod = "none"
	ClearBySession ClearMethod = "by-session"
	ClearByAge     ClearMethod = "by-age"
)

// Config 会话配置
type Config struct {
	ClearOnStart bool        `json:"clearOnStart"`
	ClearMethod  ClearMethod `json:"clearMethod"`
}

// DefaultConfig 启动时清空全部文档
func DefaultConfig() Config {
	return Config{ClearOnStart: true, ClearMethod: ClearAll}
}

// Validate 只接受已实现的策略
func (c Config) Validate() error {
	switch c.ClearMethod {
	case ClearAll, ClearNone:
		return nil
	case ClearBySession, ClearByAge:
		return &ValidationError{Field: "clearMethod", Message: fmt.Sprintf("清理策略 %q 尚未实现", c.ClearMethod)}
	case "":
		return &ValidationError{Field: "clearMethod", Message: "清理策略不能为空"}
	default:
		return &ValidationError{Field: "clearMethod", Message: fmt.Sprintf("未知清理策略 %q", c.ClearMethod)}
	}
}

// ValidationError 配置校验失败
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Info 当前会话信息
type Info struct {
	SessionID     string `json:"sessionId"`
	DocumentCount int64  `json:"documentCount"`
	Config        Config `json:"config"`
	UptimeMs      int64  `json:"uptimeMs"`
}

// Store 会话需要的向量库能力
type Store interface {
	ClearAll(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// Manager 进程级会话，由启动代码显式创建并注入
type Manager struct {
	store  Store
	logger *zap.Logger
	id     string

	mu  sync.RWMutex
	cfg Config

	once       sync.Once
	startupErr error

	now func() time.Time
}

// NewManager 创建会话管理器，配置非法时返回错误
func NewManager(store Store, cfg Config, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{store: store, cfg: cfg, logger: logger, now: time.Now}
	m.id = NewSessionID(m.now())
	logger.Info("会话管理器已创建",
		zap.String("session_id", m.id),
		zap.Bool("clear_on_start", cfg.ClearOnStart),
		zap.String("clear_method", string(cfg.ClearMethod)))
	return m, nil
}

// NewSessionID 生成 session_<毫秒时间戳>_<9 位随机串>
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), suffix)
}

// CreatedAt 从会话 ID 中还原创建时间
func CreatedAt(sessionID string) (time.Time, error) {
	parts := strings.Split(sessionID, "_")
	if len(parts) != 3 || parts[0] != "session" {
		return time.Time{}, fmt.Errorf("非法的会话 ID: %s", sessionID)
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("非法的会话 ID 时间戳: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// ID 会话 ID
func (m *Manager) ID() string { return m.id }

// Config 当前配置
func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Startup 进程启动时执行一次初始化，重复调用返回首次的结果
func (m *Manager) Startup(ctx context.Context) error {
	m.once.Do(func() {
		m.startupErr = m.Initialize(ctx, nil)
	})
	return m.startupErr
}

// Initialize 按配置执行启动清理，cfg 非空时先替换配置
func (m *Manager) Initialize(ctx context.Context, cfg *Config) error {
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return err
		}
		m.mu.Lock()
		m.cfg = *cfg
		m.mu.Unlock()
	}
	current := m.Config()

	if current.ClearOnStart {
		switch current.ClearMethod {
		case ClearAll:
			if err := m.clearAll(ctx, "startup"); err != nil {
				return fmt.Errorf("会话初始化失败: %w", err)
			}
		case ClearNone:
			m.logger.Info("启动清理已关闭")
		}
	}

	count, err := m.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("会话初始化失败: %w", err)
	}
	m.logger.Info("会话初始化完成", zap.String("session_id", m.id), zap.Int64("documents", count))
	return nil
}

// Info 实时读取文档数量
func (m *Manager) Info(ctx context.Context) (*Info, error) {
	count, err := m.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("读取文档数量失败: %w", err)
	}
	var uptime int64
	if created, err := CreatedAt(m.id); err == nil {
		uptime = m.now().Sub(created).Milliseconds()
	}
	return &Info{
		SessionID:     m.id,
		DocumentCount: count,
		Config:        m.Config(),
		UptimeMs:      uptime,
	}, nil
}

// ClearCurrent 手动清理，总是清空全部文档
func (m *Manager) ClearCurrent(ctx context.Context) error {
	return m.clearAll(ctx, "manual")
}

func (m *Manager) clearAll(ctx context.Context, trigger string) error {
	before, err := m.store.Count(ctx)
	if err != nil {
		m.logger.Warn("读取清理前文档数量失败", zap.Error(err))
	}
	if err := m.store.ClearAll(ctx); err != nil {
		return err
	}
	metrics.SessionClears.WithLabelValues(trigger).Inc()
	m.logger.Info("已清空全部文档",
		zap.String("session_id", m.id),
		zap.String("trigger", trigger),
		zap.Int64("before", before))
	return nil
}
