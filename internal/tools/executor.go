package tools

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"careassist/internal/logger"
	"careassist/internal/metrics"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DispatcherOptions 分发器配置
type DispatcherOptions struct {
	DefaultTimeout time.Duration
	Logger         *zap.Logger
}

// Dispatcher 工具分发器
// 未知工具、参数错误、处理器错误与 panic 都转换为 Success=false 的 Result
type Dispatcher struct {
	registry *ToolRegistry
	db       *gorm.DB
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher 创建分发器，db 为 nil 时不记录执行日志
func NewDispatcher(registry *ToolRegistry, db *gorm.DB, opts DispatcherOptions) *Dispatcher {
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: registry,
		db:       db,
		timeout:  opts.DefaultTimeout,
		logger:   opts.Logger,
	}
}

// ExecutionRequest 工具执行请求
type ExecutionRequest struct {
	ToolName  string         // 工具名称
	Input     map[string]any // 输入参数
	Source    string         // 调用来源
	SessionID string         // 会话 ID（可选）
}

// Registry 底层注册表
func (d *Dispatcher) Registry() *ToolRegistry { return d.registry }

// Dispatch 以名称和参数调用工具
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]any) Result {
	return d.Execute(ctx, &ExecutionRequest{ToolName: name, Input: args})
}

// Execute 执行工具
func (d *Dispatcher) Execute(ctx context.Context, req *ExecutionRequest) (result Result) {
	ctx, span := otel.Tracer("careassist/tools").Start(ctx, "tools.dispatch")
	span.SetAttributes(attribute.String("tool.name", req.ToolName), attribute.String("tool.source", req.Source))
	defer span.End()

	log := logger.WithContext(ctx)
	if req.Input == nil {
		req.Input = map[string]any{}
	}

	// 1. 查找工具
	handler, exists := d.registry.Get(req.ToolName)
	def, _ := d.registry.GetDefinition(req.ToolName)
	if !exists || def.Status != "active" {
		metrics.ToolCallsTotal.WithLabelValues("unknown", "unknown_tool").Inc()
		span.SetStatus(codes.Error, "unknown tool")
		log.Warn("未知工具", zap.String("tool", req.ToolName), zap.String("source", req.Source))
		return Result{
			Success:        false,
			Error:          fmt.Sprintf("Unknown tool: %s", req.ToolName),
			AvailableTools: d.registry.Names(),
		}
	}

	// 2. 验证参数
	if err := handler.Validate(req.Input); err != nil {
		metrics.ToolCallsTotal.WithLabelValues(req.ToolName, "invalid").Inc()
		return Result{Success: false, Error: fmt.Sprintf("Invalid arguments for %s: %v", req.ToolName, err)}
	}

	// 3. 创建执行记录
	execution := d.startRecord(ctx, req)

	// 4. 执行工具（带超时）
	timeout := d.timeout
	if def.Timeout > 0 {
		timeout = time.Duration(def.Timeout) * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	output, err := d.invoke(execCtx, handler, req.Input)
	duration := time.Since(start)
	metrics.ToolCallDuration.WithLabelValues(req.ToolName).Observe(duration.Seconds())

	if err != nil {
		msg := err.Error()
		if def.ErrorPrefix != "" {
			msg = def.ErrorPrefix + ": " + msg
		}
		result = Result{Success: false, Error: msg}
		metrics.ToolCallsTotal.WithLabelValues(req.ToolName, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "tool failed")
		log.Warn("工具执行失败", zap.String("tool", req.ToolName), zap.Duration("duration", duration), zap.Error(err))
	} else {
		result = Result{Success: true, Data: output}
		metrics.ToolCallsTotal.WithLabelValues(req.ToolName, "success").Inc()
		log.Info("工具执行完成", zap.String("tool", req.ToolName), zap.String("source", req.Source), zap.Duration("duration", duration))
	}

	// 5. 更新执行记录
	d.finishRecord(execution, result, duration)
	return result
}

// invoke 调用处理器并把 panic 转成错误
func (d *Dispatcher) invoke(ctx context.Context, handler ToolHandler, input map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("工具处理器 panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			out, err = nil, fmt.Errorf("internal tool error: %v", r)
		}
	}()
	return handler.Execute(ctx, input)
}

func (d *Dispatcher) startRecord(ctx context.Context, req *ExecutionRequest) *ToolExecution {
	if d.db == nil {
		return nil
	}
	execution := &ToolExecution{
		ID:        uuid.New().String(),
		ToolName:  req.ToolName,
		Source:    req.Source,
		SessionID: req.SessionID,
		RequestID: logger.GetRequestID(ctx),
		Input:     redactInput(req.Input),
		Status:    "running",
		StartedAt: time.Now(),
	}
	if err := d.db.WithContext(ctx).Create(execution).Error; err != nil {
		d.logger.Warn("创建工具执行记录失败", zap.String("tool", req.ToolName), zap.Error(err))
		return nil
	}
	return execution
}

func (d *Dispatcher) finishRecord(execution *ToolExecution, result Result, duration time.Duration) {
	if execution == nil {
		return
	}
	now := time.Now()
	execution.CompletedAt = &now
	execution.Duration = duration.Milliseconds()
	if result.Success {
		execution.Status = "success"
		execution.Output = truncate(result.Text(), 4000)
	} else {
		execution.Status = "failed"
		msg := result.Error
		execution.ErrorMessage = &msg
	}
	// 请求上下文可能已取消，记录写入使用独立上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.db.WithContext(ctx).Save(execution).Error; err != nil {
		d.logger.Warn("更新工具执行记录失败", zap.String("id", execution.ID), zap.Error(err))
	}
}

// History 最近的执行记录
func (d *Dispatcher) History(ctx context.Context, limit int) ([]ToolExecution, error) {
	if d.db == nil {
		return []ToolExecution{}, nil
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []ToolExecution
	err := d.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("查询工具执行记录失败: %w", err)
	}
	return rows, nil
}

// Migrate 创建执行记录表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&ToolExecution{})
}

// redactInput 上传内容只记录长度
func redactInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		if s, ok := v.(string); ok && len(s) > 512 {
			out[k] = fmt.Sprintf("<%d bytes>", len(s))
			continue
		}
		out[k] = v
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
