package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"careassist/internal/logger"
	"careassist/internal/rag"
	"careassist/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Ingester 入库流水线
type Ingester interface {
	Ingest(ctx context.Context, doc rag.Document) (*rag.IngestResult, error)
}

// IngestHandler 文件入库任务处理器
type IngestHandler struct {
	pipelines map[string]Ingester
	logger    *zap.Logger
}

// NewIngestHandler 按目标注册流水线，nil 流水线会被忽略
func NewIngestHandler(pipelines map[string]Ingester, logger *zap.Logger) *IngestHandler {
	registered := make(map[string]Ingester, len(pipelines))
	for target, p := range pipelines {
		if p != nil {
			registered[target] = p
		}
	}
	return &IngestHandler{pipelines: registered, logger: logger}
}

// HandleIngestFile 处理文件入库任务
func (h *IngestHandler) HandleIngestFile(ctx context.Context, t *asynq.Task) error {
	var p tasks.IngestFilePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	target := p.Target
	if target == "" {
		target = tasks.TargetStore
	}
	pipeline, ok := h.pipelines[target]
	if !ok {
		return fmt.Errorf("未配置入库目标 %q: %w", target, asynq.SkipRetry)
	}

	if p.RequestID != "" {
		ctx = logger.WithRequestID(ctx, p.RequestID)
	}
	log := h.logger.With(
		zap.String("filename", p.Filename),
		zap.String("target", target),
		zap.String("request_id", p.RequestID),
	)
	log.Info("开始处理入库任务", zap.Int("bytes", len(p.Content)))

	result, err := pipeline.Ingest(ctx, rag.Document{
		Name:     p.Filename,
		Content:  p.Content,
		MimeType: p.MimeType,
	})
	if err != nil {
		log.Error("入库任务失败",
			zap.String("step", string(rag.StepOf(err))),
			zap.String("reason", string(rag.ReasonOf(err))),
			zap.Error(err),
		)
		if !Retryable(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	out := tasks.IngestFileResult{
		Filename:          result.Filename,
		Chunks:            result.Chunks,
		Characters:        result.Characters,
		Backend:           result.Backend,
		ProcessingSeconds: result.ProcessingSeconds(),
	}
	if rw := t.ResultWriter(); rw != nil {
		data, _ := json.Marshal(out)
		if _, err := rw.Write(data); err != nil {
			log.Warn("写入任务结果失败", zap.Error(err))
		}
	}

	log.Info("入库任务完成", zap.Int("chunks", result.Chunks), zap.String("backend", result.Backend))
	return nil
}

// Retryable 格式、输入与凭证错误重试无意义
func Retryable(err error) bool {
	switch rag.ReasonOf(err) {
	case rag.ReasonFormat, rag.ReasonInput, rag.ReasonCredential:
		return false
	}
	return true
}
