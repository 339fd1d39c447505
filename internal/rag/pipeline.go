package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"careassist/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ChunkStrategy 分块策略
type ChunkStrategy string

const (
	// StrategySlidingWindow 固定窗口加重叠，用于自建向量库
	StrategySlidingWindow ChunkStrategy = "sliding_window"
	// StrategyWords 按空白分词累积，用于 Vectorize 上传
	StrategyWords ChunkStrategy = "words"
)

// Extractor 从原始字节中提取纯文本
type Extractor interface {
	Extract(filename, mimeType string, data []byte) (string, error)
}

// Indexer 把分块写入检索后端
type Indexer interface {
	Name() string
	IndexChunks(ctx context.Context, chunks []Chunk) (int, error)
}

// PipelineOptions 入库流水线配置
type PipelineOptions struct {
	MaxBytes int64
	Timeout  time.Duration
	Strategy ChunkStrategy
	Logger   *zap.Logger
}

// IngestResult 入库结果
type IngestResult struct {
	Filename   string        `json:"filename"`
	Chunks     int           `json:"chunks"`
	Characters int           `json:"characters"`
	Duration   time.Duration `json:"-"`
	Backend    string        `json:"backend"`
}

// ProcessingSeconds 四舍五入后的耗时秒数
func (r *IngestResult) ProcessingSeconds() int64 {
	return int64(math.Round(r.Duration.Seconds()))
}

// Pipeline 文档入库流水线：校验 → 提取 → 分块 → 向量化写入
type Pipeline struct {
	extractor Extractor
	chunker   *Chunker
	indexer   Indexer
	opts      PipelineOptions
	logger    *zap.Logger
}

// NewPipeline 创建入库流水线
func NewPipeline(extractor Extractor, chunker *Chunker, indexer Indexer, opts PipelineOptions) *Pipeline {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 * 1024 * 1024
	}
	if opts.Strategy == "" {
		opts.Strategy = StrategySlidingWindow
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Pipeline{
		extractor: extractor,
		chunker:   chunker,
		indexer:   indexer,
		opts:      opts,
		logger:    opts.Logger,
	}
}

// MaxBytes 单文件大小上限
func (p *Pipeline) MaxBytes() int64 { return p.opts.MaxBytes }

// Backend 写入目标名称
func (p *Pipeline) Backend() string { return p.indexer.Name() }

// Ingest 处理一份文档，失败时返回带步骤标签的 *Error
// 已写入的批次不会回滚，同名文件重传会覆盖
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*IngestResult, error) {
	ctx, span := otel.Tracer("careassist/rag").Start(ctx, "rag.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("rag.filename", doc.Name),
		attribute.Int("rag.bytes", len(doc.Content)),
		attribute.String("rag.backend", p.indexer.Name()),
	)

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := p.run(ctx, doc)
	elapsed := time.Since(start)
	metrics.IngestionDuration.Observe(elapsed.Seconds())

	if err != nil {
		e := withStep(StepValidate, KindValidation, err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.Reason = ReasonTimeout
		}
		metrics.IngestionsTotal.WithLabelValues(string(e.Step)).Inc()
		span.RecordError(e)
		span.SetStatus(codes.Error, string(e.Step))
		p.logger.Error("文档入库失败",
			zap.String("filename", doc.Name),
			zap.String("step", string(e.Step)),
			zap.String("reason", string(e.Reason)),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return nil, e
	}

	result.Duration = elapsed
	metrics.IngestionsTotal.WithLabelValues(string(StepDone)).Inc()
	p.logger.Info("文档入库完成",
		zap.String("filename", doc.Name),
		zap.String("backend", result.Backend),
		zap.Int("chunks", result.Chunks),
		zap.Int("characters", result.Characters),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, doc Document) (*IngestResult, error) {
	name := strings.TrimSpace(doc.Name)
	if name == "" {
		return nil, withStep(StepValidate, KindValidation, fmt.Errorf("文件名不能为空"))
	}
	if int64(len(doc.Content)) > p.opts.MaxBytes {
		return nil, withStep(StepValidate, KindValidation,
			fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, len(doc.Content), p.opts.MaxBytes))
	}

	text, err := p.extractor.Extract(name, doc.MimeType, doc.Content)
	if err != nil {
		return nil, withStep(StepExtract, KindExtraction, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, withStep(StepExtract, KindExtraction, ErrEmptyText)
	}

	var chunks []Chunk
	switch p.opts.Strategy {
	case StrategyWords:
		chunks = p.chunker.Words(text, name)
	default:
		chunks = p.chunker.SlidingWindow(text, name)
	}
	if len(chunks) == 0 {
		return nil, withStep(StepChunk, KindChunking, ErrEmptyText)
	}
	if err := ValidateChunks(chunks); err != nil {
		return nil, withStep(StepChunk, KindChunking, err)
	}
	p.logger.Debug("分块完成", zap.String("filename", name), zap.Int("chunks", len(chunks)))

	if err := ctx.Err(); err != nil {
		return nil, withStep(StepEmbed, KindEmbedding, err)
	}
	n, err := p.indexer.IndexChunks(ctx, chunks)
	if err != nil {
		return nil, withStep(StepUpsert, KindUpsert, err)
	}

	return &IngestResult{
		Filename:   name,
		Chunks:     n,
		Characters: utf8.RuneCountInString(text),
		Backend:    p.indexer.Name(),
	}, nil
}
