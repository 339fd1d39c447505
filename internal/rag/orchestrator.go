package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"careassist/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const (
	// NoDocumentsMessage 检索成功但没有命中
	NoDocumentsMessage = "No relevant documents found."
	// FallbackMessage 所有后端均失败
	FallbackMessage = "Unable to retrieve relevant documents at this time."
)

// FallbackPolicy 决定何时切换到下一个后端
// 出错总会切换；FallbackOnEmpty 为 true 时空结果也切换
type FallbackPolicy struct {
	FallbackOnEmpty bool
}

// OrchestratorOptions 检索编排配置
type OrchestratorOptions struct {
	TopK   int
	Policy FallbackPolicy
	Logger *zap.Logger
}

// Orchestrator 按优先级依次尝试检索后端
type Orchestrator struct {
	backends []SearchBackend
	topK     int
	policy   FallbackPolicy
	logger   *zap.Logger
}

// NewOrchestrator 创建检索编排器，backends 顺序即优先级
func NewOrchestrator(backends []SearchBackend, opts OrchestratorOptions) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Orchestrator{
		backends: backends,
		topK:     opts.TopK,
		policy:   opts.Policy,
		logger:   opts.Logger,
	}
}

// Backends 返回后端名称列表
func (o *Orchestrator) Backends() []string {
	names := make([]string, len(o.backends))
	for i, b := range o.backends {
		names[i] = b.Name()
	}
	return names
}

// Retrieve 检索上下文文档，永不返回错误
// 全部后端失败时返回 FallbackMessage 与空来源
func (o *Orchestrator) Retrieve(ctx context.Context, query string) RetrievalResult {
	ctx, span := otel.Tracer("careassist/rag").Start(ctx, "rag.retrieve")
	defer span.End()
	start := time.Now()
	defer func() { metrics.RetrievalDuration.Observe(time.Since(start).Seconds()) }()

	emptyFrom := ""
	for i, b := range o.backends {
		matches, err := b.Search(ctx, query, o.topK)
		if err != nil {
			metrics.BackendFailures.WithLabelValues(b.Name()).Inc()
			span.RecordError(err)
			o.logger.Warn("检索后端失败，尝试下一个",
				zap.String("backend", b.Name()),
				zap.String("reason", string(ReasonOf(err))),
				zap.Error(err))
			continue
		}
		if len(matches) == 0 && o.policy.FallbackOnEmpty && i < len(o.backends)-1 {
			if emptyFrom == "" {
				emptyFrom = b.Name()
			}
			o.logger.Debug("检索结果为空，尝试下一个后端", zap.String("backend", b.Name()))
			continue
		}
		metrics.RetrievalsTotal.WithLabelValues(b.Name()).Inc()
		span.SetAttributes(attribute.String("rag.backend", b.Name()), attribute.Int("rag.matches", len(matches)))
		return buildResult(matches, b.Name())
	}

	if emptyFrom != "" {
		metrics.RetrievalsTotal.WithLabelValues(emptyFrom).Inc()
		return buildResult(nil, emptyFrom)
	}

	metrics.RetrievalsTotal.WithLabelValues("none").Inc()
	span.SetStatus(codes.Error, "all backends failed")
	o.logger.Error("所有检索后端均不可用", zap.Strings("backends", o.Backends()))
	return RetrievalResult{ContextDocuments: FallbackMessage, Sources: []Source{}}
}

func buildResult(matches []Match, backend string) RetrievalResult {
	if len(matches) == 0 {
		return RetrievalResult{ContextDocuments: NoDocumentsMessage, Sources: []Source{}, Backend: backend}
	}
	blocks := make([]string, 0, len(matches))
	sources := make([]Source, 0, len(matches))
	for n, m := range matches {
		title := MatchTitle(m, n+1)
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", title, m.Text))
		sources = append(sources, Source{
			ID:         m.ID,
			Title:      title,
			Snippet:    m.Text,
			URL:        m.URL,
			Similarity: m.Score,
		})
	}
	return RetrievalResult{
		ContextDocuments: strings.Join(blocks, "\n\n"),
		Sources:          sources,
		Backend:          backend,
	}
}

// MatchTitle 标题优先取 filename，其次 source_display_name、source，最后 "Document n"
func MatchTitle(m Match, n int) string {
	for _, s := range []string{m.Metadata.Filename, m.Metadata.SourceDisplayName, m.Metadata.Source} {
		if s != "" {
			return s
		}
	}
	return fmt.Sprintf("Document %d", n)
}
