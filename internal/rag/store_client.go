package rag

import (
	"context"
	"errors"
	"fmt"

	"careassist/internal/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StoreClientOptions 批量与限速参数
type StoreClientOptions struct {
	EmbedBatchSize  int     // 每次向量化请求的文本数，默认 20
	UpsertBatchSize int     // 每次写入的向量数，默认 100
	UpsertRPS       float64 // 写入批次的速率上限，0 不限速
	Logger          *zap.Logger
}

// StoreClient 组合向量化与向量库写入/检索
// 所有批次顺序执行，任一批失败立即终止，不留下静默残缺的索引
type StoreClient struct {
	embedder    EmbeddingProvider
	store       VectorStore
	embedBatch  int
	upsertBatch int
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewStoreClient 创建向量库客户端
func NewStoreClient(embedder EmbeddingProvider, store VectorStore, opts StoreClientOptions) *StoreClient {
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 20
	}
	if opts.UpsertBatchSize <= 0 {
		opts.UpsertBatchSize = 100
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if opts.UpsertRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.UpsertRPS), 1)
	}
	return &StoreClient{
		embedder:    embedder,
		store:       store,
		embedBatch:  opts.EmbedBatchSize,
		upsertBatch: opts.UpsertBatchSize,
		limiter:     limiter,
		logger:      opts.Logger,
	}
}

// Name 底层向量库名称
func (c *StoreClient) Name() string { return c.store.Name() }

// Embed 分批向量化，输出顺序与输入一致
func (c *StoreClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	total := (len(texts) + c.embedBatch - 1) / c.embedBatch
	for i := 0; i < len(texts); i += c.embedBatch {
		end := min(i+c.embedBatch, len(texts))
		vectors, err := c.embedder.EmbedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, withStep(StepEmbed, KindEmbedding,
				fmt.Errorf("向量化批次 %d/%d 失败: %w", i/c.embedBatch+1, total, err))
		}
		if len(vectors) != end-i {
			return nil, withStep(StepEmbed, KindEmbedding,
				fmt.Errorf("向量数量不匹配: 期望%d, 实际%d", end-i, len(vectors)))
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Upsert 分批写入，批次之间按限速等待
func (c *StoreClient) Upsert(ctx context.Context, records []VectorRecord) error {
	total := (len(records) + c.upsertBatch - 1) / c.upsertBatch
	for i := 0; i < len(records); i += c.upsertBatch {
		batchNo := i/c.upsertBatch + 1
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return withStep(StepUpsert, KindUpsert, err)
			}
		}
		end := min(i+c.upsertBatch, len(records))
		if err := c.store.Upsert(ctx, records[i:end]); err != nil {
			c.logger.Error("写入向量批次失败，终止剩余批次",
				zap.String("backend", c.store.Name()),
				zap.Int("batch", batchNo),
				zap.Int("batches", total),
				zap.Error(err))
			return withStep(StepUpsert, KindUpsert, fmt.Errorf("写入批次 %d/%d 失败: %w", batchNo, total, err))
		}
		metrics.ChunksUpserted.WithLabelValues(c.store.Name()).Add(float64(end - i))
		c.logger.Debug("写入向量批次完成", zap.Int("batch", batchNo), zap.Int("batches", total))
	}
	return nil
}

// IndexChunks 向量化并写入一份文档的全部分块，返回写入数量
func (c *StoreClient) IndexChunks(ctx context.Context, chunks []Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := c.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}
	records := make([]VectorRecord, len(chunks))
	for i, ch := range chunks {
		records[i] = VectorRecord{ID: ch.ID, Values: vectors[i], Text: ch.Text, Metadata: ch.Metadata}
	}
	if err := c.Upsert(ctx, records); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Query 向量化问题后检索 topK
func (c *StoreClient) Query(ctx context.Context, question string, topK int) ([]Match, error) {
	vectors, err := c.Embed(ctx, []string{question})
	if err != nil {
		return nil, err
	}
	matches, err := c.store.Query(ctx, vectors[0], topK)
	if err != nil {
		var re *Error
		if errors.As(err, &re) {
			return nil, err
		}
		return nil, NewError(KindRetrieval, c.store.Name(), err)
	}
	return matches, nil
}

// Search 实现 SearchBackend
func (c *StoreClient) Search(ctx context.Context, question string, topK int) ([]Match, error) {
	return c.Query(ctx, question, topK)
}

// ClearAll 清空向量库，空库上调用也不报错
func (c *StoreClient) ClearAll(ctx context.Context) error {
	return c.store.DeleteAll(ctx)
}

// ClearByFilename 只删除指定文件的向量
func (c *StoreClient) ClearByFilename(ctx context.Context, filename string) error {
	if filename == "" {
		return NewError(KindValidation, "clear by filename", fmt.Errorf("filename 不能为空"))
	}
	return c.store.DeleteByFilter(ctx, Filter{"filename": filename})
}

// Count 实时读取向量总数
func (c *StoreClient) Count(ctx context.Context) (int64, error) {
	stats, err := c.store.DescribeStats(ctx)
	if err != nil {
		return 0, err
	}
	return stats.TotalVectorCount, nil
}
