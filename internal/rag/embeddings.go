package rag

import "context"

// EmbeddingProvider 抽象向量模型服务，入库与查询必须使用同一模型
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
	GetProviderName() string
}
