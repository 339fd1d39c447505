package rag

import "context"

// VectorStore 向量后端的最小能力集合（Pinecone、Qdrant、pgvector）
// DeleteAll 在空索引上调用必须是无操作
type VectorStore interface {
	Name() string
	Upsert(ctx context.Context, records []VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
	DescribeStats(ctx context.Context) (*StoreStats, error)
	DeleteAll(ctx context.Context) error
	DeleteByFilter(ctx context.Context, filter Filter) error
}

// SearchBackend 检索编排使用的后端能力，按问题文本检索
type SearchBackend interface {
	Name() string
	Search(ctx context.Context, question string, topK int) ([]Match, error)
}
