package rag

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"careassist/pkg/httputil"
)

// PineconeOptions Pinecone 索引配置
type PineconeOptions struct {
	APIKey     string
	IndexHost  string
	Namespace  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// PineconeStore 基于 Pinecone 数据面 HTTP API 的向量存储
type PineconeStore struct {
	client    *httputil.Client
	namespace string
}

// NewPineconeStore 创建 Pinecone 向量存储
func NewPineconeStore(opts PineconeOptions) (*PineconeStore, error) {
	host := strings.TrimSpace(opts.IndexHost)
	if host == "" {
		return nil, fmt.Errorf("pinecone index host 不能为空")
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("pinecone api key 不能为空")
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := httputil.NewClient(
		httputil.WithHTTPClient(opts.HTTPClient),
		httputil.WithBaseURL(host),
		httputil.WithHeaders(map[string]string{
			"Api-Key":                opts.APIKey,
			"X-Pinecone-API-Version": "2024-07",
		}),
		httputil.WithRetries(1),
	)
	if opts.HTTPClient == nil {
		httputil.WithTimeout(timeout)(client)
	}

	return &PineconeStore{client: client, namespace: opts.Namespace}, nil
}

// Name 后端名称
func (s *PineconeStore) Name() string { return "pinecone" }

// Upsert 写入一批向量，单批大小由调用方控制（Pinecone 建议不超过 100）
func (s *PineconeStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]pineconeVector, len(records))
	for i, r := range records {
		vectors[i] = pineconeVector{ID: r.ID, Values: r.Values, Metadata: r.Metadata.ToMap(r.Text)}
	}

	var resp struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	req := pineconeUpsertRequest{Vectors: vectors, Namespace: s.namespace}
	if err := s.client.PostJSON(ctx, "/vectors/upsert", req, &resp); err != nil {
		return NewError(KindUpsert, "pinecone upsert", err)
	}
	return nil
}

// Query 相似度检索
func (s *PineconeStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, NewError(KindRetrieval, "pinecone query", fmt.Errorf("查询向量不能为空"))
	}
	if topK <= 0 {
		topK = 5
	}

	req := pineconeQueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       s.namespace,
	}
	var resp pineconeQueryResponse
	if err := s.client.PostJSON(ctx, "/query", req, &resp); err != nil {
		return nil, NewError(KindRetrieval, "pinecone query", err)
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		meta, text := MetadataFromMap(m.Metadata)
		matches = append(matches, Match{
			ID:       m.ID,
			Score:    m.Score,
			Text:     text,
			URL:      meta.Source,
			Metadata: meta,
		})
	}
	return matches, nil
}

// DescribeStats 查询向量总数，配置了 namespace 时只统计该 namespace
func (s *PineconeStore) DescribeStats(ctx context.Context) (*StoreStats, error) {
	var resp struct {
		TotalVectorCount int64 `json:"totalVectorCount"`
		Namespaces       map[string]struct {
			VectorCount int64 `json:"vectorCount"`
		} `json:"namespaces"`
	}
	if err := s.client.PostJSON(ctx, "/describe_index_stats", map[string]any{}, &resp); err != nil {
		return nil, NewError(KindRetrieval, "pinecone describe_index_stats", err)
	}
	if s.namespace != "" {
		return &StoreStats{TotalVectorCount: resp.Namespaces[s.namespace].VectorCount}, nil
	}
	return &StoreStats{TotalVectorCount: resp.TotalVectorCount}, nil
}

// DeleteAll 清空索引；namespace 不存在时 Pinecone 返回 404，视为已清空
func (s *PineconeStore) DeleteAll(ctx context.Context) error {
	return s.delete(ctx, pineconeDeleteRequest{DeleteAll: true, Namespace: s.namespace})
}

// DeleteByFilter 按元数据等值条件删除
func (s *PineconeStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	if len(filter) == 0 {
		return NewError(KindValidation, "pinecone delete", fmt.Errorf("过滤条件不能为空"))
	}
	cond := make(map[string]any, len(filter))
	for k, v := range filter {
		cond[k] = map[string]string{"$eq": v}
	}
	return s.delete(ctx, pineconeDeleteRequest{Filter: cond, Namespace: s.namespace})
}

func (s *PineconeStore) delete(ctx context.Context, req pineconeDeleteRequest) error {
	err := s.client.PostJSON(ctx, "/vectors/delete", req, nil)
	if err != nil && httputil.StatusCode(err) == http.StatusNotFound {
		return nil
	}
	if err != nil {
		return NewError(KindUpsert, "pinecone delete", err)
	}
	return nil
}

// --- Pinecone API payloads ---

type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type pineconeUpsertRequest struct {
	Vectors   []pineconeVector `json:"vectors"`
	Namespace string           `json:"namespace,omitempty"`
}

type pineconeQueryRequest struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

type pineconeDeleteRequest struct {
	IDs       []string       `json:"ids,omitempty"`
	DeleteAll bool           `json:"deleteAll,omitempty"`
	Filter    map[string]any `json:"filter,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
}
