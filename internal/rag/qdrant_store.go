package rag

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"careassist/pkg/httputil"

	"github.com/google/uuid"
)

// QdrantOptions 初始化 Qdrant 向量存储的配置
type QdrantOptions struct {
	Endpoint            string
	APIKey              string
	Collection          string
	VectorDimension     int
	Distance            string
	TimeoutSeconds      int
	HTTPClient          *http.Client
	SkipCollectionCheck bool
}

// QdrantStore 基于 Qdrant HTTP API 的向量存储实现
// Qdrant 的点 ID 只接受整数或 UUID，记录 ID 通过 SHA1 UUID 映射，原 ID 存在 payload.record_id
type QdrantStore struct {
	client     *httputil.Client
	collection string
	vectorSize int
	distance   string
	skipEnsure bool

	mu      sync.Mutex
	ensured bool
}

// NewQdrantStore 创建 Qdrant 向量存储实例
func NewQdrantStore(opts QdrantOptions) (*QdrantStore, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(opts.Endpoint), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant endpoint 不能为空")
	}

	collection := opts.Collection
	if collection == "" {
		collection = "careassist"
	}
	vectorSize := opts.VectorDimension
	if vectorSize <= 0 {
		vectorSize = 1536
	}
	distance := opts.Distance
	if distance == "" {
		distance = "Cosine"
	}
	timeout := opts.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}

	headers := map[string]string{}
	if opts.APIKey != "" {
		headers["api-key"] = opts.APIKey
	}
	client := httputil.NewClient(
		httputil.WithHTTPClient(opts.HTTPClient),
		httputil.WithBaseURL(baseURL),
		httputil.WithHeaders(headers),
	)
	if opts.HTTPClient == nil {
		httputil.WithTimeout(time.Duration(timeout) * time.Second)(client)
	}

	return &QdrantStore{
		client:     client,
		collection: collection,
		vectorSize: vectorSize,
		distance:   distance,
		skipEnsure: opts.SkipCollectionCheck,
	}, nil
}

// Name 后端名称
func (s *QdrantStore) Name() string { return "qdrant" }

// PointID 记录 ID 到 Qdrant 点 ID 的确定性映射
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("careassist:"+recordID)).String()
}

// Upsert 写入或更新一批向量
func (s *QdrantStore) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return NewError(KindUpsert, "qdrant ensure collection", err)
	}

	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		if len(r.Values) != s.vectorSize {
			return NewError(KindUpsert, "qdrant upsert",
				fmt.Errorf("向量维度不匹配: 期望 %d 实际 %d", s.vectorSize, len(r.Values)))
		}
		payload := r.Metadata.ToMap(r.Text)
		payload["record_id"] = r.ID
		points = append(points, qdrantPoint{ID: PointID(r.ID), Vector: r.Values, Payload: payload})
	}

	var resp qdrantOperationResponse
	if err := s.client.DoJSON(ctx, http.MethodPut, s.collectionPath("/points?wait=true"), upsertPointsRequest{Points: points}, &resp); err != nil {
		return NewError(KindUpsert, "qdrant upsert", err)
	}
	if resp.Status != "ok" {
		return NewError(KindUpsert, "qdrant upsert", fmt.Errorf("状态 %s", resp.Status))
	}
	return nil
}

// Query 相似度检索
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	if len(vector) == 0 {
		return nil, NewError(KindRetrieval, "qdrant search", fmt.Errorf("查询向量不能为空"))
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, NewError(KindRetrieval, "qdrant ensure collection", err)
	}
	if topK <= 0 {
		topK = 5
	}

	var resp searchResponse
	req := searchRequest{Vector: vector, Limit: topK, WithPayload: true}
	if err := s.client.PostJSON(ctx, s.collectionPath("/points/search"), req, &resp); err != nil {
		return nil, NewError(KindRetrieval, "qdrant search", err)
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, item := range resp.Result {
		meta, text := MetadataFromMap(item.Payload)
		id := stringValue(item.Payload, "record_id")
		if id == "" {
			id = fmt.Sprint(item.ID)
		}
		matches = append(matches, Match{ID: id, Score: item.Score, Text: text, URL: meta.Source, Metadata: meta})
	}
	return matches, nil
}

// DescribeStats 精确统计点数量
func (s *QdrantStore) DescribeStats(ctx context.Context) (*StoreStats, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, NewError(KindRetrieval, "qdrant ensure collection", err)
	}
	var resp countResponse
	if err := s.client.PostJSON(ctx, s.collectionPath("/points/count"), countRequest{Exact: true}, &resp); err != nil {
		return nil, NewError(KindRetrieval, "qdrant count", err)
	}
	return &StoreStats{TotalVectorCount: resp.Result.Count}, nil
}

// DeleteAll 删除整个集合，下次写入时重建；集合不存在视为已清空
func (s *QdrantStore) DeleteAll(ctx context.Context) error {
	err := s.client.DoJSON(ctx, http.MethodDelete, s.collectionPath(""), nil, nil)
	if err != nil && httputil.StatusCode(err) != http.StatusNotFound {
		return NewError(KindUpsert, "qdrant delete collection", err)
	}
	s.mu.Lock()
	s.ensured = false
	s.mu.Unlock()
	return nil
}

// DeleteByFilter 按 payload 等值条件删除
func (s *QdrantStore) DeleteByFilter(ctx context.Context, filter Filter) error {
	f := mustMatchFilter(filter)
	if f == nil {
		return NewError(KindValidation, "qdrant delete", fmt.Errorf("过滤条件不能为空"))
	}
	if err := s.ensureCollection(ctx); err != nil {
		return NewError(KindUpsert, "qdrant ensure collection", err)
	}
	var resp qdrantOperationResponse
	if err := s.client.PostJSON(ctx, s.collectionPath("/points/delete?wait=true"), deletePointsRequest{Filter: f}, &resp); err != nil {
		return NewError(KindUpsert, "qdrant delete", err)
	}
	return nil
}

// --- 内部辅助 ---

func (s *QdrantStore) collectionPath(path string) string {
	return fmt.Sprintf("/collections/%s%s", url.PathEscape(s.collection), path)
}

// ensureCollection 探测集合，不存在则创建；DeleteAll 之后会重新执行
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	if s.skipEnsure {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	var resp qdrantOperationResponse
	err := s.client.GetJSON(ctx, s.collectionPath(""), &resp)
	if err == nil && resp.Status == "ok" {
		s.ensured = true
		return nil
	}
	if err != nil && httputil.StatusCode(err) != http.StatusNotFound {
		return err
	}

	createReq := createCollectionRequest{Vectors: qdrantVectorParams{Size: s.vectorSize, Distance: s.distance}}
	if err := s.client.DoJSON(ctx, http.MethodPut, s.collectionPath(""), createReq, &resp); err != nil {
		return fmt.Errorf("创建 Qdrant 集合失败: %w", err)
	}
	s.ensured = true
	return nil
}

func mustMatchFilter(values Filter) *qdrantFilter {
	must := make([]fieldCondition, 0, len(values))
	for k, v := range values {
		if v == "" {
			continue
		}
		must = append(must, fieldCondition{Key: k, Match: fieldMatch{Value: v}})
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrantFilter{Must: must}
}

// --- Qdrant API payloads ---

type qdrantVectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type createCollectionRequest struct {
	Vectors qdrantVectorParams `json:"vectors"`
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type upsertPointsRequest struct {
	Points []qdrantPoint `json:"points"`
}

type fieldCondition struct {
	Key   string     `json:"key"`
	Match fieldMatch `json:"match"`
}

type fieldMatch struct {
	Value any `json:"value"`
}

type qdrantFilter struct {
	Must []fieldCondition `json:"must,omitempty"`
}

type deletePointsRequest struct {
	Filter *qdrantFilter `json:"filter,omitempty"`
}

type searchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type searchResponse struct {
	Status string              `json:"status"`
	Result []searchResultEntry `json:"result"`
}

type searchResultEntry struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type qdrantOperationResponse struct {
	Status string `json:"status"`
}

type countRequest struct {
	Exact bool `json:"exact"`
}

type countResponse struct {
	Result struct {
		Count int64 `json:"count"`
	} `json:"result"`
}
