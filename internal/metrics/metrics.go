package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careassist_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// APIRequestSize API 请求体大小（字节），上传接口为主
	APIRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careassist_api_request_size_bytes",
			Help:    "API 请求体大小分布",
			Buckets: []float64{1e3, 1e4, 1e5, 1e6, 5e6, 1e7},
		},
		[]string{"method", "path"},
	)
)

// 入库指标
var (
	// IngestionsTotal 文档入库次数，step 为失败步骤，成功时为 done
	IngestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_ingestions_total",
			Help: "文档入库次数",
		},
		[]string{"step"},
	)

	// IngestionDuration 入库耗时（秒）
	IngestionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "careassist_ingestion_duration_seconds",
			Help:    "文档入库耗时分布",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// ChunksUpserted 写入向量库的分块数
	ChunksUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_chunks_upserted_total",
			Help: "写入向量库的分块总数",
		},
		[]string{"backend"},
	)

	// EmbeddingRequests 向量化调用次数
	EmbeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_embedding_requests_total",
			Help: "向量化调用次数",
		},
		[]string{"status"},
	)
)

// 检索指标
var (
	// RetrievalsTotal 检索次数，按最终命中的后端统计，全部失败时为 fallback
	RetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_retrievals_total",
			Help: "检索总数",
		},
		[]string{"backend"},
	)

	// BackendFailures 单个后端检索失败次数
	BackendFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_backend_failures_total",
			Help: "检索后端失败次数",
		},
		[]string{"backend"},
	)

	// RetrievalDuration 检索耗时（秒）
	RetrievalDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "careassist_retrieval_duration_seconds",
			Help:    "检索耗时分布",
			Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		},
	)
)

// 工具调用指标
var (
	// ToolCallsTotal 工具调用次数
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_tool_calls_total",
			Help: "工具调用次数",
		},
		[]string{"tool", "status"},
	)

	// ToolCallDuration 工具调用耗时（秒）
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "careassist_tool_call_duration_seconds",
			Help:    "工具调用耗时分布",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// SessionClears 会话清理次数
	SessionClears = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "careassist_session_clears_total",
			Help: "向量库清理次数",
		},
		[]string{"trigger"},
	)
)
