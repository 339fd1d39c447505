package rag

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"careassist/internal/metrics"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOptions OpenAI 向量化配置
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIEmbeddingProvider OpenAI向量化服务提供者
type OpenAIEmbeddingProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbeddingProvider 创建OpenAI向量化提供者
func NewOpenAIEmbeddingProvider(opts OpenAIOptions) (*OpenAIEmbeddingProvider, error) {
	if opts.APIKey == "" {
		return nil, NewError(KindEmbedding, "openai", fmt.Errorf("OpenAI API Key 不能为空"))
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	if opts.OrgID != "" {
		cfg.OrgID = opts.OrgID
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	} else {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}

	model := opts.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &OpenAIEmbeddingProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Embed 将单条文本转换为向量
func (p *OpenAIEmbeddingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewError(KindEmbedding, "openai", fmt.Errorf("文本不能为空"))
	}
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 一次请求向量化多条文本，分批由调用方负责
// 返回顺序与输入一致
func (p *OpenAIEmbeddingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, NewError(KindEmbedding, "调用OpenAI Embeddings API失败", err)
	}
	if len(resp.Data) != len(texts) {
		metrics.EmbeddingRequests.WithLabelValues("error").Inc()
		return nil, NewError(KindEmbedding, "openai",
			fmt.Errorf("返回向量数量不匹配: 期望%d, 实际%d", len(texts), len(resp.Data)))
	}
	metrics.EmbeddingRequests.WithLabelValues("ok").Inc()

	// 按 index 回填，不依赖返回顺序
	embeddings := make([][]float32, len(texts))
	for i, data := range resp.Data {
		idx := data.Index
		if idx < 0 || idx >= len(texts) || embeddings[idx] != nil {
			idx = i
		}
		embeddings[idx] = data.Embedding
	}
	return embeddings, nil
}

// GetDimension 获取向量维度
func (p *OpenAIEmbeddingProvider) GetDimension() int {
	switch p.model {
	case string(openai.LargeEmbedding3):
		return 3072
	default:
		return 1536
	}
}

// GetModel 获取当前使用的模型
func (p *OpenAIEmbeddingProvider) GetModel() string {
	return p.model
}

// GetProviderName 获取提供商名称
func (p *OpenAIEmbeddingProvider) GetProviderName() string {
	return "openai"
}
