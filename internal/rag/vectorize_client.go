package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"careassist/pkg/httputil"
)

// VectorizeOptions Vectorize.io 管道配置
type VectorizeOptions struct {
	BaseURL        string
	AccessToken    string
	OrganizationID string
	PipelineID     string
	ConnectorID    string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// VectorizeClient Vectorize.io 管道客户端
// 检索走 pipeline retrieval 接口；入库通过上传连接器，由 Vectorize 自行向量化
type VectorizeClient struct {
	client      *httputil.Client
	upload      *httputil.Client
	org         string
	pipeline    string
	connectorID string
	now         func() time.Time
}

// NewVectorizeClient 创建 Vectorize 客户端
func NewVectorizeClient(opts VectorizeOptions) (*VectorizeClient, error) {
	if opts.AccessToken == "" || opts.OrganizationID == "" || opts.PipelineID == "" {
		return nil, fmt.Errorf("vectorize 配置不完整: 需要 access token、organization 与 pipeline")
	}
	base := opts.BaseURL
	if base == "" {
		base = "https://api.vectorize.io/v1"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	connector := opts.ConnectorID
	if connector == "" {
		connector = "medical_insurance_booklet"
	}

	client := httputil.NewClient(
		httputil.WithHTTPClient(opts.HTTPClient),
		httputil.WithBaseURL(base),
		httputil.WithHeaders(map[string]string{"Authorization": "Bearer " + opts.AccessToken}),
	)
	// 预签名 URL 不能带 Authorization
	upload := httputil.NewClient(httputil.WithHTTPClient(opts.HTTPClient))
	if opts.HTTPClient == nil {
		httputil.WithTimeout(timeout)(client)
		httputil.WithTimeout(2 * timeout)(upload)
	}

	return &VectorizeClient{
		client:      client,
		upload:      upload,
		org:         opts.OrganizationID,
		pipeline:    opts.PipelineID,
		connectorID: connector,
		now:         time.Now,
	}, nil
}

// Name 后端名称
func (c *VectorizeClient) Name() string { return "vectorize" }

// Search 调用管道检索
func (c *VectorizeClient) Search(ctx context.Context, question string, topK int) ([]Match, error) {
	if topK <= 0 {
		topK = 5
	}
	path := fmt.Sprintf("/org/%s/pipelines/%s/retrieval", url.PathEscape(c.org), url.PathEscape(c.pipeline))
	req := map[string]any{"question": question, "numResults": topK}

	var resp struct {
		Documents []vectorizeDocument `json:"documents"`
	}
	if err := c.client.PostJSON(ctx, path, req, &resp); err != nil {
		return nil, NewError(KindRetrieval, "vectorize retrieval", err)
	}

	matches := make([]Match, 0, len(resp.Documents))
	for _, d := range resp.Documents {
		score := d.Similarity
		if score == 0 {
			score = d.Relevancy
		}
		matches = append(matches, Match{
			ID:    d.ID,
			Score: score,
			Text:  d.Text,
			URL:   d.Source,
			Metadata: ChunkMetadata{
				Source:            d.Source,
				SourceDisplayName: d.SourceDisplayName,
				Filename:          d.Filename,
				ChunkIndex:        d.ChunkIndex,
				TotalChunks:       d.TotalChunks,
				UploadDate:        d.UploadDate,
				DocumentType:      d.DocumentType,
			},
		})
	}
	return matches, nil
}

// UploadDocument 通过上传连接器提交分块文本
// 先申请预签名 URL，再以 text/plain 上传全部分块
func (c *VectorizeClient) UploadDocument(ctx context.Context, filename string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return NewError(KindValidation, "vectorize upload", ErrEmptyText)
	}

	metadata, err := json.Marshal(map[string]any{
		"source":        filename,
		"upload_date":   nowISO(c.now()),
		"chunks_count":  len(chunks),
		"document_type": DocumentTypeUserUpload,
	})
	if err != nil {
		return NewError(KindUpsert, "vectorize upload", err)
	}

	path := fmt.Sprintf("/org/%s/uploads/%s/files", url.PathEscape(c.org), url.PathEscape(c.connectorID))
	req := map[string]string{
		"name":        filename,
		"contentType": "text/plain",
		"metadata":    string(metadata),
	}
	var resp struct {
		UploadURL string `json:"uploadUrl"`
	}
	if err := c.client.DoJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return NewError(KindUpsert, "vectorize 申请上传地址", err)
	}
	if resp.UploadURL == "" {
		return NewError(KindUpsert, "vectorize 申请上传地址", fmt.Errorf("响应缺少 uploadUrl"))
	}

	if err := c.upload.PutBytes(ctx, resp.UploadURL, "text/plain", []byte(CombineChunks(chunks))); err != nil {
		return NewError(KindUpsert, "vectorize 上传文件", err)
	}
	return nil
}

// CombineChunks 把分块拼成带来源与序号标记的纯文本
func CombineChunks(chunks []Chunk) string {
	var b strings.Builder
	for _, ch := range chunks {
		fmt.Fprintf(&b, "Source: %s\nChunk %d/%d\n\n%s\n\n---\n\n",
			ch.Metadata.Source, ch.Metadata.ChunkIndex+1, ch.Metadata.TotalChunks, ch.Text)
	}
	return b.String()
}

type vectorizeDocument struct {
	ID                string  `json:"id"`
	Text              string  `json:"text"`
	Source            string  `json:"source"`
	SourceDisplayName string  `json:"source_display_name"`
	Filename          string  `json:"filename"`
	ChunkIndex        int     `json:"chunk_index"`
	TotalChunks       int     `json:"total_chunks"`
	UploadDate        string  `json:"upload_date"`
	DocumentType      string  `json:"document_type"`
	Relevancy         float64 `json:"relevancy"`
	Similarity        float64 `json:"similarity"`
}

// IndexChunks 实现 Indexer，文件名取自分块元数据
func (c *VectorizeClient) IndexChunks(ctx context.Context, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, NewError(KindValidation, "vectorize upload", ErrEmptyText)
	}
	if err := c.UploadDocument(ctx, chunks[0].Metadata.Filename, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}
