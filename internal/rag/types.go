package rag

import (
	"fmt"
	"strconv"
	"time"
)

// DocumentTypeUserUpload 用户上传文档的类型标记
const DocumentTypeUserUpload = "user_upload"

// Document 上传中的原始文档，只在入库过程中存在于内存
type Document struct {
	Name     string
	Content  []byte
	MimeType string
}

// ChunkMetadata 分块元数据，由分块器、向量化与各向量库共用
type ChunkMetadata struct {
	Source            string `json:"source"`
	SourceDisplayName string `json:"source_display_name"`
	Filename          string `json:"filename"`
	ChunkIndex        int    `json:"chunk_index"`
	TotalChunks       int    `json:"total_chunks"`
	UploadDate        string `json:"upload_date"`
	DocumentType      string `json:"document_type"`
}

// Validate 校验分块元数据
func (m ChunkMetadata) Validate() error {
	if m.Filename == "" {
		return fmt.Errorf("分块元数据缺少 filename")
	}
	if m.ChunkIndex < 0 || m.TotalChunks <= 0 || m.ChunkIndex >= m.TotalChunks {
		return fmt.Errorf("分块索引越界: %d/%d", m.ChunkIndex, m.TotalChunks)
	}
	return nil
}

// ToMap 转成向量库的扁平 metadata，text 一并存入以便检索时取回原文
func (m ChunkMetadata) ToMap(text string) map[string]any {
	return map[string]any{
		"text":                text,
		"source":              m.Source,
		"source_display_name": m.SourceDisplayName,
		"filename":            m.Filename,
		"chunk_index":         m.ChunkIndex,
		"total_chunks":        m.TotalChunks,
		"upload_date":         m.UploadDate,
		"document_type":       m.DocumentType,
	}
}

// MetadataFromMap 从向量库 metadata 还原，返回元数据与原文
func MetadataFromMap(raw map[string]any) (ChunkMetadata, string) {
	text := stringValue(raw, "text")
	return ChunkMetadata{
		Source:            stringValue(raw, "source"),
		SourceDisplayName: stringValue(raw, "source_display_name"),
		Filename:          stringValue(raw, "filename"),
		ChunkIndex:        intValue(raw["chunk_index"]),
		TotalChunks:       intValue(raw["total_chunks"]),
		UploadDate:        stringValue(raw, "upload_date"),
		DocumentType:      stringValue(raw, "document_type"),
	}, text
}

// Chunk 文档分块，Start/End 为未裁剪窗口在原文中的 rune 偏移
type Chunk struct {
	ID       string
	Text     string
	Start    int
	End      int
	Metadata ChunkMetadata
}

// ChunkID 由文件名和分块序号确定的向量 ID，同名文件重传会覆盖
func ChunkID(filename string, chunkIndex int) string {
	return filename + "_chunk_" + strconv.Itoa(chunkIndex)
}

// VectorRecord 写入向量库的一条记录
type VectorRecord struct {
	ID       string
	Values   []float32
	Text     string
	Metadata ChunkMetadata
}

// Match 相似度检索命中
type Match struct {
	ID       string
	Score    float64
	Text     string
	URL      string
	Metadata ChunkMetadata
}

// StoreStats 向量库统计
type StoreStats struct {
	TotalVectorCount int64 `json:"totalVectorCount"`
}

// Filter 元数据等值过滤条件
type Filter map[string]string

// Source 返回给调用方的引用来源
type Source struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Snippet    string  `json:"snippet"`
	URL        string  `json:"url"`
	Similarity float64 `json:"similarity"`
}

// RetrievalResult 检索结果
type RetrievalResult struct {
	ContextDocuments string   `json:"contextDocuments"`
	Sources          []Source `json:"sources"`
	Backend          string   `json:"backend,omitempty"`
}

func nowISO(now time.Time) string {
	return now.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

func stringValue(raw map[string]any, key string) string {
	if raw == nil {
		return ""
	}
	switch v := raw[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(n)
		return i
	default:
		return 0
	}
}
