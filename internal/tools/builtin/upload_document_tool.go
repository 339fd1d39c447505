package builtin

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"careassist/internal/rag"
	"careassist/internal/tools"

	"go.uber.org/zap"
)

// Ingester 入库流水线能力
type Ingester interface {
	Ingest(ctx context.Context, doc rag.Document) (*rag.IngestResult, error)
	MaxBytes() int64
}

// UploadDocumentTool 医疗文档上传工具
// 超限或关键词检查不通过的文档不会进入入库流水线
type UploadDocumentTool struct {
	ingester Ingester
	logger   *zap.Logger
}

// NewUploadDocumentTool 创建上传工具
func NewUploadDocumentTool(ingester Ingester, logger *zap.Logger) *UploadDocumentTool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadDocumentTool{ingester: ingester, logger: logger}
}

// Execute 解码、大小检查、关键词检查、入库
func (t *UploadDocumentTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	filename, _ := input["filename"].(string)
	mimeType, _ := input["mimeType"].(string)
	encoded := contentArg(input)

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, errors.New(uploadFailure(filename, "Content is not valid base64", defaultTips))
	}

	if mimeType != "text/plain" && mimeType != "application/pdf" {
		return nil, errors.New(uploadFailure(filename,
			fmt.Sprintf("Unsupported file type: %s. Only PDF and TXT files are supported.", mimeType), defaultTips))
	}

	if limit := t.ingester.MaxBytes(); limit > 0 && int64(len(data)) > limit {
		t.logger.Info("上传文档超过大小上限",
			zap.String("filename", filename),
			zap.Int("bytes", len(data)),
			zap.Int64("limit", limit))
		return nil, errors.New(uploadFailure(filename, sizeLimitDetail(limit), defaultTips))
	}

	// PDF 只按文件名判断，正文由流水线提取
	text := ""
	if mimeType == "text/plain" {
		text = string(data)
	}
	if !IsHealthcareRelated(filename, text) {
		t.logger.Info("非医疗文档被拒绝", zap.String("filename", filename))
		return nil, errors.New(RejectionMessage(filename))
	}

	result, err := t.ingester.Ingest(ctx, rag.Document{Name: filename, Content: data, MimeType: mimeType})
	if err != nil {
		detail, tips := describeFailure(err)
		return nil, errors.New(uploadFailure(filename, detail, tips))
	}

	return fmt.Sprintf(`📄 **Document Upload Successful**

**File**: %s
**Size**: %.1f KB
**Type**: %s

**Processing Results**:
• Document successfully parsed and processed
• Text extracted and split into %d chunks (%d characters)
• Vectors generated and uploaded to %s
• Document is now searchable via the searchDocuments tool

**Next Steps**:
• Use the searchDocuments tool to find information from this document
• Ask questions about the uploaded content
• The document is now part of your healthcare knowledge base

✅ Upload and vectorization completed successfully!`,
		filename, float64(len(data))/1024, mimeType, result.Chunks, result.Characters, result.Backend), nil
}

// Validate 验证输入
func (t *UploadDocumentTool) Validate(input map[string]any) error {
	if contentArg(input) == "" {
		return fmt.Errorf("missing required argument: content")
	}
	return tools.ValidateRequired(input, "filename", "mimeType")
}

// GetDefinition 获取工具定义
func (t *UploadDocumentTool) GetDefinition() *tools.ToolDefinition {
	return &tools.ToolDefinition{
		Name:        "uploadDocument",
		DisplayName: "医疗文档上传",
		Description: "Upload and process HEALTHCARE-ONLY documents (PDF, TXT) to the medical knowledge base. Only documents containing medical, insurance, or healthcare content will be accepted. General documents are automatically rejected to maintain database integrity.",
		Category:    "document",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "Base64 encoded content of the document",
				},
				"filename": map[string]any{
					"type":        "string",
					"description": "Name of the file including extension (e.g., 'insurance_policy.pdf')",
				},
				"mimeType": map[string]any{
					"type":        "string",
					"description": "MIME type of the file (e.g., 'application/pdf', 'text/plain')",
				},
			},
			"required": []string{"content", "filename", "mimeType"},
		},
		Timeout: 330,
		Status:  "active",
	}
}

// contentArg 兼容 content 与 base64Content 两种参数名
func contentArg(input map[string]any) string {
	if s, ok := input["content"].(string); ok && s != "" {
		return s
	}
	s, _ := input["base64Content"].(string)
	return s
}

const defaultTips = `**Troubleshooting Tips**:
• Ensure the file is a supported format (PDF, TXT)
• Check that the file size is reasonable (< 10MB recommended)
• Verify the document content is properly encoded`

// describeFailure 按结构化原因给出说明与建议
func describeFailure(err error) (string, string) {
	switch rag.ReasonOf(err) {
	case rag.ReasonTimeout:
		return "Upload timed out - processing took too long to complete", `**Troubleshooting Tips**:
• Try uploading a smaller file
• Split large documents into several parts`
	case rag.ReasonCredential:
		return "The vector or embedding service rejected the configured credentials", `**Troubleshooting Tips**:
• Verify the API keys configured for the embedding and vector services`
	case rag.ReasonFormat:
		if errors.Is(err, rag.ErrEmptyText) {
			return "No text could be extracted from the file", defaultTips
		}
		return "The file format is not supported", defaultTips
	case rag.ReasonInput:
		return err.Error(), defaultTips
	}
	return fmt.Sprintf("Processing failed during %s step", stepName(err)), defaultTips
}

// sizeLimitDetail 与上传接口 413 的措辞一致
func sizeLimitDetail(limit int64) string {
	mb := float64(limit) / (1024 * 1024)
	if mb == float64(int64(mb)) {
		return fmt.Sprintf("File size exceeds %dMB limit", int64(mb))
	}
	return fmt.Sprintf("File size exceeds %.1fMB limit", mb)
}

func stepName(err error) string {
	if s := rag.StepOf(err); s != "" {
		return string(s)
	}
	return "upload"
}

func uploadFailure(filename, detail, tips string) string {
	return fmt.Sprintf(`❌ **Document Upload Failed**

**File**: %s
**Error**: %s

%s

Please try again or contact support if the issue persists.`, filename, detail, tips)
}
