package parsers

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"careassist/internal/rag"

	"github.com/dslipak/pdf"
	"go.uber.org/zap"
)

// PDFParser PDF 文件解析器
type PDFParser struct {
	logger *zap.Logger
}

// NewPDFParser 创建 PDF 解析器
func NewPDFParser(logger *zap.Logger) *PDFParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFParser{logger: logger}
}

// Parse 逐页提取纯文本，单页失败跳过
func (p *PDFParser) Parse(reader io.Reader) (string, error) {
	// pdf.NewReader 需要 ReaderAt
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取 PDF 内容失败: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: 打开 PDF 失败: %v", rag.ErrUnsupportedFormat, err)
	}

	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("解析 PDF 页面失败", zap.Int("page", i), zap.Error(err))
			continue
		}

		buf.WriteString(text)
		buf.WriteString("\n")
	}

	return strings.TrimSpace(buf.String()), nil
}

// SupportedExtensions 支持的文件扩展名
func (p *PDFParser) SupportedExtensions() []string {
	return []string{".pdf"}
}
