package parsers

import (
	"io"

	"careassist/internal/rag"
)

// DocxUnsupportedMessage 面向用户的提示
const DocxUnsupportedMessage = "DOCX parsing not implemented yet. Please use .txt files for now."

// FormatError 带用户提示的格式错误，errors.Is 可匹配 rag.ErrUnsupportedFormat
type FormatError struct {
	Message string
}

func (e *FormatError) Error() string { return e.Message }

func (e *FormatError) Unwrap() error { return rag.ErrUnsupportedFormat }

// DocxParser Word 文档占位解析器，显式拒绝 .docx/.doc
type DocxParser struct{}

// NewDocxParser 创建 Word 占位解析器
func NewDocxParser() *DocxParser {
	return &DocxParser{}
}

// Parse 始终返回 FormatError
func (p *DocxParser) Parse(_ io.Reader) (string, error) {
	return "", &FormatError{Message: DocxUnsupportedMessage}
}

// SupportedExtensions 支持的扩展名
func (p *DocxParser) SupportedExtensions() []string {
	return []string{".docx", ".doc"}
}
