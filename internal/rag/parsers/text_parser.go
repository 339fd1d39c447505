package parsers

import (
	"fmt"
	"io"
	"strings"
)

// newlineNormalizer CRLF 与单独的 CR 统一为 LF，并去掉 NUL
var newlineNormalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// TextParser 纯文本与 Markdown 解析器，也是未知扩展名的兜底解析器
type TextParser struct{}

// NewTextParser 创建文本解析器
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse 按 UTF-8 读取
// 非法字节替换为 U+FFFD，保证分块按 rune 计数时位置一致
func (p *TextParser) Parse(reader io.Reader) (string, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("读取文本失败: %w", err)
	}

	text := strings.TrimPrefix(string(content), "\ufeff")
	text = strings.ToValidUTF8(text, "\uFFFD")
	return newlineNormalizer.Replace(text), nil
}

// SupportedExtensions 支持的文件扩展名
func (p *TextParser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".md", ".markdown", ".csv"}
}
