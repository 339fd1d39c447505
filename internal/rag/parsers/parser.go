package parsers

import "io"

// Parser 单一格式的文本提取器
type Parser interface {
	// Parse 读取全部内容并返回纯文本
	Parse(reader io.Reader) (string, error)

	// SupportedExtensions 支持的扩展名，带点号，如 ".txt"
	SupportedExtensions() []string
}

// canParse 扩展名匹配
func canParse(p Parser, ext string) bool {
	for _, e := range p.SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}
