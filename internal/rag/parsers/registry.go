package parsers

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"careassist/internal/rag"

	"go.uber.org/zap"
)

// Registry 按扩展名选择解析器，实现 rag.Extractor
type Registry struct {
	parsers  []Parser
	fallback Parser
	logger   *zap.Logger
}

// NewRegistry 注册默认解析器：文本、PDF，以及显式不支持的 Word
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{logger: logger}
	r.fallback = NewTextParser()
	r.Register(r.fallback)
	r.Register(NewPDFParser(logger))
	r.Register(NewDocxParser())
	return r
}

// Register 注册解析器，后注册的不会覆盖先注册的扩展名
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Extensions 已注册的全部扩展名
func (r *Registry) Extensions() []string {
	var out []string
	for _, p := range r.parsers {
		out = append(out, p.SupportedExtensions()...)
	}
	return out
}

// Extract 提取文本
// 未知扩展名在 MIME 为 text/* 或内容是合法 UTF-8 时按文本读取，否则返回 ErrUnsupportedFormat
func (r *Registry) Extract(filename, mimeType string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	parser := r.lookup(ext)
	if parser == nil {
		if !strings.HasPrefix(mimeType, "text/") && !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, ext)
		}
		r.logger.Debug("未知扩展名按文本读取", zap.String("filename", filename), zap.String("mime", mimeType))
		parser = r.fallback
	}

	text, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", rag.ErrEmptyText
	}
	return text, nil
}

func (r *Registry) lookup(ext string) Parser {
	if ext == "" {
		return nil
	}
	for _, p := range r.parsers {
		if canParse(p, ext) {
			return p
		}
	}
	return nil
}
