package rag

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ChunkOptions 分块参数
type ChunkOptions struct {
	Size      int // 窗口大小（字符）
	Overlap   int // 相邻窗口重叠（字符）
	MinLength int // 裁剪后短于该值的窗口被丢弃
}

// DefaultChunkOptions 1000/200/50
func DefaultChunkOptions() ChunkOptions {
	return ChunkOptions{Size: 1000, Overlap: 200, MinLength: 50}
}

// Chunker 文档分块器
type Chunker struct {
	opts ChunkOptions
	now  func() time.Time
}

// NewChunker 创建分块器，非法参数回落到默认值
func NewChunker(opts ChunkOptions) *Chunker {
	def := DefaultChunkOptions()
	if opts.Size <= 0 {
		opts.Size = def.Size
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.Size {
		opts.Overlap = 0
	}
	if opts.MinLength < 0 {
		opts.MinLength = 0
	}
	return &Chunker{opts: opts, now: time.Now}
}

// Options 返回生效的参数
func (c *Chunker) Options() ChunkOptions { return c.opts }

// Span 原文中的 [Start, End) rune 区间
type Span struct {
	Start int
	End   int
}

// Windows 长度为 length 的文本对应的全部滑动窗口
// 窗口数为 ceil(length/step)，相邻窗口重叠 Overlap 个字符
func (c *Chunker) Windows(length int) []Span {
	step := c.opts.Size - c.opts.Overlap
	spans := make([]Span, 0, (length+step-1)/step)
	for i := 0; i < length; i += step {
		end := i + c.opts.Size
		if end > length {
			end = length
		}
		spans = append(spans, Span{Start: i, End: end})
	}
	return spans
}

// SlidingWindow 固定窗口加重叠的分块
// 裁剪后短于 MinLength 的窗口丢弃，文档只有一个窗口时例外；每个分块不超过 Size 个字符
func (c *Chunker) SlidingWindow(text, filename string) []Chunk {
	runes := []rune(text)
	spans := c.Windows(len(runes))
	sole := len(spans) == 1

	chunks := make([]Chunk, 0, len(spans))
	for _, span := range spans {
		candidate := strings.TrimSpace(string(runes[span.Start:span.End]))
		if candidate == "" {
			continue
		}
		if !sole && utf8.RuneCountInString(candidate) < c.opts.MinLength {
			continue
		}
		chunks = append(chunks, Chunk{Text: candidate, Start: span.Start, End: span.End})
	}
	return c.finalize(chunks, filename)
}

// Words 按单词累积分块，不拆分单词，不做最短长度过滤
// 单个超长单词独占一个分块
func (c *Chunker) Words(text, filename string) []Chunk {
	words := strings.Fields(text)
	chunks := make([]Chunk, 0)

	var current strings.Builder
	currentLen := 0
	for _, w := range words {
		wl := utf8.RuneCountInString(w)
		if currentLen > 0 && currentLen+1+wl > c.opts.Size {
			chunks = append(chunks, Chunk{Text: current.String()})
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(w)
		currentLen += wl
	}
	if currentLen > 0 {
		chunks = append(chunks, Chunk{Text: current.String()})
	}
	return c.finalize(chunks, filename)
}

// finalize 写入连续序号、ID 与统一的 total_chunks
func (c *Chunker) finalize(chunks []Chunk, filename string) []Chunk {
	uploadDate := nowISO(c.now())
	for i := range chunks {
		chunks[i].ID = ChunkID(filename, i)
		chunks[i].Metadata = ChunkMetadata{
			Source:            filename,
			SourceDisplayName: filename,
			Filename:          filename,
			ChunkIndex:        i,
			TotalChunks:       len(chunks),
			UploadDate:        uploadDate,
			DocumentType:      DocumentTypeUserUpload,
		}
	}
	return chunks
}

// ValidateChunks 输出边界校验：序号连续且 total_chunks 一致
func ValidateChunks(chunks []Chunk) error {
	for i, ch := range chunks {
		if err := ch.Metadata.Validate(); err != nil {
			return err
		}
		if ch.Metadata.ChunkIndex != i {
			return fmt.Errorf("分块序号不连续: 位置 %d 的序号为 %d", i, ch.Metadata.ChunkIndex)
		}
		if ch.Metadata.TotalChunks != len(chunks) {
			return fmt.Errorf("total_chunks 不一致: %d != %d", ch.Metadata.TotalChunks, len(chunks))
		}
		if ch.ID != ChunkID(ch.Metadata.Filename, i) {
			return fmt.Errorf("分块 ID 不匹配: %s", ch.ID)
		}
	}
	return nil
}
