package rag

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunker() *Chunker {
	c := NewChunker(DefaultChunkOptions())
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func TestSlidingWindow_2500Chars(t *testing.T) {
	chunks := newTestChunker().SlidingWindow(strings.Repeat("a", 2500), "plan.txt")

	require.Len(t, chunks, 4)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, 4, ch.Metadata.TotalChunks)
		assert.Equal(t, ChunkID("plan.txt", i), ch.ID)
		assert.Equal(t, "plan.txt", ch.Metadata.Filename)
		assert.Equal(t, DocumentTypeUserUpload, ch.Metadata.DocumentType)
		assert.Equal(t, "2026-01-02T03:04:05.000Z", ch.Metadata.UploadDate)
	}
	assert.Equal(t, "plan.txt_chunk_3", chunks[3].ID)
	assert.Len(t, chunks[3].Text, 100)
	assert.NoError(t, ValidateChunks(chunks))
}

func TestSlidingWindow_DropsShortTailAndKeepsIndicesContiguous(t *testing.T) {
	// 窗口起点 0/800/1600/2400，最后一个窗口只有 30 个字符
	chunks := newTestChunker().SlidingWindow(strings.Repeat("b", 2430), "tail.txt")

	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Metadata.ChunkIndex)
		assert.Equal(t, 3, ch.Metadata.TotalChunks)
	}
	assert.NoError(t, ValidateChunks(chunks))
}

func TestSlidingWindow_ShortDocumentKeptAsSoleChunk(t *testing.T) {
	chunks := newTestChunker().SlidingWindow("  copay $20  ", "short.txt")

	require.Len(t, chunks, 1)
	assert.Equal(t, "copay $20", chunks[0].Text)
	assert.Equal(t, 1, chunks[0].Metadata.TotalChunks)
}

func sparseText() string {
	return strings.Repeat("copay "+strings.Repeat(" ", 1094), 20)
}

func TestSlidingWindow_SparseTextProducesNoChunks(t *testing.T) {
	// 22000 个字符，每个窗口裁剪后都不足 50 个字符
	chunks := newTestChunker().SlidingWindow(sparseText(), "sparse.txt")
	assert.Empty(t, chunks)
}

func TestSlidingWindow_ChunksNeverExceedWindow(t *testing.T) {
	c := newTestChunker()
	inputs := map[string]string{
		"sparse":  sparseText(),
		"dense":   strings.Repeat("deductible ", 900),
		"mixed":   strings.Repeat("claim 42\n\n"+strings.Repeat(" ", 300)+"coinsurance applies after the deductible is met. ", 40),
		"unicode": strings.Repeat("保险理赔说明 ", 700),
		"short":   "copay $20",
	}
	for name, text := range inputs {
		for _, ch := range c.SlidingWindow(text, name+".txt") {
			assert.LessOrEqual(t, len([]rune(ch.Text)), c.Options().Size, name)
		}
	}
}

func TestSlidingWindow_EmptyInput(t *testing.T) {
	c := newTestChunker()
	assert.Empty(t, c.SlidingWindow("", "empty.txt"))
	assert.Empty(t, c.SlidingWindow(" \n\t ", "blank.txt"))
}

func TestWindows_CoverTextWithExactOverlap(t *testing.T) {
	c := newTestChunker()
	opts := c.Options()
	step := opts.Size - opts.Overlap

	for _, length := range []int{1, 799, 800, 801, 2500, 4000, 12345} {
		spans := c.Windows(length)
		assert.Len(t, spans, (length+step-1)/step, "length=%d", length)
		assert.Equal(t, 0, spans[0].Start)
		assert.Equal(t, length, spans[len(spans)-1].End)

		for i := 0; i+1 < len(spans); i++ {
			// 相邻窗口之间没有空隙
			assert.LessOrEqual(t, spans[i+1].Start, spans[i].End)
			if spans[i].End-spans[i].Start == opts.Size {
				assert.Equal(t, opts.Overlap, spans[i].End-spans[i+1].Start)
			}
		}
	}
}

func TestSlidingWindow_CountsRunesNotBytes(t *testing.T) {
	text := strings.Repeat("保", 1700)
	chunks := newTestChunker().SlidingWindow(text, "中文.txt")

	// 窗口 [0,1000) [800,1700) [1600,1700)
	require.Len(t, chunks, 3)
	assert.Equal(t, 1000, len([]rune(chunks[0].Text)))
	assert.Equal(t, 100, len([]rune(chunks[2].Text)))
}

func TestSlidingWindow_ReingestProducesSameIDs(t *testing.T) {
	c := newTestChunker()
	text := strings.Repeat("deductible coinsurance ", 200)

	first := c.SlidingWindow(text, "policy.pdf")
	second := c.SlidingWindow(text, "policy.pdf")
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestWords_NoSplitAndKeepsSmallTail(t *testing.T) {
	c := NewChunker(ChunkOptions{Size: 7})
	chunks := c.Words("one two three four", "w.txt")

	require.Len(t, chunks, 3)
	assert.Equal(t, "one two", chunks[0].Text)
	assert.Equal(t, "three", chunks[1].Text)
	assert.Equal(t, "four", chunks[2].Text)
	assert.Equal(t, 2, chunks[2].Metadata.ChunkIndex)
	assert.NoError(t, ValidateChunks(chunks))
}

func TestWords_OversizedWordStandsAlone(t *testing.T) {
	c := NewChunker(ChunkOptions{Size: 5})
	chunks := c.Words("a supercalifragilistic b", "w.txt")

	require.Len(t, chunks, 3)
	assert.Equal(t, "a", chunks[0].Text)
	assert.Equal(t, "supercalifragilistic", chunks[1].Text)
	assert.Equal(t, "b", chunks[2].Text)
}

func TestValidateChunks_DetectsDrift(t *testing.T) {
	chunks := newTestChunker().SlidingWindow(strings.Repeat("c", 2500), "d.txt")
	chunks[2].Metadata.TotalChunks = 9
	assert.Error(t, ValidateChunks(chunks))
}
