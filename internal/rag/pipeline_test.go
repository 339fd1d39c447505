package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainExtractor struct{}

func (plainExtractor) Extract(filename, _ string, data []byte) (string, error) {
	if strings.HasSuffix(filename, ".docx") {
		return "", ErrUnsupportedFormat
	}
	return string(data), nil
}

type slowIndexer struct{}

func (slowIndexer) Name() string { return "slow" }

func (slowIndexer) IndexChunks(ctx context.Context, _ []Chunk) (int, error) {
	<-ctx.Done()
	return 0, NewError(KindEmbedding, "slow", ctx.Err())
}

func newTestPipeline(t *testing.T, indexer Indexer, opts PipelineOptions) *Pipeline {
	t.Helper()
	return NewPipeline(plainExtractor{}, NewChunker(DefaultChunkOptions()), indexer, opts)
}

func TestPipelineIngest(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})
	p := newTestPipeline(t, client, PipelineOptions{})

	res, err := p.Ingest(context.Background(), Document{Name: "plan.txt", Content: []byte(strings.Repeat("b", 2500))})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 2500, res.Characters)
	assert.Equal(t, "pinecone", res.Backend)
	assert.Equal(t, int64(0), res.ProcessingSeconds())
	assert.Equal(t, 4, fake.count())
}

func TestPipelineRejectsOversizedFile(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})
	p := newTestPipeline(t, client, PipelineOptions{MaxBytes: 10})

	_, err := p.Ingest(context.Background(), Document{Name: "big.txt", Content: []byte(strings.Repeat("x", 11))})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFileTooLarge))
	assert.Equal(t, StepValidate, StepOf(err))
	assert.Equal(t, ReasonInput, ReasonOf(err))

	upserts, _, _ := fake.calls()
	assert.Zero(t, upserts)
}

func TestPipelineExtractionFailures(t *testing.T) {
	p := newTestPipeline(t, recordingIndexer{}, PipelineOptions{})

	_, err := p.Ingest(context.Background(), Document{Name: "form.docx", Content: []byte("PK")})
	require.Error(t, err)
	assert.Equal(t, StepExtract, StepOf(err))
	assert.Equal(t, ReasonFormat, ReasonOf(err))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = p.Ingest(context.Background(), Document{Name: "blank.txt", Content: []byte("   \n\t ")})
	require.Error(t, err)
	assert.Equal(t, StepExtract, StepOf(err))
	assert.True(t, errors.Is(err, ErrEmptyText))
}

func TestPipelineSparseTextFailsAtChunkStep(t *testing.T) {
	p := newTestPipeline(t, recordingIndexer{}, PipelineOptions{})

	_, err := p.Ingest(context.Background(), Document{Name: "sparse.txt", Content: []byte(sparseText())})
	require.Error(t, err)
	assert.Equal(t, StepChunk, StepOf(err))
	assert.Equal(t, KindChunking, KindOf(err))
}

func TestPipelineEmbedFailureTagsStep(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{failWith: errors.New("quota exceeded")}, fake.store(t), StoreClientOptions{})
	p := newTestPipeline(t, client, PipelineOptions{})

	_, err := p.Ingest(context.Background(), Document{Name: "plan.txt", Content: []byte(strings.Repeat("c", 300))})
	require.Error(t, err)
	assert.Equal(t, StepEmbed, StepOf(err))
	assert.Equal(t, KindEmbedding, KindOf(err))
}

func TestPipelineTimeout(t *testing.T) {
	p := newTestPipeline(t, slowIndexer{}, PipelineOptions{Timeout: 20 * time.Millisecond})

	_, err := p.Ingest(context.Background(), Document{Name: "plan.txt", Content: []byte(strings.Repeat("d", 300))})
	require.Error(t, err)
	assert.Equal(t, ReasonTimeout, ReasonOf(err))
}

func TestPipelineWordsStrategy(t *testing.T) {
	p := NewPipeline(plainExtractor{}, NewChunker(ChunkOptions{Size: 7, Overlap: 0, MinLength: 0}), recordingIndexer{}, PipelineOptions{Strategy: StrategyWords})

	res, err := p.Ingest(context.Background(), Document{Name: "w.txt", Content: []byte("one two three four")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Chunks)
}

type recordingIndexer struct{}

func (recordingIndexer) Name() string { return "recording" }

func (recordingIndexer) IndexChunks(_ context.Context, chunks []Chunk) (int, error) {
	return len(chunks), nil
}
