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

func testChunks(t *testing.T, filename string, length int) []Chunk {
	t.Helper()
	c := NewChunker(DefaultChunkOptions())
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c.SlidingWindow(strings.Repeat("a", length), filename)
}

func TestStoreClientIndexAndCount(t *testing.T) {
	fake := newFakePinecone(t)
	emb := &fakeEmbedder{}
	client := NewStoreClient(emb, fake.store(t), StoreClientOptions{EmbedBatchSize: 2, UpsertBatchSize: 3})

	chunks := testChunks(t, "plan.txt", 2500)
	require.Len(t, chunks, 4)

	n, err := client.IndexChunks(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []int{2, 2}, emb.batches)

	upserts, _, _ := fake.calls()
	assert.Equal(t, 2, upserts)

	count, err := client.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestStoreClientReingestOverwrites(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})

	_, err := client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 2500))
	require.NoError(t, err)
	_, err = client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 2500))
	require.NoError(t, err)

	assert.Equal(t, 4, fake.count())
}

func TestStoreClientClearAllTwice(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})

	_, err := client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 1200))
	require.NoError(t, err)

	require.NoError(t, client.ClearAll(context.Background()))
	require.NoError(t, client.ClearAll(context.Background()))

	count, err := client.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStoreClientClearByFilename(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})

	_, err := client.IndexChunks(context.Background(), testChunks(t, "a.txt", 1200))
	require.NoError(t, err)
	_, err = client.IndexChunks(context.Background(), testChunks(t, "b.txt", 1200))
	require.NoError(t, err)

	require.NoError(t, client.ClearByFilename(context.Background(), "a.txt"))
	assert.Equal(t, 2, fake.count())

	err = client.ClearByFilename(context.Background(), "")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestStoreClientUpsertFailFast(t *testing.T) {
	fake := newFakePinecone(t)
	fake.failUpsertFrom = 2
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{UpsertBatchSize: 1})

	_, err := client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 2500))
	require.Error(t, err)
	assert.Equal(t, KindUpsert, KindOf(err))
	assert.Equal(t, StepUpsert, StepOf(err))
	assert.Equal(t, ReasonBackend, ReasonOf(err))

	// 第 2 批失败后不再尝试后续批次，httputil 对 5xx 重试一次
	upserts, _, _ := fake.calls()
	assert.Equal(t, 3, upserts)
	assert.Equal(t, 1, fake.count())
}

func TestStoreClientEmbedFailure(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{failWith: errors.New("quota")}, fake.store(t), StoreClientOptions{})

	_, err := client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 1200))
	require.Error(t, err)
	assert.Equal(t, KindEmbedding, KindOf(err))
	assert.Equal(t, StepEmbed, StepOf(err))

	upserts, _, _ := fake.calls()
	assert.Zero(t, upserts)
}

func TestStoreClientSearchReturnsMetadata(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})

	_, err := client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 1200))
	require.NoError(t, err)

	matches, err := client.Search(context.Background(), "deductible", 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "plan.txt", matches[0].Metadata.Filename)
	assert.Equal(t, 2, matches[0].Metadata.TotalChunks)
	assert.NotEmpty(t, matches[0].Text)
}

func TestStoreClientQueryFailureIsRetrievalError(t *testing.T) {
	fake := newFakePinecone(t)
	fake.setFailQuery(true)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})

	_, err := client.Search(context.Background(), "copay", 5)
	require.Error(t, err)
	assert.Equal(t, KindRetrieval, KindOf(err))
}
