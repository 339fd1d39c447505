package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestratorPrimaryHit(t *testing.T) {
	primary := &stubBackend{name: "pinecone", matches: []Match{
		{ID: "a_chunk_0", Score: 0.9, Text: "Deductible is $500", Metadata: ChunkMetadata{Filename: "plan.pdf"}},
		{ID: "x", Score: 0.5, Text: "untitled"},
	}}
	secondary := &stubBackend{name: "vectorize"}
	o := NewOrchestrator([]SearchBackend{primary, secondary}, OrchestratorOptions{})

	res := o.Retrieve(context.Background(), "deductible")
	assert.Equal(t, "pinecone", res.Backend)
	assert.Equal(t, "[plan.pdf]\nDeductible is $500\n\n[Document 2]\nuntitled", res.ContextDocuments)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "plan.pdf", res.Sources[0].Title)
	assert.Equal(t, 0.9, res.Sources[0].Similarity)
	assert.Zero(t, secondary.calls)
}

func TestOrchestratorFallsBackOnError(t *testing.T) {
	primary := &stubBackend{name: "pinecone", err: errors.New("down")}
	secondary := &stubBackend{name: "vectorize", matches: []Match{
		{ID: "v1", Text: "Copay $20", Metadata: ChunkMetadata{SourceDisplayName: "Booklet"}},
	}}
	o := NewOrchestrator([]SearchBackend{primary, secondary}, OrchestratorOptions{})

	res := o.Retrieve(context.Background(), "copay")
	assert.Equal(t, "vectorize", res.Backend)
	assert.Equal(t, "[Booklet]\nCopay $20", res.ContextDocuments)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestOrchestratorAllBackendsDown(t *testing.T) {
	o := NewOrchestrator([]SearchBackend{
		&stubBackend{name: "pinecone", err: errors.New("down")},
		&stubBackend{name: "vectorize", err: errors.New("down")},
	}, OrchestratorOptions{})

	res := o.Retrieve(context.Background(), "anything")
	assert.Equal(t, FallbackMessage, res.ContextDocuments)
	assert.NotNil(t, res.Sources)
	assert.Empty(t, res.Sources)
}

func TestOrchestratorEmptyDoesNotFallThroughByDefault(t *testing.T) {
	primary := &stubBackend{name: "pinecone"}
	secondary := &stubBackend{name: "vectorize", matches: []Match{{ID: "v1", Text: "x"}}}
	o := NewOrchestrator([]SearchBackend{primary, secondary}, OrchestratorOptions{})

	res := o.Retrieve(context.Background(), "anything")
	assert.Equal(t, NoDocumentsMessage, res.ContextDocuments)
	assert.Equal(t, "pinecone", res.Backend)
	assert.Zero(t, secondary.calls)
}

func TestOrchestratorFallbackOnEmptyPolicy(t *testing.T) {
	primary := &stubBackend{name: "pinecone"}
	secondary := &stubBackend{name: "vectorize", matches: []Match{{ID: "v1", Text: "x", Metadata: ChunkMetadata{Source: "s3://b"}}}}
	o := NewOrchestrator([]SearchBackend{primary, secondary}, OrchestratorOptions{Policy: FallbackPolicy{FallbackOnEmpty: true}})

	res := o.Retrieve(context.Background(), "anything")
	assert.Equal(t, "vectorize", res.Backend)
	assert.Equal(t, "[s3://b]\nx", res.ContextDocuments)
}

func TestOrchestratorEmptyEverywhereWithPolicy(t *testing.T) {
	o := NewOrchestrator([]SearchBackend{
		&stubBackend{name: "pinecone"},
		&stubBackend{name: "vectorize", err: errors.New("down")},
	}, OrchestratorOptions{Policy: FallbackPolicy{FallbackOnEmpty: true}})

	res := o.Retrieve(context.Background(), "anything")
	assert.Equal(t, NoDocumentsMessage, res.ContextDocuments)
	assert.Equal(t, "pinecone", res.Backend)
}

func TestOrchestratorEndToEndWithPinecone(t *testing.T) {
	fake := newFakePinecone(t)
	client := NewStoreClient(&fakeEmbedder{}, fake.store(t), StoreClientOptions{})
	o := NewOrchestrator([]SearchBackend{client}, OrchestratorOptions{TopK: 1})

	res := o.Retrieve(context.Background(), "anything")
	assert.Equal(t, NoDocumentsMessage, res.ContextDocuments)

	_, err := client.IndexChunks(context.Background(), testChunks(t, "plan.txt", 1200))
	require.NoError(t, err)

	res = o.Retrieve(context.Background(), "anything")
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "plan.txt", res.Sources[0].Title)
	assert.Contains(t, res.ContextDocuments, "[plan.txt]\n")

	fake.setFailQuery(true)
	res = o.Retrieve(context.Background(), "anything")
	assert.Equal(t, FallbackMessage, res.ContextDocuments)
}
