package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
)

// fakePinecone 内存版 Pinecone 数据面
type fakePinecone struct {
	mu          sync.Mutex
	vectors     map[string]pineconeVector
	upsertCalls int
	queryCalls  int
	deleteCalls int
	// failUpsertFrom 从第 N 次 upsert 起返回 500，0 表示不注入
	failUpsertFrom int
	failQuery      bool
	server         *httptest.Server
}

func newFakePinecone(t *testing.T) *fakePinecone {
	t.Helper()
	f := &fakePinecone{vectors: map[string]pineconeVector{}}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakePinecone) store(t *testing.T) *PineconeStore {
	t.Helper()
	s, err := NewPineconeStore(PineconeOptions{
		APIKey:     "test-key",
		IndexHost:  f.server.URL,
		HTTPClient: f.server.Client(),
	})
	if err != nil {
		t.Fatalf("创建 pinecone store 失败: %v", err)
	}
	return s
}

func (f *fakePinecone) setFailQuery(fail bool) {
	f.mu.Lock()
	f.failQuery = fail
	f.mu.Unlock()
}

func (f *fakePinecone) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.vectors)
}

func (f *fakePinecone) calls() (upserts, queries, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls, f.queryCalls, f.deleteCalls
}

func (f *fakePinecone) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Api-Key") != "test-key" {
		http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/vectors/upsert":
		f.upsertCalls++
		if f.failUpsertFrom > 0 && f.upsertCalls >= f.failUpsertFrom {
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}
		var req pineconeUpsertRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, v := range req.Vectors {
			f.vectors[v.ID] = v
		}
		_ = json.NewEncoder(w).Encode(map[string]int{"upsertedCount": len(req.Vectors)})

	case "/query":
		f.queryCalls++
		if f.failQuery {
			http.Error(w, `{"message":"unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		var req pineconeQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		type scored struct {
			v     pineconeVector
			score float64
		}
		all := make([]scored, 0, len(f.vectors))
		for _, v := range f.vectors {
			all = append(all, scored{v: v, score: dot(req.Vector, v.Values)})
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].score == all[j].score {
				return all[i].v.ID < all[j].v.ID
			}
			return all[i].score > all[j].score
		})
		if len(all) > req.TopK {
			all = all[:req.TopK]
		}
		matches := make([]map[string]any, 0, len(all))
		for _, s := range all {
			matches = append(matches, map[string]any{"id": s.v.ID, "score": s.score, "metadata": s.v.Metadata})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"matches": matches})

	case "/describe_index_stats":
		_ = json.NewEncoder(w).Encode(map[string]any{"totalVectorCount": len(f.vectors)})

	case "/vectors/delete":
		f.deleteCalls++
		var req pineconeDeleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.DeleteAll {
			if len(f.vectors) == 0 {
				http.Error(w, `{"message":"Namespace not found"}`, http.StatusNotFound)
				return
			}
			f.vectors = map[string]pineconeVector{}
		}
		for id, v := range f.vectors {
			if matchesFilter(v.Metadata, req.Filter) {
				delete(f.vectors, id)
			}
		}
		_, _ = w.Write([]byte(`{}`))

	default:
		http.NotFound(w, r)
	}
}

func matchesFilter(meta map[string]any, filter map[string]any) bool {
	if len(filter) == 0 {
		return false
	}
	for k, cond := range filter {
		eq, _ := cond.(map[string]any)
		if fmt.Sprint(meta[k]) != fmt.Sprint(eq["$eq"]) {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		if i < len(b) {
			s += float64(a[i]) * float64(b[i])
		}
	}
	return s
}

// fakeEmbedder 按文本长度生成确定向量
type fakeEmbedder struct {
	mu       sync.Mutex
	batches  []int
	failWith error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches = append(e.batches, len(texts))
	e.mu.Unlock()
	if e.failWith != nil {
		return nil, e.failWith
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%97) / 97, 1}
	}
	return out, nil
}

func (e *fakeEmbedder) GetModel() string        { return "fake-embedding" }
func (e *fakeEmbedder) GetProviderName() string { return "fake" }

// stubBackend 可编排结果的检索后端
type stubBackend struct {
	name    string
	matches []Match
	err     error
	calls   int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Search(_ context.Context, _ string, _ int) ([]Match, error) {
	b.calls++
	return b.matches, b.err
}
