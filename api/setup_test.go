package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"careassist/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newPineconeStub 只应答统计与清空请求
func newPineconeStub(t *testing.T, count int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/describe_index_stats":
			_ = json.NewEncoder(w).Encode(map[string]any{"totalVectorCount": count})
		case "/vectors/delete":
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *AppContainer) {
	t.Helper()
	cfg, err := config.Load("missing-env-for-test", "")
	require.NoError(t, err)

	stub := newPineconeStub(t, 7)
	cfg.AI.OpenAI.APIKey = "sk-test"
	cfg.VectorStore.Pinecone.APIKey = "pc-test"
	cfg.VectorStore.Pinecone.IndexHost = stub.URL
	cfg.VectorStore.Backends = []string{"pinecone", "vectorize"}
	if mutate != nil {
		mutate(cfg)
	}

	container, err := BuildContainer(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	return SetupRouter(container, NewHandlers(container)), container
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBuildContainer_SkipsUnconfiguredVectorize(t *testing.T) {
	_, container := newTestRouter(t, nil)

	assert.Equal(t, []string{"pinecone"}, container.Retrieval.Backends())
	assert.Nil(t, container.Vectorize)
	assert.Nil(t, container.VectorizePipeline)
	assert.Nil(t, container.Queue)
	assert.ElementsMatch(t,
		[]string{"searchDocuments", "getMedicalTestCost", "uploadDocument"},
		container.Registry.Names())
}

func TestBuildContainer_RejectsUnknownPrimary(t *testing.T) {
	cfg, err := config.Load("missing-env-for-test", "")
	require.NoError(t, err)
	cfg.AI.OpenAI.APIKey = "sk-test"
	cfg.VectorStore.Primary = "milvus"

	_, err = BuildContainer(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus")
}

func TestBuildContainer_PGVectorNeedsPostgres(t *testing.T) {
	cfg, err := config.Load("missing-env-for-test", "")
	require.NoError(t, err)
	cfg.AI.OpenAI.APIKey = "sk-test"
	cfg.VectorStore.Primary = "pgvector"

	_, err = BuildContainer(context.Background(), cfg, nil, nil)
	require.Error(t, err)
}

func TestHealthAndReady(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = serve(router, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	var ready ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "disabled", ready.Database)
	assert.Equal(t, 3, ready.Tools)
}

func TestTransportMetadataRoutes(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	for _, transport := range []string{"http", "sse"} {
		w := serve(router, http.MethodGet, "/"+transport, "")
		require.Equal(t, http.StatusOK, w.Code, transport)

		var meta map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
		assert.Equal(t, transport, meta["transport"])
		assert.EqualValues(t, 3, meta["toolsCount"])
	}
}

func TestSessionInfoRoute(t *testing.T) {
	router, container := newTestRouter(t, nil)

	w := serve(router, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), container.Session.ID())
	assert.Contains(t, w.Body.String(), `"documentCount":7`)
}

func TestUploadVectorizeUnavailable(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := serve(router, http.MethodPost, "/api/upload-vectorize", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRateLimitAppliesToAPI(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.PerMinute = 1
	})

	first := serve(router, http.MethodGet, "/api/tools", "")
	require.Equal(t, http.StatusOK, first.Code)

	second := serve(router, http.MethodGet, "/api/tools", "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// 探针不受限流影响
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health", "").Code)
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := serve(router, http.MethodOptions, "/api/upload", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
