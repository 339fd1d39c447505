package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"careassist/internal/infra/queue"
	"careassist/internal/rag"
	"careassist/internal/rag/parsers"
	"careassist/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	maxBytes int64
	result   *rag.IngestResult
	err      error
	docs     []rag.Document
}

func (f *fakeIngester) Ingest(_ context.Context, doc rag.Document) (*rag.IngestResult, error) {
	f.docs = append(f.docs, doc)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeIngester) MaxBytes() int64 { return f.maxBytes }

type fakeQueue struct {
	payloads []tasks.IngestFilePayload
	statuses map[string]*queue.TaskStatus
}

func (f *fakeQueue) EnqueueIngestFile(_ context.Context, p tasks.IngestFilePayload) (string, error) {
	f.payloads = append(f.payloads, p)
	return "task-1", nil
}

func (f *fakeQueue) TaskStatus(_ context.Context, id string) (*queue.TaskStatus, error) {
	if s, ok := f.statuses[id]; ok {
		return s, nil
	}
	return nil, queue.ErrTaskNotFound
}

func newRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/upload", h.Upload)
	r.POST("/api/upload-vectorize", h.UploadVectorize)
	r.GET("/api/upload/tasks/:id", h.TaskStatus)
	return r
}

func multipartRequest(t *testing.T, path, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		header := make(map[string][]string)
		header["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		header["Content-Type"] = []string{contentType}
		part, err := mw.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "x"))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUploadSuccess(t *testing.T) {
	store := &fakeIngester{
		maxBytes: 10 << 20,
		result:   &rag.IngestResult{Filename: "labs.txt", Chunks: 4, Characters: 2500, Duration: 2400 * time.Millisecond},
	}
	r := newRouter(NewHandler(store, nil, nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/upload", "labs.txt", "text/plain", []byte("cholesterol panel")))

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Successfully uploaded labs.txt", body["message"])
	assert.EqualValues(t, 4, body["chunks"])
	assert.EqualValues(t, 2500, body["characters"])
	assert.EqualValues(t, 2, body["processingTime"])

	require.Len(t, store.docs, 1)
	assert.Equal(t, "text/plain", store.docs[0].MimeType)
	assert.Equal(t, []byte("cholesterol panel"), store.docs[0].Content)
}

func TestUploadMissingFile(t *testing.T) {
	r := newRouter(NewHandler(&fakeIngester{maxBytes: 10}, nil, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/upload", "", "", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No file uploaded", decode(t, w)["error"])
}

func TestUploadTooLarge(t *testing.T) {
	store := &fakeIngester{maxBytes: 10 << 20}
	r := newRouter(NewHandler(store, nil, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/upload", "big.txt", "text/plain", bytes.Repeat([]byte("a"), 10<<20+1)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "File size exceeds 10MB limit", decode(t, w)["error"])
	assert.Empty(t, store.docs)
}

func TestUploadErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"timeout", &rag.Error{Kind: rag.KindUpsert, Step: rag.StepUpsert, Reason: rag.ReasonTimeout, Err: context.DeadlineExceeded},
			http.StatusGatewayTimeout, "Upload timed out. Please try with a smaller file or contact support."},
		{"empty", rag.NewError(rag.KindExtraction, "", rag.ErrEmptyText),
			http.StatusBadRequest, "No text could be extracted from the file"},
		{"docx", rag.NewError(rag.KindExtraction, "", &parsers.FormatError{Message: parsers.DocxUnsupportedMessage}),
			http.StatusBadRequest, "Failed to extract text from a.txt: " + parsers.DocxUnsupportedMessage},
		{"embed", &rag.Error{Kind: rag.KindEmbedding, Step: rag.StepEmbed, Reason: rag.ReasonBackend, Err: errors.New("503")},
			http.StatusInternalServerError, "Failed to generate embeddings. Please try again."},
		{"upsert", &rag.Error{Kind: rag.KindUpsert, Step: rag.StepUpsert, Reason: rag.ReasonBackend, Err: errors.New("500")},
			http.StatusInternalServerError, "Failed to upload to vector database. Please try again."},
		{"credential", &rag.Error{Kind: rag.KindEmbedding, Step: rag.StepEmbed, Reason: rag.ReasonCredential, Err: errors.New("401")},
			http.StatusInternalServerError, "The embedding or vector service rejected the configured credentials."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(NewHandler(&fakeIngester{maxBytes: 1 << 20, err: tc.err}, nil, nil))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, "/api/upload", "a.txt", "text/plain", []byte("x")))

			assert.Equal(t, tc.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tc.msg, body["error"])
			assert.Contains(t, body, "processingTime")
		})
	}
}

func TestUploadAsync(t *testing.T) {
	q := &fakeQueue{statuses: map[string]*queue.TaskStatus{
		"task-1": {ID: "task-1", State: "completed", Result: &tasks.IngestFileResult{Chunks: 2}},
	}}
	store := &fakeIngester{maxBytes: 1 << 20}
	r := newRouter(NewHandler(store, nil, q))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/upload?async=true", "labs.txt", "text/plain", []byte("abc")))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "task-1", decode(t, w)["taskId"])
	assert.Empty(t, store.docs)
	require.Len(t, q.payloads, 1)
	assert.Equal(t, tasks.TargetStore, q.payloads[0].Target)
	assert.Equal(t, []byte("abc"), q.payloads[0].Content)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/upload/tasks/task-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"completed"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/upload/tasks/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUploadAsyncDisabled(t *testing.T) {
	r := newRouter(NewHandler(&fakeIngester{maxBytes: 1 << 20}, nil, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "/api/upload?async=true", "a.txt", "text/plain", []byte("abc")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadVectorize(t *testing.T) {
	t.Run("未配置", func(t *testing.T) {
		r := newRouter(NewHandler(&fakeIngester{}, nil, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "/api/upload-vectorize", "a.txt", "text/plain", []byte("x")))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("成功", func(t *testing.T) {
		vec := &fakeIngester{maxBytes: 1 << 20, result: &rag.IngestResult{Chunks: 3, Characters: 120}}
		r := newRouter(NewHandler(&fakeIngester{}, vec, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "/api/upload-vectorize", "plan.txt", "text/plain", []byte(strings.Repeat("word ", 24))))

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "Successfully processed plan.txt", body["message"])
		assert.Equal(t, "plan.txt", body["filename"])
		assert.EqualValues(t, 3, body["chunks"])
	})

	t.Run("无文本", func(t *testing.T) {
		vec := &fakeIngester{maxBytes: 1 << 20, err: rag.NewError(rag.KindExtraction, "", rag.ErrEmptyText)}
		r := newRouter(NewHandler(&fakeIngester{}, vec, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "/api/upload-vectorize", "a.txt", "text/plain", []byte(" ")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No text content found in file", decode(t, w)["error"])
	})

	t.Run("缺少文件", func(t *testing.T) {
		r := newRouter(NewHandler(&fakeIngester{}, &fakeIngester{maxBytes: 10}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, multipartRequest(t, "/api/upload-vectorize", "", "", nil))
		assert.Equal(t, "No file provided", decode(t, w)["error"])
	})
}
