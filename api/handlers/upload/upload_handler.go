package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"time"

	response "careassist/api/handlers/common"
	"careassist/internal/infra/queue"
	"careassist/internal/logger"
	"careassist/internal/rag"
	"careassist/internal/rag/parsers"
	"careassist/internal/worker/tasks"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Ingester 入库流水线
type Ingester interface {
	Ingest(ctx context.Context, doc rag.Document) (*rag.IngestResult, error)
	MaxBytes() int64
}

// TaskQueue 异步入库队列
type TaskQueue interface {
	EnqueueIngestFile(ctx context.Context, payload tasks.IngestFilePayload) (string, error)
	TaskStatus(ctx context.Context, id string) (*queue.TaskStatus, error)
}

// UploadResponse /api/upload 成功响应
type UploadResponse struct {
	Message        string `json:"message"`
	Chunks         int    `json:"chunks"`
	Characters     int    `json:"characters"`
	ProcessingTime int64  `json:"processingTime"`
}

// VectorizeUploadResponse /api/upload-vectorize 成功响应
type VectorizeUploadResponse struct {
	Message    string `json:"message"`
	Chunks     int    `json:"chunks"`
	Characters int    `json:"characters"`
	Filename   string `json:"filename"`
}

// QueuedResponse 异步入库已受理
type QueuedResponse struct {
	Message  string `json:"message"`
	TaskID   string `json:"taskId"`
	Filename string `json:"filename"`
}

// ErrorBody 上传失败响应
type ErrorBody struct {
	Error          string `json:"error"`
	ProcessingTime *int64 `json:"processingTime,omitempty"`
}

// Handler 文件上传处理器
type Handler struct {
	store     Ingester
	vectorize Ingester
	queue     TaskQueue
}

// NewHandler 创建上传处理器，vectorize 与 queue 可为 nil
func NewHandler(store, vectorize Ingester, q TaskQueue) *Handler {
	return &Handler{store: store, vectorize: vectorize, queue: q}
}

// Upload 上传文件，滑动窗口分块写入主向量库
// @Summary 上传文档
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档文件"
// @Param async query bool false "异步处理"
// @Success 200 {object} UploadResponse
// @Success 202 {object} QueuedResponse
// @Failure 400 {object} ErrorBody
// @Failure 413 {object} ErrorBody
// @Failure 500 {object} ErrorBody
// @Failure 504 {object} ErrorBody
// @Router /api/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	start := time.Now()

	data, header, ok := h.readFile(c, h.store.MaxBytes(), "No file uploaded")
	if !ok {
		return
	}
	mimeType := header.Header.Get("Content-Type")

	if c.Query("async") == "true" {
		h.enqueue(c, header.Filename, mimeType, data, tasks.TargetStore)
		return
	}

	result, err := h.store.Ingest(c.Request.Context(), rag.Document{Name: header.Filename, Content: data, MimeType: mimeType})
	elapsed := roundSeconds(time.Since(start))
	if err != nil {
		status, msg := describeError(err, header.Filename)
		logger.WithContext(c.Request.Context()).Error("上传处理失败",
			zap.String("filename", header.Filename),
			zap.Int("status", status),
			zap.Error(err))
		c.JSON(status, ErrorBody{Error: msg, ProcessingTime: &elapsed})
		return
	}

	c.JSON(http.StatusOK, UploadResponse{
		Message:        fmt.Sprintf("Successfully uploaded %s", header.Filename),
		Chunks:         result.Chunks,
		Characters:     result.Characters,
		ProcessingTime: result.ProcessingSeconds(),
	})
}

// UploadVectorize 上传文件，按词分块后交给 Vectorize 连接器
// @Summary 上传文档到 Vectorize
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文档文件"
// @Success 200 {object} VectorizeUploadResponse
// @Failure 400 {object} ErrorBody
// @Failure 503 {object} ErrorBody
// @Router /api/upload-vectorize [post]
func (h *Handler) UploadVectorize(c *gin.Context) {
	if h.vectorize == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorBody{Error: "Vectorize.io is not configured"})
		return
	}

	data, header, ok := h.readFile(c, h.vectorize.MaxBytes(), "No file provided")
	if !ok {
		return
	}
	mimeType := header.Header.Get("Content-Type")

	if c.Query("async") == "true" {
		h.enqueue(c, header.Filename, mimeType, data, tasks.TargetVectorize)
		return
	}

	result, err := h.vectorize.Ingest(c.Request.Context(), rag.Document{Name: header.Filename, Content: data, MimeType: mimeType})
	if err != nil {
		status, msg := describeError(err, header.Filename)
		if errors.Is(err, rag.ErrEmptyText) {
			msg = "No text content found in file"
		}
		logger.WithContext(c.Request.Context()).Error("Vectorize 上传失败",
			zap.String("filename", header.Filename),
			zap.Error(err))
		c.JSON(status, ErrorBody{Error: msg})
		return
	}

	c.JSON(http.StatusOK, VectorizeUploadResponse{
		Message:    fmt.Sprintf("Successfully processed %s", header.Filename),
		Chunks:     result.Chunks,
		Characters: result.Characters,
		Filename:   header.Filename,
	})
}

// TaskStatus 查询异步入库任务
// @Summary 查询入库任务
// @Tags Upload
// @Produce json
// @Param id path string true "任务 ID"
// @Success 200 {object} response.APIResponse{data=queue.TaskStatus}
// @Failure 404 {object} response.ErrorResponse
// @Router /api/upload/tasks/{id} [get]
func (h *Handler) TaskStatus(c *gin.Context) {
	if h.queue == nil {
		response.Fail(c, http.StatusNotFound, "async_disabled", "Async processing is not enabled")
		return
	}
	status, err := h.queue.TaskStatus(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrTaskNotFound) {
		response.Fail(c, http.StatusNotFound, "task_not_found", "Task not found")
		return
	}
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, "task_lookup_failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, response.APIResponse{Success: true, Data: status})
}

func (h *Handler) readFile(c *gin.Context, maxBytes int64, missing string) ([]byte, *multipart.FileHeader, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: missing})
		return nil, nil, false
	}
	defer file.Close()

	if maxBytes > 0 && header.Size > maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorBody{Error: sizeMessage(maxBytes)})
		return nil, nil, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: "Failed to read uploaded file"})
		return nil, nil, false
	}
	return data, header, true
}

func (h *Handler) enqueue(c *gin.Context, filename, mimeType string, data []byte, target string) {
	if h.queue == nil {
		c.JSON(http.StatusBadRequest, ErrorBody{Error: "Async processing is not enabled"})
		return
	}
	ctx := c.Request.Context()
	id, err := h.queue.EnqueueIngestFile(ctx, tasks.IngestFilePayload{
		Filename:  filename,
		MimeType:  mimeType,
		Content:   data,
		Target:    target,
		RequestID: logger.GetRequestID(ctx),
	})
	if err != nil {
		logger.WithContext(ctx).Error("入库任务入队失败", zap.String("filename", filename), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorBody{Error: "Failed to queue upload for processing"})
		return
	}
	c.JSON(http.StatusAccepted, QueuedResponse{
		Message:  fmt.Sprintf("Queued %s for processing", filename),
		TaskID:   id,
		Filename: filename,
	})
}

// describeError 按错误原因与步骤映射状态码与提示
func describeError(err error, filename string) (int, string) {
	var formatErr *parsers.FormatError
	switch {
	case rag.ReasonOf(err) == rag.ReasonTimeout:
		return http.StatusGatewayTimeout, "Upload timed out. Please try with a smaller file or contact support."
	case errors.Is(err, rag.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "File size exceeds limit"
	case errors.Is(err, rag.ErrEmptyText):
		return http.StatusBadRequest, "No text could be extracted from the file"
	case errors.As(err, &formatErr):
		return http.StatusBadRequest, fmt.Sprintf("Failed to extract text from %s: %s", filename, formatErr.Message)
	case errors.Is(err, rag.ErrUnsupportedFormat):
		return http.StatusBadRequest, fmt.Sprintf("Failed to extract text from %s: unsupported file format", filename)
	case rag.ReasonOf(err) == rag.ReasonCredential:
		return http.StatusInternalServerError, "The embedding or vector service rejected the configured credentials."
	}

	switch rag.StepOf(err) {
	case rag.StepEmbed:
		return http.StatusInternalServerError, "Failed to generate embeddings. Please try again."
	case rag.StepUpsert:
		return http.StatusInternalServerError, "Failed to upload to vector database. Please try again."
	case rag.StepValidate:
		if rag.KindOf(err) == rag.KindValidation {
			return http.StatusBadRequest, "Invalid upload request"
		}
	}
	return http.StatusInternalServerError, "Upload failed"
}

func sizeMessage(maxBytes int64) string {
	mb := float64(maxBytes) / (1 << 20)
	if mb == math.Trunc(mb) {
		return fmt.Sprintf("File size exceeds %dMB limit", int64(mb))
	}
	return fmt.Sprintf("File size exceeds %.1fMB limit", mb)
}

func roundSeconds(d time.Duration) int64 {
	return int64(math.Round(d.Seconds()))
}
