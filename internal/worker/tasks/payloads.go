package tasks

// Task Types
const (
	TypeIngestFile = "ingest:file"
)

// 目标流水线
const (
	TargetStore     = "store"     // 滑动窗口分块，写入主向量库
	TargetVectorize = "vectorize" // 按词分块，上传至托管管道
)

// QueueIngest 入库专用队列
const QueueIngest = "ingest"

// IngestFilePayload 文件入库任务载荷
// Content 在 JSON 中以 base64 编码
type IngestFilePayload struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	Content   []byte `json:"content"`
	Target    string `json:"target"`
	RequestID string `json:"request_id,omitempty"`
}

// IngestFileResult 任务结果，写入 asynq 任务结果
type IngestFileResult struct {
	Filename          string `json:"filename"`
	Chunks            int    `json:"chunks"`
	Characters        int    `json:"characters"`
	Backend           string `json:"backend"`
	ProcessingSeconds int64  `json:"processing_seconds"`
}
