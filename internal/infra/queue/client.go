package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"careassist/internal/config"
	"careassist/internal/worker/tasks"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// ErrTaskNotFound 任务不存在或已过期
var ErrTaskNotFound = errors.New("任务不存在")

// TaskStatus 任务状态
type TaskStatus struct {
	ID        string                  `json:"id"`
	State     string                  `json:"state"`
	Retried   int                     `json:"retried"`
	MaxRetry  int                     `json:"max_retry"`
	LastError string                  `json:"last_error,omitempty"`
	Result    *tasks.IngestFileResult `json:"result,omitempty"`
}

// Client 任务队列客户端接口
type Client interface {
	EnqueueIngestFile(ctx context.Context, payload tasks.IngestFilePayload) (string, error)
	TaskStatus(ctx context.Context, id string) (*TaskStatus, error)
	Close() error
}

// Options 入队参数
type Options struct {
	MaxRetry  int
	Timeout   time.Duration
	Retention time.Duration
}

type asynqClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	opts      Options
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig, opts Options) Client {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}

	return &asynqClient{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		opts:      opts,
	}
}

func (c *asynqClient) EnqueueIngestFile(ctx context.Context, payload tasks.IngestFilePayload) (string, error) {
	if payload.Filename == "" {
		return "", fmt.Errorf("文件名不能为空")
	}
	if payload.Target == "" {
		payload.Target = tasks.TargetStore
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeIngestFile, data)

	// 结果保留一段时间供状态查询
	info, err := c.client.EnqueueContext(ctx, task,
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.Timeout(c.opts.Timeout),
		asynq.Retention(c.opts.Retention),
		asynq.Queue(tasks.QueueIngest),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue task failed: %w", err)
	}
	return info.ID, nil
}

func (c *asynqClient) TaskStatus(ctx context.Context, id string) (*TaskStatus, error) {
	info, err := c.inspector.GetTaskInfo(tasks.QueueIngest, id)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	return statusFromInfo(info), nil
}

func statusFromInfo(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		ID:        info.ID,
		State:     info.State.String(),
		Retried:   info.Retried,
		MaxRetry:  info.MaxRetry,
		LastError: info.LastErr,
	}
	if len(info.Result) > 0 {
		var result tasks.IngestFileResult
		if err := json.Unmarshal(info.Result, &result); err == nil {
			status.Result = &result
		}
	}
	return status
}

func (c *asynqClient) Close() error {
	errInspector := c.inspector.Close()
	if err := c.client.Close(); err != nil {
		return err
	}
	return errInspector
}
