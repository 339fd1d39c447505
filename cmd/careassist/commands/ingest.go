package commands

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"careassist/internal/rag"
	"careassist/internal/worker/tasks"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// IngestAction 上传一个或多个文件
func IngestAction(ctx context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return fmt.Errorf("缺少参数 <file>")
	}
	target := cmd.String("target")
	async := cmd.Bool("async")

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	c := app.Container

	var pipeline *rag.Pipeline
	switch target {
	case tasks.TargetStore:
		pipeline = c.StorePipeline
	case tasks.TargetVectorize:
		if c.VectorizePipeline == nil {
			return fmt.Errorf("Vectorize 未配置")
		}
		pipeline = c.VectorizePipeline
	default:
		return fmt.Errorf("未知的入库目标: %s", target)
	}
	if async && c.Queue == nil {
		return fmt.Errorf("异步入库需要启用 Redis 与 worker")
	}

	table := tablewriter.NewWriter(os.Stdout)
	if async {
		table.Header("File", "Task ID")
	} else {
		table.Header("File", "Backend", "Chunks", "Characters", "Seconds")
	}

	var failed int
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "读取 %s 失败: %v\n", path, err)
			failed++
			continue
		}
		if int64(len(data)) > pipeline.MaxBytes() {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, rag.ErrFileTooLarge)
			failed++
			continue
		}
		name := filepath.Base(path)
		mimeType := mime.TypeByExtension(filepath.Ext(path))

		if async {
			id, err := c.Queue.EnqueueIngestFile(ctx, tasks.IngestFilePayload{
				Filename: name,
				MimeType: mimeType,
				Content:  data,
				Target:   target,
			})
			if err != nil {
				fmt.Fprintf(os.Stderr, "投递 %s 失败: %v\n", path, err)
				failed++
				continue
			}
			_ = table.Append(name, id)
			continue
		}

		result, err := pipeline.Ingest(ctx, rag.Document{Name: name, Content: data, MimeType: mimeType})
		if err != nil {
			fmt.Fprintf(os.Stderr, "上传 %s 失败: %v\n", path, err)
			failed++
			continue
		}
		_ = table.Append(
			result.Filename,
			result.Backend,
			fmt.Sprintf("%d", result.Chunks),
			fmt.Sprintf("%d", result.Characters),
			fmt.Sprintf("%d", result.ProcessingSeconds()),
		)
	}
	_ = table.Render()

	if failed > 0 {
		return fmt.Errorf("%d 个文件处理失败", failed)
	}
	return nil
}
