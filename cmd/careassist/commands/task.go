package commands

import (
	"context"
	"errors"
	"fmt"

	"careassist/internal/infra/queue"

	"github.com/urfave/cli/v3"
)

// TaskStatusAction 查询异步入库任务
func TaskStatusAction(ctx context.Context, cmd *cli.Command) error {
	id, err := firstArg(cmd, "task-id")
	if err != nil {
		return err
	}

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Container.Queue == nil {
		return fmt.Errorf("异步入库未启用")
	}
	status, err := app.Container.Queue.TaskStatus(ctx, id)
	if errors.Is(err, queue.ErrTaskNotFound) {
		return fmt.Errorf("任务 %s 不存在或已过期", id)
	}
	if err != nil {
		return fmt.Errorf("查询任务失败: %w", err)
	}
	return printJSON(status)
}
