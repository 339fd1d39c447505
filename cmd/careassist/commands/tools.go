package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"careassist/internal/tools"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// ToolsListAction 列出已注册工具
func ToolsListAction(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Category", "Required", "Description")
	for _, def := range app.Container.Registry.List() {
		_ = table.Append(
			def.Name,
			def.Category,
			strings.Join(def.Required(), ", "),
			truncateString(def.Description, 60),
		)
	}
	_ = table.Render()
	return nil
}

// ToolsCallAction 调用工具并输出结构化结果
func ToolsCallAction(ctx context.Context, cmd *cli.Command) error {
	name, err := firstArg(cmd, "name")
	if err != nil {
		return err
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(cmd.String("input")), &input); err != nil {
		return fmt.Errorf("--input 不是合法的 JSON 对象: %w", err)
	}

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	result := app.Container.Dispatcher.Execute(ctx, &tools.ExecutionRequest{
		ToolName:  name,
		Input:     input,
		Source:    cliSource,
		SessionID: app.Container.Session.ID(),
	})
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("工具 %s 执行失败", name)
	}
	return nil
}

// ToolsHistoryAction 最近的执行记录
func ToolsHistoryAction(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.DB == nil {
		return fmt.Errorf("未配置数据库，没有执行记录")
	}
	executions, err := app.Container.Dispatcher.History(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("查询执行记录失败: %w", err)
	}
	if len(executions) == 0 {
		fmt.Println("暂无执行记录")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Started", "Tool", "Source", "Status", "Duration(ms)")
	for _, e := range executions {
		_ = table.Append(
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.ToolName,
			e.Source,
			e.Status,
			fmt.Sprintf("%d", e.Duration),
		)
	}
	_ = table.Render()
	return nil
}
