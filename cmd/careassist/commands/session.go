package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// SessionInfoAction 显示向量库文档数与会话配置
func SessionInfoAction(ctx context.Context, cmd *cli.Command) error {
	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	info, err := app.Container.Session.Info(ctx)
	if err != nil {
		return fmt.Errorf("查询会话信息失败: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("项目", "值")
	_ = table.Append("Backend", app.Container.Store.Name())
	_ = table.Append("Documents", fmt.Sprintf("%d", info.DocumentCount))
	_ = table.Append("Clear on start", fmt.Sprintf("%t", info.Config.ClearOnStart))
	_ = table.Append("Clear method", string(info.Config.ClearMethod))
	_ = table.Render()
	return nil
}

// SessionClearAction 清空向量库
func SessionClearAction(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") && !confirm("确认清空向量库中的全部文档? [y/N] ") {
		fmt.Println("已取消")
		return nil
	}

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.Container.Session.ClearCurrent(ctx); err != nil {
		return fmt.Errorf("清空失败: %w", err)
	}
	fmt.Println("Session documents cleared successfully")
	return nil
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
