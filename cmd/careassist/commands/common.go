package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"careassist/internal/bootstrap"

	"github.com/urfave/cli/v3"
)

// cliSource 工具执行记录中的调用来源
const cliSource = "cli"

// openApp 按全局参数初始化组件，调用方负责 Close
func openApp(ctx context.Context, cmd *cli.Command) (*bootstrap.App, error) {
	app, err := bootstrap.Open(ctx, bootstrap.Options{
		Env:        cmd.String("env"),
		ConfigPath: cmd.String("config"),
		LogLevel:   cmd.String("log-level"),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化失败: %w", err)
	}
	return app, nil
}

// firstArg 取第一个位置参数
func firstArg(cmd *cli.Command, name string) (string, error) {
	arg := strings.TrimSpace(cmd.Args().First())
	if arg == "" {
		return "", fmt.Errorf("缺少参数 <%s>", name)
	}
	return arg, nil
}

// printJSON 缩进输出
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// truncateString 按 rune 截断
func truncateString(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
