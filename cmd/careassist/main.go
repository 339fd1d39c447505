package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"careassist/cmd/careassist/commands"
	"careassist/internal/bootstrap"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootstrap.LoadEnvFile(true)

	envFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "env",
			Usage: "配置环境 dev/prod/test，默认读取 APP_ENV",
		},
		&cli.StringFlag{
			Name:  "config",
			Usage: "配置文件路径",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "日志级别",
			Value: "warn",
		},
	}

	app := &cli.Command{
		Name:  "careassist",
		Usage: "医疗文档入库、检索与工具调用命令行",
		Flags: envFlags,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "上传文档到向量库",
				ArgsUsage: "<file>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "target",
						Usage: "入库目标 store/vectorize",
						Value: "store",
					},
					&cli.BoolFlag{
						Name:  "async",
						Usage: "投递到异步队列，需要 Redis 与 worker",
					},
				},
				Action: commands.IngestAction,
			},
			{
				Name:      "search",
				Usage:     "检索已上传的文档",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "context",
						Usage: "同时输出拼接后的上下文",
					},
				},
				Action: commands.SearchAction,
			},
			{
				Name:  "session",
				Usage: "会话管理",
				Commands: []*cli.Command{
					{
						Name:   "info",
						Usage:  "显示文档数量与会话配置",
						Action: commands.SessionInfoAction,
					},
					{
						Name:   "clear",
						Usage:  "清空向量库中的全部文档",
						Flags:  []cli.Flag{&cli.BoolFlag{Name: "yes", Usage: "跳过确认"}},
						Action: commands.SessionClearAction,
					},
				},
			},
			{
				Name:  "tools",
				Usage: "工具管理",
				Commands: []*cli.Command{
					{
						Name:   "list",
						Usage:  "列出已注册工具",
						Action: commands.ToolsListAction,
					},
					{
						Name:      "call",
						Usage:     "调用工具",
						ArgsUsage: "<name>",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "input",
								Usage: "JSON 格式的参数",
								Value: "{}",
							},
						},
						Action: commands.ToolsCallAction,
					},
					{
						Name:  "history",
						Usage: "最近的工具执行记录，需要数据库",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "limit", Value: 20},
						},
						Action: commands.ToolsHistoryAction,
					},
				},
			},
			{
				Name:      "task",
				Usage:     "查询异步入库任务状态",
				ArgsUsage: "<task-id>",
				Action:    commands.TaskStatusAction,
			},
			{
				Name:  "migrate",
				Usage: "把 pgvector 中的向量迁移到其他向量库",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "to",
						Usage: "目标向量库 qdrant/pinecone",
						Value: "qdrant",
					},
					&cli.IntFlag{
						Name:  "batch",
						Usage: "每批迁移的向量数量",
						Value: 200,
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "仅打印不写入",
					},
				},
				Action: commands.MigrateAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
