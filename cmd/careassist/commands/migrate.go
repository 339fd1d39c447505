package commands

import (
	"context"
	"fmt"

	"careassist/api"
	"careassist/internal/rag"

	"github.com/urfave/cli/v3"
)

// MigrateAction 从 pgvector 分批导出向量写入目标库，不重新向量化
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	target := cmd.String("to")
	batchSize := int(cmd.Int("batch"))
	dryRun := cmd.Bool("dry-run")
	if batchSize <= 0 {
		batchSize = 200
	}
	if target == "pgvector" || target == "vectorize" {
		return fmt.Errorf("不支持迁移到 %s", target)
	}

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	if app.DB == nil || cfg.Database.Driver != "postgres" {
		return fmt.Errorf("迁移需要 postgres 数据库连接")
	}
	source, err := rag.NewPGVectorStore(app.DB, cfg.VectorStore.PGVector.Table, cfg.AI.OpenAI.Dimension)
	if err != nil {
		return fmt.Errorf("初始化 pgvector 失败: %w", err)
	}
	dest, err := api.BuildVectorStore(target, cfg, app.DB)
	if err != nil {
		return fmt.Errorf("初始化 %s 失败: %w", target, err)
	}

	total := 0
	for {
		records, err := source.Export(ctx, total, batchSize)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			break
		}

		if dryRun {
			fmt.Printf("[dry-run] 计划迁移 %d 条向量\n", len(records))
		} else if err := dest.Upsert(ctx, records); err != nil {
			return fmt.Errorf("写入 %s 失败: %w", target, err)
		}

		total += len(records)
		fmt.Printf("已处理 %d 条向量\n", total)
	}

	fmt.Printf("迁移完成，总计 %d 条向量\n", total)
	return nil
}
