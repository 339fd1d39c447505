package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"
)

// SearchAction 检索文档并打印来源
func SearchAction(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("缺少参数 <query>")
	}

	app, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	result := app.Container.Retrieval.Retrieve(ctx, query)
	if len(result.Sources) == 0 {
		fmt.Println(result.ContextDocuments)
		return nil
	}

	fmt.Printf("后端: %s\n\n", result.Backend)
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Title", "Similarity", "Snippet")
	for i, src := range result.Sources {
		_ = table.Append(
			fmt.Sprintf("%d", i+1),
			truncateString(src.Title, 40),
			fmt.Sprintf("%.3f", src.Similarity),
			truncateString(src.Snippet, 80),
		)
	}
	_ = table.Render()

	if cmd.Bool("context") {
		fmt.Println()
		fmt.Println(result.ContextDocuments)
	}
	return nil
}
