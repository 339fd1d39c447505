package builtin

import (
	"context"

	"careassist/internal/rag"
	"careassist/internal/tools"
)

// Retriever 检索编排能力
type Retriever interface {
	Retrieve(ctx context.Context, query string) rag.RetrievalResult
}

// SearchDocumentsTool 知识库检索工具
type SearchDocumentsTool struct {
	retriever Retriever
}

// NewSearchDocumentsTool 创建文档检索工具
func NewSearchDocumentsTool(retriever Retriever) *SearchDocumentsTool {
	return &SearchDocumentsTool{retriever: retriever}
}

// FormatSearchResults 给检索上下文加上固定的前后缀说明
func FormatSearchResults(contextDocuments string) string {
	return "DOCUMENT SEARCH RESULTS:\n\n" + contextDocuments +
		"\n\nIMPORTANT: Base your answer ONLY on the information above. Format with proper bullet points (•), bold important terms, and NO disclaimers or hedge words."
}

// Execute 执行检索，空索引返回 "No relevant documents found." 而不是错误
func (t *SearchDocumentsTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	query, _ := input["query"].(string)
	result := t.retriever.Retrieve(ctx, query)
	return FormatSearchResults(result.ContextDocuments), nil
}

// Validate 验证输入
func (t *SearchDocumentsTool) Validate(input map[string]any) error {
	return tools.ValidateRequired(input, "query")
}

// GetDefinition 获取工具定义
func (t *SearchDocumentsTool) GetDefinition() *tools.ToolDefinition {
	return &tools.ToolDefinition{
		Name:        "searchDocuments",
		DisplayName: "文档检索",
		Description: "Search through vectorized documents to find relevant information based on questions regarding Health Insurance and Medical procedures",
		Category:    "search",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query to find relevant documents",
				},
			},
			"required": []string{"query"},
		},
		ErrorPrefix: "Error searching documents",
		Timeout:     30,
		Status:      "active",
	}
}
