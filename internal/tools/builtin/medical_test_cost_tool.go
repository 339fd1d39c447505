package builtin

import (
	"context"

	"careassist/internal/tools"
)

// CostLookup 费用查询能力
type CostLookup interface {
	Lookup(ctx context.Context, testName string) (string, error)
}

// MedicalTestCostTool 医疗检查费用查询工具
type MedicalTestCostTool struct {
	lookup CostLookup
}

// NewMedicalTestCostTool 创建费用查询工具
func NewMedicalTestCostTool(lookup CostLookup) *MedicalTestCostTool {
	return &MedicalTestCostTool{lookup: lookup}
}

// Execute 原样返回查询服务给出的文本
func (t *MedicalTestCostTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	testName, _ := input["testName"].(string)
	return t.lookup.Lookup(ctx, testName)
}

// Validate 验证输入
func (t *MedicalTestCostTool) Validate(input map[string]any) error {
	return tools.ValidateRequired(input, "testName")
}

// GetDefinition 获取工具定义
func (t *MedicalTestCostTool) GetDefinition() *tools.ToolDefinition {
	return &tools.ToolDefinition{
		Name:        "getMedicalTestCost",
		DisplayName: "检查费用查询",
		Description: "Search for cost estimates of medical tests and procedures using web search",
		Category:    "cost",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"testName": map[string]any{
					"type":        "string",
					"description": "The name of the medical test or procedure to search for cost information",
				},
			},
			"required": []string{"testName"},
		},
		ErrorPrefix: "Error getting medical test cost",
		Timeout:     30,
		Status:      "active",
	}
}
