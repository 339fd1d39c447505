package builtin

import (
	"careassist/internal/tools"

	"go.uber.org/zap"
)

// Deps 内置工具依赖，Ingester 为 nil 时不注册上传工具
type Deps struct {
	Retriever  Retriever
	CostLookup CostLookup
	Ingester   Ingester
	Logger     *zap.Logger
}

// RegisterAll 注册所有内置工具
func RegisterAll(registry *tools.ToolRegistry, deps Deps) error {
	search := NewSearchDocumentsTool(deps.Retriever)
	if err := registry.Register(search.GetDefinition().Name, search, search.GetDefinition()); err != nil {
		return err
	}

	cost := NewMedicalTestCostTool(deps.CostLookup)
	if err := registry.Register(cost.GetDefinition().Name, cost, cost.GetDefinition()); err != nil {
		return err
	}

	if deps.Ingester != nil {
		upload := NewUploadDocumentTool(deps.Ingester, deps.Logger)
		if err := registry.Register(upload.GetDefinition().Name, upload, upload.GetDefinition()); err != nil {
			return err
		}
	}

	return nil
}
