package tools

import "time"

// ToolDefinition 工具定义
type ToolDefinition struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Category    string `json:"category"` // search, cost, document

	// 参数定义（JSON Schema）
	Parameters map[string]any `json:"parameters"`

	// ErrorPrefix 处理器出错时拼在错误信息前，如 "Error searching documents"
	ErrorPrefix string `json:"-"`

	Timeout int    `json:"timeout"` // 超时时间（秒），0 使用分发器默认值
	Status  string `json:"status"`  // active, disabled
}

// Required 参数 schema 中的必填字段
func (d *ToolDefinition) Required() []string {
	switch v := d.Parameters["required"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			if str, ok := s.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Result 分发结果，始终是结构化值，不会以错误形式返回
type Result struct {
	Success        bool     `json:"success"`
	Data           any      `json:"data,omitempty"`
	Error          string   `json:"error,omitempty"`
	AvailableTools []string `json:"availableTools,omitempty"`
}

// Text 结果的文本形式，供 MCP 与聊天模型消费
func (r Result) Text() string {
	if !r.Success {
		return r.Error
	}
	return stringify(r.Data)
}

// ToolExecution 工具执行记录
type ToolExecution struct {
	ID       string `json:"id" gorm:"primaryKey;size:36"`
	ToolName string `json:"toolName" gorm:"size:100;not null;index"`

	// 调用来源: http, sse, jsonrpc, mcp, agent, cli
	Source    string `json:"source" gorm:"size:20"`
	SessionID string `json:"sessionId" gorm:"size:64;index"`
	RequestID string `json:"requestId" gorm:"size:64"`

	// 输入输出
	Input        map[string]any `json:"input" gorm:"type:text;serializer:json"`
	Output       string         `json:"output" gorm:"type:text"`
	ErrorMessage *string        `json:"errorMessage,omitempty" gorm:"type:text"`

	// 执行状态
	Status      string     `json:"status" gorm:"size:20;not null"` // running, success, failed
	StartedAt   time.Time  `json:"startedAt" gorm:"not null"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Duration    int64      `json:"duration"` // 执行时长（毫秒）

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
}

// TableName 表名
func (ToolExecution) TableName() string { return "tool_executions" }
