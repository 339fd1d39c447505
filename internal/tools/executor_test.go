package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// initTestDB 创建内存数据库用于测试
func initTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:tool_exec_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	return db
}

type funcTool struct {
	fn func(ctx context.Context, input map[string]any) (any, error)
}

func (f funcTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	return f.fn(ctx, input)
}

func (f funcTool) Validate(input map[string]any) error {
	return ValidateRequired(input, "query")
}

func newTestRegistry(t *testing.T) *ToolRegistry {
	t.Helper()
	r := NewToolRegistry()
	require.NoError(t, r.Register("echo", funcTool{fn: func(_ context.Context, in map[string]any) (any, error) {
		return "echo: " + in["query"].(string), nil
	}}, &ToolDefinition{Name: "echo", Description: "echo"}))
	require.NoError(t, r.Register("broken", funcTool{fn: func(context.Context, map[string]any) (any, error) {
		return nil, errors.New("backend unavailable")
	}}, &ToolDefinition{Name: "broken", ErrorPrefix: "Error searching documents"}))
	require.NoError(t, r.Register("panics", funcTool{fn: func(context.Context, map[string]any) (any, error) {
		panic("nil map")
	}}, &ToolDefinition{Name: "panics"}))
	return r
}

func TestDispatchSuccess(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil, DispatcherOptions{})

	res := d.Dispatch(context.Background(), "echo", map[string]any{"query": "deductible"})
	assert.True(t, res.Success)
	assert.Equal(t, "echo: deductible", res.Data)
	assert.Equal(t, "echo: deductible", res.Text())
}

func TestDispatchUnknownToolListsNames(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil, DispatcherOptions{})

	res := d.Dispatch(context.Background(), "list_documents", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Unknown tool: list_documents", res.Error)
	assert.Equal(t, []string{"echo", "broken", "panics"}, res.AvailableTools)
}

func TestDispatchHandlerErrorAndPanic(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil, DispatcherOptions{})

	res := d.Dispatch(context.Background(), "broken", map[string]any{"query": "x"})
	assert.False(t, res.Success)
	assert.Equal(t, "Error searching documents: backend unavailable", res.Error)

	res = d.Dispatch(context.Background(), "panics", map[string]any{"query": "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "nil map")
}

func TestDispatchValidation(t *testing.T) {
	d := NewDispatcher(newTestRegistry(t), nil, DispatcherOptions{})

	res := d.Dispatch(context.Background(), "echo", map[string]any{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "missing required argument: query")

	res = d.Dispatch(context.Background(), "echo", map[string]any{"query": 42})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "must be a string")
}

func TestDispatchRecordsExecutions(t *testing.T) {
	db := initTestDB(t)
	d := NewDispatcher(newTestRegistry(t), db, DispatcherOptions{})

	d.Execute(context.Background(), &ExecutionRequest{ToolName: "echo", Input: map[string]any{"query": "copay"}, Source: "http"})
	d.Execute(context.Background(), &ExecutionRequest{ToolName: "broken", Input: map[string]any{"query": "x"}, Source: "mcp"})

	rows, err := d.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byTool := map[string]ToolExecution{}
	for _, r := range rows {
		byTool[r.ToolName] = r
	}
	assert.Equal(t, "success", byTool["echo"].Status)
	assert.Equal(t, "echo: copay", byTool["echo"].Output)
	assert.Equal(t, "copay", byTool["echo"].Input["query"])
	assert.Equal(t, "failed", byTool["broken"].Status)
	require.NotNil(t, byTool["broken"].ErrorMessage)
	assert.Contains(t, *byTool["broken"].ErrorMessage, "backend unavailable")
	assert.NotNil(t, byTool["broken"].CompletedAt)
}

func TestDispatchTimeoutPerTool(t *testing.T) {
	r := NewToolRegistry()
	require.NoError(t, r.Register("slow", funcTool{fn: func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, &ToolDefinition{Name: "slow"}))
	d := NewDispatcher(r, nil, DispatcherOptions{DefaultTimeout: 10 * time.Millisecond})

	res := d.Dispatch(context.Background(), "slow", map[string]any{"query": "x"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "deadline exceeded")
}

func TestRegistry(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, 3, r.Count())
	assert.Error(t, r.Register("echo", funcTool{}, &ToolDefinition{Name: "echo"}))

	openaiTools := r.ToOpenAITools()
	require.Len(t, openaiTools, 3)
	assert.Equal(t, "echo", openaiTools[0].Function.Name)

	r.Unregister("broken")
	assert.Equal(t, []string{"echo", "panics"}, r.Names())

	def, ok := r.GetDefinition("echo")
	require.True(t, ok)
	assert.Equal(t, "active", def.Status)
}

func TestRedactInput(t *testing.T) {
	big := make([]byte, 600)
	out := redactInput(map[string]any{"content": string(big), "filename": "plan.txt"})
	assert.Equal(t, "<600 bytes>", out["content"])
	assert.Equal(t, "plan.txt", out["filename"])
}
