package mcpserver

import (
	"context"
	"testing"

	"careassist/internal/tools"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	d := newDispatcher(t)
	server := NewServer(d.Registry(), d, testInfo)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestMCPServerListsRegistryTools(t *testing.T) {
	cs := connect(t)
	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"searchDocuments", "getMedicalTestCost"}, names)
}

func TestMCPServerCallTool(t *testing.T) {
	cs := connect(t)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "searchDocuments",
		Arguments: map[string]any{"query": "coinsurance"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Equal(t, "DOCUMENT SEARCH RESULTS: coinsurance", text.Text)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "getMedicalTestCost",
		Arguments: map[string]any{"query": "MRI"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	text = res.Content[0].(*mcp.TextContent)
	assert.Equal(t, "Error getting medical test cost: quota exceeded", text.Text)
}

func TestInputSchemaDefaultsToObject(t *testing.T) {
	schema := inputSchema(&toolsDefinitionWithoutType)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, "value", schema["x"])
}

var toolsDefinitionWithoutType = tools.ToolDefinition{Name: "bare", Parameters: map[string]any{"x": "value"}}
