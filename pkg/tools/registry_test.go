package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgi/microclaw/pkg/bus"
)

type mockRegistryTool struct {
	name    string
	result  *ToolResult
	panics  bool
	lastCtx ToolContext
}

func (m *mockRegistryTool) Name() string               { return m.name }
func (m *mockRegistryTool) Description() string        { return "mock " + m.name }
func (m *mockRegistryTool) Parameters() map[string]any { return map[string]any{"type": "object"} }
func (m *mockRegistryTool) Execute(_ context.Context, tc ToolContext, _ map[string]any) *ToolResult {
	m.lastCtx = tc
	if m.panics {
		panic("boom")
	}
	return m.result
}

func TestToolRegistry_ExecutePassesContext(t *testing.T) {
	r := NewToolRegistry()
	tool := &mockRegistryTool{name: "echo", result: NewToolResult("ok")}
	r.Register(tool)

	tc := ToolContext{Workspace: "/ws", Channel: "discord", ChatID: "42"}
	result := r.Execute(context.Background(), tc, "echo", nil)
	assert.Equal(t, "ok", result.ForLLM)
	assert.Equal(t, tc.Workspace, tool.lastCtx.Workspace)
	assert.Equal(t, "42", tool.lastCtx.ChatID)
}

func TestToolRegistry_UnknownTool(t *testing.T) {
	result := NewToolRegistry().Execute(context.Background(), ToolContext{}, "nope", nil)
	assert.True(t, result.IsError)
	assert.Equal(t, `Error: tool "nope" not found`, result.ForLLM)
}

func TestToolRegistry_RecoversPanic(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&mockRegistryTool{name: "bad", panics: true})

	result := r.Execute(context.Background(), ToolContext{}, "bad", nil)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.ForLLM, "boom")
}

func TestToolRegistry_NilResult(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&mockRegistryTool{name: "quiet"})
	result := r.Execute(context.Background(), ToolContext{}, "quiet", nil)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}

func TestNewSandboxRegistry(t *testing.T) {
	r, err := NewSandboxRegistry(ExecOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"exec", "list_dir", "read_file", "write_file"}, r.List())
	assert.Equal(t, 4, r.Count())

	defs := r.Definitions()
	require.Len(t, defs, 4)
	assert.Equal(t, "exec", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])
}

func TestToolContext_Emit(t *testing.T) {
	var got []bus.AgentTurnUpdate
	tc := ToolContext{OnUpdate: func(u bus.AgentTurnUpdate) { got = append(got, u) }}
	tc.Emit(bus.AgentTurnUpdate{Kind: bus.UpdateTurnStarted})
	ToolContext{}.Emit(bus.AgentTurnUpdate{Kind: bus.UpdateTurnFinished})
	require.Len(t, got, 1)
	assert.Equal(t, bus.UpdateTurnStarted, got[0].Kind)
}
