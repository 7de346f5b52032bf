package tools

import (
	"context"

	"github.com/georgi/microclaw/pkg/bus"
)

// Tool is a capability the agent can invoke during a turn.
// Execute never panics across the boundary and reports failures as an
// ErrorResult.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, tc ToolContext, args map[string]any) *ToolResult
}

// ToolContext is scoped to one agent turn and never persisted.
type ToolContext struct {
	Workspace string
	Channel   string
	ChatID    string
	OnUpdate  func(bus.AgentTurnUpdate)
}

// Emit forwards an update to the progress callback, if any.
func (tc ToolContext) Emit(update bus.AgentTurnUpdate) {
	if tc.OnUpdate != nil {
		tc.OnUpdate(update)
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}
