// Package agent runs conversational turns against the model backend and
// dispatches inbound bus traffic to it.
package agent

import (
	"context"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/tools"
)

// ModelClient runs one agent turn per inbound message. Implementations own
// the session map and report progress through tc.Emit.
type ModelClient interface {
	RunTurn(ctx context.Context, conversationKey, userText string, tc tools.ToolContext, attachments []bus.Attachment) (string, error)
	StartNewSession(ctx context.Context, conversationKey string) error
	CloseAll()
}
