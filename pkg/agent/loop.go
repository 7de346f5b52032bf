package agent

import (
	"context"
	"errors"
	"strings"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/channels"
	"github.com/georgi/microclaw/pkg/config"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/tools"
	"github.com/georgi/microclaw/pkg/utils"
)

const (
	newSessionReply = "Started a new session."
	emptyTurnReply  = "I've completed processing but have no response to give."
)

// Sender delivers an outbound message to its channel. *channels.Manager
// satisfies it.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// TranscriptLog receives one JSON record per user or assistant turn.
type TranscriptLog interface {
	Log(conversationKey string, payload map[string]any) error
}

// Loop consumes the inbound bus and answers each message through the model
// client. Messages are handled one at a time in arrival order.
type Loop struct {
	cfg        *config.Config
	bus        *bus.MessageBus
	client     ModelClient
	sender     Sender
	transcript TranscriptLog
}

// NewLoop wires the dispatcher. transcript may be nil.
func NewLoop(cfg *config.Config, msgBus *bus.MessageBus, client ModelClient, sender Sender, transcript TranscriptLog) *Loop {
	return &Loop{
		cfg:        cfg,
		bus:        msgBus,
		client:     client,
		sender:     sender,
		transcript: transcript,
	}
}

// Run blocks until ctx is done or the bus is closed.
func (l *Loop) Run(ctx context.Context) error {
	logger.InfoC("agent", "Agent loop started")
	defer logger.InfoC("agent", "Agent loop stopped")

	for {
		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			return nil
		}

		reply := l.process(ctx, msg, true)
		if reply == "" {
			continue
		}
		l.reply(ctx, msg, reply)
	}
}

// ProcessDirect runs one message without the bus and returns the reply
// instead of sending it.
func (l *Loop) ProcessDirect(ctx context.Context, msg bus.InboundMessage) string {
	return l.process(ctx, msg, false)
}

func (l *Loop) process(ctx context.Context, msg bus.InboundMessage, withProgress bool) string {
	key := msg.ConversationKey()
	content := strings.TrimSpace(msg.Content)

	logger.InfoCF("agent", "Processing message", map[string]any{
		"channel":      msg.Channel,
		"chat_id":      msg.ChatID,
		"sender_id":    msg.SenderID,
		"conversation": key,
		"preview":      utils.Truncate(content, 80),
	})

	prompt := content
	switch cmd, args := splitCommand(content); cmd {
	case "/new":
		if err := l.client.StartNewSession(ctx, key); err != nil {
			logger.ErrorCF("agent", "Failed to start new session", map[string]any{
				"event":        "agent.session_reset_failed",
				"conversation": key,
				"error":        err.Error(),
			})
			return "Could not start a new session: " + userFriendlyError(err)
		}
		return newSessionReply
	case "/summary":
		if l.cfg.SummaryPrompt.Enabled {
			if args == "" {
				return "Usage: /summary <what to summarize>"
			}
			prompt = l.cfg.RenderSummaryPrompt(args)
		}
	}

	l.log(key, map[string]any{
		"type":       "user",
		"channel":    msg.Channel,
		"chatId":     msg.ChatID,
		"senderId":   msg.SenderID,
		"content":    msg.Content,
		"receivedAt": msg.Timestamp,
	})

	tc := tools.ToolContext{
		Workspace: l.cfg.WorkspacePath(),
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
	}
	if withProgress {
		tc.OnUpdate = func(u bus.AgentTurnUpdate) { l.progress(ctx, msg, u) }
	}

	reply, err := l.client.RunTurn(ctx, key, prompt, tc, msg.Attachments)
	if err != nil {
		logger.ErrorCF("agent", "Agent turn failed", map[string]any{
			"event":        "agent.turn_failed",
			"conversation": key,
			"error":        err.Error(),
		})
		reply = userFriendlyError(err)
	}
	if strings.TrimSpace(reply) == "" {
		reply = emptyTurnReply
	}

	l.log(key, map[string]any{
		"type":    "assistant",
		"channel": msg.Channel,
		"chatId":  msg.ChatID,
		"content": reply,
		"error":   err != nil,
	})
	return reply
}

func (l *Loop) reply(ctx context.Context, msg bus.InboundMessage, content string) {
	out := bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: content,
		ReplyTo: msg.Metadata[bus.MetaMessageID],
	}

	err := l.sender.Send(ctx, out)
	if err == nil {
		return
	}

	fields := map[string]any{
		"event":   "agent.reply_failed",
		"channel": msg.Channel,
		"chat_id": msg.ChatID,
		"error":   err.Error(),
	}
	var de *channels.DeliveryError
	if errors.As(err, &de) {
		fields["event"] = "agent.reply_partial"
		fields["delivered"] = de.Delivered
		fields["total"] = de.Total
	}
	logger.ErrorCF("agent", "Reply not delivered", fields)
}

// progress forwards turn updates as typing indicators. The end of a turn
// is signalled by the reply itself.
func (l *Loop) progress(ctx context.Context, msg bus.InboundMessage, u bus.AgentTurnUpdate) {
	switch u.Kind {
	case bus.UpdateTurnFinished:
		return
	case bus.UpdateToolCallFinished, bus.UpdateToolCallFailed:
		l.log(msg.ConversationKey(), map[string]any{
			"type":      "tool",
			"kind":      string(u.Kind),
			"toolName":  u.ToolName,
			"toolUseId": u.ToolUseID,
		})
	}

	if err := l.sender.Send(ctx, u.Progress(msg.Channel, msg.ChatID)); err != nil {
		logger.DebugCF("agent", "Progress update not delivered", map[string]any{
			"channel": msg.Channel,
			"update":  string(u.Kind),
			"error":   err.Error(),
		})
	}
}

func (l *Loop) log(key string, payload map[string]any) {
	if l.transcript == nil {
		return
	}
	if err := l.transcript.Log(key, payload); err != nil {
		logger.WarnCF("agent", "Transcript write failed", map[string]any{
			"event": "transcript.write_failed",
			"error": err.Error(),
		})
	}
}

// splitCommand returns the slash command and its argument text. Telegram's
// "/cmd@botname" form is reduced to "/cmd".
func splitCommand(content string) (string, string) {
	if !strings.HasPrefix(content, "/") {
		return "", ""
	}
	head, rest, _ := strings.Cut(content, " ")
	if i := strings.IndexByte(head, '@'); i > 0 {
		head = head[:i]
	}
	return strings.ToLower(head), strings.TrimSpace(rest)
}
