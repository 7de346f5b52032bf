package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/session"
	"github.com/georgi/microclaw/pkg/tools"
)

const (
	defaultBaseURL       = "https://api.anthropic.com"
	defaultMaxTokens     = 8192
	defaultMaxIterations = 20
)

type ClaudeOptions struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	MaxIterations int
	Tools         *tools.ToolRegistry
	Sessions      session.Store
}

// ClaudeClient runs turns on the Anthropic Messages API. Each turn starts
// from the user message alone; the session record only tags requests.
type ClaudeClient struct {
	client        anthropic.Client
	model         string
	maxTokens     int64
	maxIterations int
	tools         *tools.ToolRegistry
	sessions      session.Store

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

func NewClaudeClient(opts ClaudeOptions) *ClaudeClient {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	maxIterations := opts.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	registry := opts.Tools
	if registry == nil {
		registry = tools.NewToolRegistry()
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewMemoryStore()
	}

	return &ClaudeClient{
		client: anthropic.NewClient(
			option.WithAPIKey(opts.APIKey),
			option.WithBaseURL(normalizeBaseURL(opts.BaseURL)),
		),
		model:         opts.Model,
		maxTokens:     int64(maxTokens),
		maxIterations: maxIterations,
		tools:         registry,
		sessions:      sessions,
		inflight:      make(map[string]context.CancelFunc),
	}
}

func (c *ClaudeClient) RunTurn(ctx context.Context, conversationKey, userText string, tc tools.ToolContext, attachments []bus.Attachment) (string, error) {
	rec, err := c.ensureSession(ctx, conversationKey)
	if err != nil {
		return "", err
	}

	ctx, release := c.track(ctx, conversationKey)
	defer release()

	prompt := userText
	if described := describeAttachments(attachments); described != "" {
		prompt = strings.TrimSpace(prompt + "\n\n" + described)
	}

	tc.Emit(bus.AgentTurnUpdate{Kind: bus.UpdateTurnStarted, Message: "thinking"})
	reply, iterations, err := c.runToolLoop(ctx, rec, tc, prompt)
	tc.Emit(bus.AgentTurnUpdate{Kind: bus.UpdateTurnFinished, Message: "done"})

	logger.InfoCF("agent", "Turn finished", map[string]any{
		"conversation": conversationKey,
		"session_id":   rec.SessionID,
		"iterations":   iterations,
		"reply_length": len(reply),
		"ok":           err == nil,
	})
	if err != nil {
		return "", err
	}

	rec.UpdatedAt = time.Now()
	if err := c.sessions.Put(ctx, rec); err != nil {
		logger.WarnCF("agent", "Failed to touch session record", map[string]any{
			"conversation": conversationKey,
			"error":        err.Error(),
		})
	}
	return reply, nil
}

func (c *ClaudeClient) runToolLoop(ctx context.Context, rec session.Record, tc tools.ToolContext, prompt string) (string, int, error) {
	defs := c.tools.Definitions()
	system := buildSystemPrompt(tc, defs)
	toolParams := translateTools(defs)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}

	for iteration := 1; iteration <= c.maxIterations; iteration++ {
		logger.DebugCF("agent", "LLM iteration", map[string]any{
			"iteration":      iteration,
			"max":            c.maxIterations,
			"messages_count": len(messages),
		})

		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			System:    []anthropic.TextBlockParam{{Text: system}},
			Messages:  messages,
			Metadata:  anthropic.MetadataParam{UserID: anthropic.String(rec.SessionID)},
		}
		if len(toolParams) > 0 {
			params.Tools = toolParams
		}

		resp, err := c.client.Messages.New(ctx, params)
		if err != nil {
			return "", iteration, fmt.Errorf("claude API call: %w", err)
		}
		messages = append(messages, resp.ToParam())

		var (
			text    strings.Builder
			results []anthropic.ContentBlockParamUnion
		)
		for _, block := range resp.Content {
			switch block.Type {
			case "text":
				text.WriteString(block.AsText().Text)
			case "tool_use":
				results = append(results, c.runTool(ctx, tc, block.AsToolUse()))
			}
		}

		if len(results) == 0 {
			return strings.TrimSpace(text.String()), iteration, nil
		}
		messages = append(messages, anthropic.NewUserMessage(results...))
	}

	return "", c.maxIterations, fmt.Errorf("%w after %d iterations", ErrToolIterationLimit, c.maxIterations)
}

func (c *ClaudeClient) runTool(ctx context.Context, tc tools.ToolContext, use anthropic.ToolUseBlock) anthropic.ContentBlockParamUnion {
	tc.Emit(bus.AgentTurnUpdate{
		Kind:      bus.UpdateToolCallStarted,
		Message:   "running " + use.Name,
		ToolName:  use.Name,
		ToolUseID: use.ID,
	})

	var result *tools.ToolResult
	args := map[string]any{}
	if len(use.Input) > 0 {
		if err := json.Unmarshal(use.Input, &args); err != nil {
			result = tools.ErrorResult("invalid tool input: " + err.Error())
		}
	}
	if result == nil {
		result = c.tools.Execute(ctx, tc, use.Name, args)
	}

	update := bus.AgentTurnUpdate{
		Kind:      bus.UpdateToolCallFinished,
		Message:   use.Name + " finished",
		ToolName:  use.Name,
		ToolUseID: use.ID,
	}
	if result.IsError {
		update.Kind = bus.UpdateToolCallFailed
		update.Message = use.Name + " failed"
	}
	tc.Emit(update)

	return anthropic.NewToolResultBlock(use.ID, result.ForLLM, result.IsError)
}

// StartNewSession replaces the conversation's session id and cancels any
// turn still running for it.
func (c *ClaudeClient) StartNewSession(ctx context.Context, conversationKey string) error {
	c.mu.Lock()
	if cancel, ok := c.inflight[conversationKey]; ok {
		cancel()
		delete(c.inflight, conversationKey)
	}
	c.mu.Unlock()

	if err := c.sessions.Delete(ctx, conversationKey); err != nil {
		return fmt.Errorf("drop old session: %w", err)
	}

	rec := session.Record{
		ConversationKey: conversationKey,
		SessionID:       uuid.NewString(),
		UpdatedAt:       time.Now(),
	}
	if err := c.sessions.Put(ctx, rec); err != nil {
		return fmt.Errorf("start new session: %w", err)
	}

	logger.InfoCF("agent", "Started new session", map[string]any{
		"conversation": conversationKey,
		"session_id":   rec.SessionID,
	})
	return nil
}

// CloseAll cancels every running turn.
func (c *ClaudeClient) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, cancel := range c.inflight {
		cancel()
		delete(c.inflight, key)
	}
}

func (c *ClaudeClient) ensureSession(ctx context.Context, key string) (session.Record, error) {
	rec, ok, err := c.sessions.Get(ctx, key)
	if err != nil {
		return session.Record{}, fmt.Errorf("load session: %w", err)
	}
	if ok {
		return rec, nil
	}

	rec = session.Record{ConversationKey: key, SessionID: uuid.NewString(), UpdatedAt: time.Now()}
	if err := c.sessions.Put(ctx, rec); err != nil {
		return session.Record{}, fmt.Errorf("create session: %w", err)
	}
	return rec, nil
}

func (c *ClaudeClient) track(ctx context.Context, key string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.inflight[key] = cancel
	c.mu.Unlock()

	return ctx, func() {
		cancel()
		c.mu.Lock()
		delete(c.inflight, key)
		c.mu.Unlock()
	}
}

func translateTools(defs []tools.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		tool := anthropic.ToolParam{
			Name: d.Name,
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: d.Parameters["properties"],
				Required:   requiredFields(d.Parameters["required"]),
			},
		}
		if d.Description != "" {
			tool.Description = anthropic.String(d.Description)
		}
		result = append(result, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return result
}

func requiredFields(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		out := make([]string, 0, len(req))
		for _, r := range req {
			if s, ok := r.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimRight(strings.TrimSpace(apiBase), "/")
	base = strings.TrimSuffix(base, "/v1")
	if base == "" {
		return defaultBaseURL
	}
	return base
}
