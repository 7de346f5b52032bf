package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/georgi/microclaw/pkg/bus"
	"github.com/georgi/microclaw/pkg/logger"
	"github.com/georgi/microclaw/pkg/tools"
)

// bootstrapFiles are read from the workspace root into the system prompt.
var bootstrapFiles = []string{"AGENTS.md"}

const maxBootstrapBytes = 64 << 10

// botTokenPattern matches Telegram bot credentials embedded in file URLs.
var botTokenPattern = regexp.MustCompile(`bot\d+:[A-Za-z0-9_-]+`)

// buildSystemPrompt assembles the identity, workspace rules and any
// bootstrap files for one turn.
func buildSystemPrompt(tc tools.ToolContext, defs []tools.ToolDefinition) string {
	workspacePath, err := filepath.Abs(tc.Workspace)
	if err != nil {
		workspacePath = tc.Workspace
	}

	parts := []string{fmt.Sprintf(`# microclaw

You are microclaw, an assistant reached through a chat app.

## Current Time
%s

## Runtime
%s %s

## Workspace
Your workspace is at: %s
Every file path you pass to a tool is resolved inside it. Commands run with the workspace as their working directory.

## Current Session
Channel: %s
Chat ID: %s

%s
## Rules

1. Use the tools to act. Do not claim to have run a command or edited a file unless a tool did it.
2. Replies go to a chat window. Keep them short and plain.`,
		time.Now().Format("2006-01-02 15:04 (Monday)"),
		runtime.GOOS, runtime.GOARCH,
		workspacePath,
		tc.Channel, tc.ChatID,
		toolsSection(defs),
	)}

	if bootstrap := loadBootstrapFiles(workspacePath); bootstrap != "" {
		parts = append(parts, bootstrap)
	}

	prompt := strings.Join(parts, "\n\n---\n\n")
	logger.DebugCF("agent", "System prompt built", map[string]any{
		"total_chars": len(prompt),
		"channel":     tc.Channel,
	})
	return prompt
}

func toolsSection(defs []tools.ToolDefinition) string {
	if len(defs) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Available Tools\n\n")
	for _, d := range defs {
		fmt.Fprintf(&sb, "- `%s`: %s\n", d.Name, d.Description)
	}
	sb.WriteString("\n")
	return sb.String()
}

func loadBootstrapFiles(workspace string) string {
	var sb strings.Builder
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(workspace, name))
		if err != nil {
			continue
		}
		if len(data) > maxBootstrapBytes {
			data = data[:maxBootstrapBytes]
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", name, strings.TrimSpace(string(data)))
	}
	return strings.TrimSpace(sb.String())
}

// describeAttachments renders attachment references as text lines the
// model can read. Bytes are never inlined.
func describeAttachments(attachments []bus.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}

	lines := make([]string, 0, len(attachments))
	for _, a := range attachments {
		label := a.FileName
		if label == "" {
			label = a.URL
		}
		if label == "" {
			label = a.Path
		}

		line := fmt.Sprintf("[User sent %s %s", article(string(a.Type)), a.Type)
		if label != "" {
			line += ": " + label
		}
		if a.URL != "" && a.URL != label {
			line += " (" + a.URL + ")"
		}
		lines = append(lines, botTokenPattern.ReplaceAllString(line, "bot<redacted>")+"]")
	}
	return strings.Join(lines, "\n")
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiou", rune(word[0])) {
		return "an"
	}
	return "a"
}
