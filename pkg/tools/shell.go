package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/georgi/microclaw/pkg/logger"
)

const (
	defaultExecTimeout = 60 * time.Second
	defaultMaxBuffer   = 1 << 20
	maxExecOutputChars = 10000
)

// defaultDenyPatterns block destructive commands. They are matched
// case-insensitively against the whole command string.
var defaultDenyPatterns = []string{
	`\brm\s+-[rf]{1,2}\b`,
	`\brm\s+-[a-z]*(r[a-z]*f|f[a-z]*r)`,
	`\brm\s+--(recursive|force)\b`,
	`\bdel\s+/[fqs]\b`,
	`\b(rmdir|rd)\s+/s\b`,
	`\bmkfs(\.[a-z0-9]+)?\b`,
	`(^|[;&|]\s*)format\s+[a-z]:`,
	`\bdiskpart\b`,
	`\bdd\s+if=`,
	`>\s*/dev/(sd[a-z]|hd[a-z]|nvme\d|mmcblk\d|disk\d)`,
	`\b(shutdown|reboot|poweroff|halt)\b`,
	`\binit\s+[06]\b`,
	`:\(\)\s*\{.*\};\s*:`,
	`\bch(mod|own)\s+-[a-z]*r[a-z]*\s+\S+\s+/([\s;&|]|$)`,
}

// ExecOptions configures the exec tool.
type ExecOptions struct {
	Timeout        time.Duration
	DenyPatterns   []string
	MaxBufferBytes int
}

type ExecTool struct {
	timeout      time.Duration
	denyPatterns []*regexp.Regexp
	maxBuffer    int
}

// NewExecTool compiles the default deny list plus opts.DenyPatterns.
// Extra patterns that fail to compile are an error.
func NewExecTool(opts ExecOptions) (*ExecTool, error) {
	patterns := make([]*regexp.Regexp, 0, len(defaultDenyPatterns)+len(opts.DenyPatterns))
	for _, p := range defaultDenyPatterns {
		patterns = append(patterns, regexp.MustCompile("(?i)"+p))
	}
	for _, p := range opts.DenyPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	maxBuffer := opts.MaxBufferBytes
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxBuffer
	}

	return &ExecTool{
		timeout:      timeout,
		denyPatterns: patterns,
		maxBuffer:    maxBuffer,
	}, nil
}

func (t *ExecTool) Name() string {
	return "exec"
}

func (t *ExecTool) Description() string {
	return "Execute a shell command in the workspace and return its output"
}

func (t *ExecTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"working_dir": map[string]any{
				"type":        "string",
				"description": "Working directory inside the workspace (defaults to the workspace root)",
			},
		},
		"required": []string{"command"},
	}
}

// blockedBy returns the first deny pattern matching command, or "".
func (t *ExecTool) blockedBy(command string) string {
	for _, re := range t.denyPatterns {
		if re.MatchString(command) {
			return strings.TrimPrefix(re.String(), "(?i)")
		}
	}
	return ""
}

func (t *ExecTool) Execute(ctx context.Context, tc ToolContext, args map[string]any) *ToolResult {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return ErrorResult("command is required")
	}
	wd, _ := stringArg(args, "working_dir")

	cwd, err := ResolveWorkingDir(tc.Workspace, wd)
	if err != nil {
		return ErrorResult(err.Error())
	}

	if pattern := t.blockedBy(command); pattern != "" {
		logger.WarnCF("tool", "Command blocked by safety policy", map[string]any{
			"event":   "tool.exec.blocked",
			"pattern": pattern,
			"channel": tc.Channel,
			"chat_id": tc.ChatID,
		})
		return ErrorResult(fmt.Sprintf("command blocked by safety policy (matched %s)", pattern))
	}

	cmdCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := shellCommand(command)
	cmd.Dir = cwd
	stdout := &cappedBuffer{limit: t.maxBuffer}
	stderr := &cappedBuffer{limit: t.maxBuffer}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second
	startInProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return ErrorResult(fmt.Sprintf("failed to start command: %v", err))
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-cmdCtx.Done():
		if err := killProcessGroup(cmd); err != nil {
			logger.WarnCF("tool", "Failed to kill command", map[string]any{"error": err.Error()})
		}
		<-done
		if ctx.Err() != nil {
			return ErrorResult("command cancelled")
		}
		return ErrorResult(timeoutMessage(t.timeout))
	}

	output := truncateOutput(formatExecOutput(stdout.String(), stderr.String()), maxExecOutputChars)
	if waitErr != nil {
		return ErrorResult(fmt.Sprintf("command exited with %v\n%s", waitErr, output))
	}
	return NewToolResult(output)
}

func shellCommand(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/c", command)
	}
	return exec.Command("sh", "-c", command)
}

func formatExecOutput(stdout, stderr string) string {
	var parts []string
	if s := strings.TrimSpace(stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(stderr); s != "" {
		parts = append(parts, "STDERR:\n"+s)
	}
	if len(parts) == 0 {
		return "(no output)"
	}
	return strings.Join(parts, "\n")
}

func truncateOutput(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n... (truncated, %d more chars)", len(s)-cut)
}

// cappedBuffer keeps the first limit bytes and discards the rest while
// still reporting full writes, so the child never sees a broken pipe.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + fmt.Sprintf("\n[output capped at %d bytes]", b.limit)
	}
	return b.buf.String()
}

// timeoutMessage reports the limit in seconds, e.g. "after 60s".
func timeoutMessage(d time.Duration) string {
	return "command timed out after " + strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}
