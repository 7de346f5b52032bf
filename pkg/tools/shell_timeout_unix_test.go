//go:build !windows

package tools

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func processExists(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

func TestExecTool_TimeoutKillsChildProcess(t *testing.T) {
	workspace := t.TempDir()
	tool, err := NewExecTool(ExecOptions{Timeout: 500 * time.Millisecond})
	require.NoError(t, err)

	result := tool.Execute(context.Background(), ToolContext{Workspace: workspace}, map[string]any{
		// the background sleep outlives the shell unless the whole group is killed
		"command": "sleep 60 & echo $! > child.pid; wait",
	})
	require.True(t, result.IsError)
	require.Contains(t, result.ForLLM, "timed out")

	data, err := os.ReadFile(filepath.Join(workspace, "child.pid"))
	require.NoError(t, err)
	childPID, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !processExists(childPID) {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("child process %d is still running after timeout", childPID)
}
