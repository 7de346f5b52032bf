//go:build windows

package tools

import (
	"fmt"
	"os/exec"
	"strconv"
	"syscall"
)

func startInProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// killProcessGroup uses taskkill /T to end the whole process tree.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	pid := strconv.Itoa(cmd.Process.Pid)
	if err := exec.Command("taskkill", "/T", "/F", "/PID", pid).Run(); err != nil {
		return fmt.Errorf("taskkill pid %s: %w", pid, err)
	}
	return nil
}
