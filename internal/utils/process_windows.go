//go:build windows

package utils

import (
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

func SetNewPG(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// TerminateProcessGroup kills the process tree; Windows has no SIGTERM to send.
func TerminateProcessGroup(ctx context.Context, pid int, grace time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil
	}
	children, _ := p.ChildrenWithContext(ctx)
	for _, c := range children {
		c.KillWithContext(ctx)
	}
	if err := p.KillWithContext(ctx); err != nil && IsProcessAlive(ctx, pid) {
		return fmt.Errorf("kill %d: %w", pid, err)
	}
	return nil
}
