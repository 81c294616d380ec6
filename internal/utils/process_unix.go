//go:build !windows

package utils

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// SetNewPG puts the child in its own process group so signals aimed at the
// supervisor's group do not reach it and the whole group can be stopped at once.
func SetNewPG(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// signalGroup signals the group led by pid, or pid alone when it leads no group.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
	}
	return err
}

/**
 * Terminate a process group gracefully
 * @param {context.Context} ctx - Cancels the wait between SIGTERM and SIGKILL
 * @param {int} pid - Group leader pid
 * @param {time.Duration} grace - Time allowed after SIGTERM
 * @returns {error} nil when the process is gone
 * @description
 * - Sends SIGTERM to the group
 * - Polls liveness every 100ms until grace elapses
 * - Sends SIGKILL to the group if the leader is still alive
 * @throws
 * - Permission errors from kill(2)
 */
func TerminateProcessGroup(ctx context.Context, pid int, grace time.Duration) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	if err := signalGroup(pid, syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
		return fmt.Errorf("send SIGTERM to %d: %w", pid, err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	for {
		if !IsProcessAlive(ctx, pid) {
			return nil
		}
		select {
		case <-ticker.C:
			continue
		case <-deadline.C:
		case <-ctx.Done():
		}
		break
	}

	if err := signalGroup(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("send SIGKILL to %d: %w", pid, err)
	}
	return nil
}
