package utils

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

/**
 * Check whether a pid refers to a live process
 * @param {context.Context} ctx - Bounds the /proc or sysctl lookups
 * @param {int} pid - Process id
 * @returns {bool} false for 0, unknown pids and zombies
 */
func IsProcessAlive(ctx context.Context, pid int) bool {
	if pid <= 0 {
		return false
	}
	exists, err := process.PidExistsWithContext(ctx, int32(pid))
	if err != nil || !exists {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	status, err := p.StatusWithContext(ctx)
	if err != nil {
		// status is not readable on every platform, existence is enough then
		return true
	}
	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}
	return true
}

// createTimeSlack covers the coarse clock behind process create times.
const createTimeSlack = 2 * time.Second

/**
 * Check whether a live pid is still the process launched at launchedAt
 * @param {context.Context} ctx - Bounds the lookups
 * @param {int} pid - Recorded process id
 * @param {time.Time} launchedAt - When the process was recorded as started
 * @returns {bool} false when the pid is gone or was created after launchedAt
 * @description
 * - A pid created later than launchedAt belongs to another process that reused the number
 * - Unknown launch time or unreadable create time count as not ours
 */
func IsLaunchedProcess(ctx context.Context, pid int, launchedAt time.Time) bool {
	if launchedAt.IsZero() || !IsProcessAlive(ctx, pid) {
		return false
	}
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return false
	}
	created, err := p.CreateTimeWithContext(ctx)
	if err != nil {
		return false
	}
	return !time.UnixMilli(created).After(launchedAt.Add(createTimeSlack))
}

/**
 * Find processes whose command line contains a substring
 * @param {context.Context} ctx - Bounds the process table scan
 * @param {string} match - Substring to look for, empty matches nothing
 * @returns {[]int} Matching pids, excluding the current process
 */
func FindProcessesByCmdline(ctx context.Context, match string) ([]int, error) {
	if match == "" {
		return nil, nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	self := int32(os.Getpid())
	var pids []int
	for _, p := range procs {
		if p.Pid == self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(cmdline, match) {
			pids = append(pids, int(p.Pid))
		}
	}
	return pids, nil
}
