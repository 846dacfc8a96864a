//go:build !windows

package services

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// treeKiller terminates a pid together with its whole descendant tree.
// A shell-spawned start command typically forks the real server as a child,
// so killing only the top pid would leave the port held.
type treeKiller struct{}

// NewKiller returns the platform tree-kill primitive.
func NewKiller() Killer {
	return treeKiller{}
}

// KillTree forcefully terminates pid and its descendants. "No such process"
// counts as success at every step.
func (treeKiller) KillTree(ctx context.Context, pid int) error {
	// Descendants first, walked via pgrep; covers children that escaped the
	// process group
	for _, child := range childPids(ctx, pid) {
		_ = killPid(child)
	}

	// Then the process group, for anything forked between enumeration and
	// now. Services are spawned as session leaders, so pgid == pid.
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil &&
		!errors.Is(err, syscall.ESRCH) && !errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("failed to kill process group %d: %w", pid, err)
	}

	return killPid(pid)
}

// killPid sends SIGKILL, treating an already-dead process as success.
func killPid(pid int) error {
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to kill pid %d: %w", pid, err)
	}
	return nil
}

// childPids returns the transitive children of pid, depth first.
func childPids(ctx context.Context, pid int) []int {
	out, err := exec.CommandContext(ctx, "pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		// pgrep exits 1 when there are no children
		return nil
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		child, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr != nil {
			continue
		}
		pids = append(pids, childPids(ctx, child)...)
		pids = append(pids, child)
	}
	return pids
}
